package fmindex

// reverseComplementASCIITable maps an ASCII base to its complement,
// treating anything outside {A,C,G,T,a,c,g,t} as N. This mirrors the
// read-facing half of the encode/decode round trip: cmd/gem-mapper
// calls ReverseComplementASCII before encoding a read for the
// emulated-reverse-strand search path (spec.md §3 "indexed_complement").
var reverseComplementASCIITable = func() (t [256]byte) {
	for i := range t {
		t[i] = 'N'
	}
	t['A'], t['a'] = 'T', 'T'
	t['C'], t['c'] = 'G', 'G'
	t['G'], t['g'] = 'C', 'C'
	t['T'], t['t'] = 'A', 'A'
	return t
}()

// ReverseComplementASCII writes the reverse complement of src into
// dst. len(dst) must equal len(src); the two slices may be identical
// (in-place reverse complement).
func ReverseComplementASCII(dst, src []byte) {
	n := len(src)
	if len(dst) != n {
		panic("fmindex: ReverseComplementASCII requires len(dst) == len(src)")
	}
	if n == 0 {
		return
	}
	if &dst[0] == &src[0] {
		half := n / 2
		for i, j := 0, n-1; i < half; i, j = i+1, j-1 {
			dst[i], dst[j] = reverseComplementASCIITable[src[j]], reverseComplementASCIITable[src[i]]
		}
		if n&1 == 1 {
			dst[half] = reverseComplementASCIITable[src[half]]
		}
		return
	}
	for i, j := 0, n-1; i < n; i, j = i+1, j-1 {
		dst[i] = reverseComplementASCIITable[src[j]]
	}
}
