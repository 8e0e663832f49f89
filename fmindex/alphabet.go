// Package fmindex provides read-only access to a pre-built reference
// genome self-index: the encoded text, its BWT/FM-index, a rank
// m-table accelerator, a sampled suffix array, and a locator that maps
// a text position back to (sequence, local offset, strand).
//
// The index itself is never built or modified here; construction lives
// in the offline index builder, which is out of scope (see package
// indexio for the on-disk bundle this package reads).
package fmindex

// Code is one symbol of the extended DNA alphabet used throughout the
// index: canonical bases plus the wildcard, separator and jump symbols
// GEM3's BWT construction requires.
type Code uint8

const (
	A    Code = 0
	C    Code = 1
	G    Code = 2
	T    Code = 3
	N    Code = 4
	SEP  Code = 5
	JUMP Code = 6

	// NumCodes is the size of the C-array / rank table's character axis.
	NumCodes = 7
	// NumCanonical is the number of codes substitutions are drawn from.
	NumCanonical = 4
)

func (c Code) String() string {
	switch c {
	case A:
		return "A"
	case C:
		return "C"
	case G:
		return "G"
	case T:
		return "T"
	case N:
		return "N"
	case SEP:
		return "SEP"
	case JUMP:
		return "JUMP"
	default:
		return "?"
	}
}

// IsCanonical reports whether c is one of {A,C,G,T}.
func (c Code) IsCanonical() bool { return c < NumCanonical }

var baseToCode = [256]Code{}
var codeToBase = [NumCodes]byte{'A', 'C', 'G', 'T', 'N', '$', '/'}

func init() {
	for i := range baseToCode {
		baseToCode[i] = N
	}
	baseToCode['A'], baseToCode['a'] = A, A
	baseToCode['C'], baseToCode['c'] = C, C
	baseToCode['G'], baseToCode['g'] = G, G
	baseToCode['T'], baseToCode['t'] = T, T
	baseToCode['N'], baseToCode['n'] = N, N
}

// Encode maps one ASCII base to its Code. Non-canonical characters
// (anything but A/C/G/T, case-insensitively) map to N.
func Encode(b byte) Code { return baseToCode[b] }

// EncodeSeq encodes every byte of seq in place into dst, which must
// have len(dst) == len(seq). dst and seq may be the same underlying
// slice reinterpreted byte-for-byte by the caller.
func EncodeSeq(dst []Code, seq []byte) {
	for i, b := range seq {
		dst[i] = baseToCode[b]
	}
}

// Decode maps a Code back to its ASCII representation.
func Decode(c Code) byte {
	if int(c) >= len(codeToBase) {
		return 'N'
	}
	return codeToBase[c]
}

var complementTable = [NumCodes]Code{T, G, C, A, N, SEP, JUMP}

// Complement returns the Watson-Crick complement of a canonical code;
// N/SEP/JUMP complement to themselves.
func Complement(c Code) Code {
	if int(c) >= len(complementTable) {
		return c
	}
	return complementTable[c]
}

// ReverseComplement writes the reverse complement of src into dst.
// len(dst) must equal len(src); dst and src may overlap only if they
// are the same slice (in-place).
func ReverseComplement(dst, src []Code) {
	n := len(src)
	if len(dst) != n {
		panic("fmindex: ReverseComplement requires len(dst) == len(src)")
	}
	if &dst[0] == &src[0] {
		half := n / 2
		for i, j := 0, n-1; i < half; i, j = i+1, j-1 {
			dst[i], dst[j] = Complement(src[j]), Complement(src[i])
		}
		if n&1 == 1 {
			dst[half] = Complement(src[half])
		}
		return
	}
	for i, j := 0, n-1; i < n; i, j = i+1, j-1 {
		dst[i] = Complement(src[j])
	}
}
