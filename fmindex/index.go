package fmindex

// rankBlockSize is the number of BWT positions between successive
// cached cumulative-count checkpoints. Smaller values trade memory for
// faster Rank queries; original_source/src/fm.c samples at a similar
// granularity for its own rank dictionary.
const rankBlockSize = 64

// Interval is a half-open BWT interval [Lo,Hi); Hi-Lo is the number of
// exact candidate positions the interval represents.
type Interval struct {
	Lo, Hi uint64
}

// Empty reports whether the interval contains no rows.
func (iv Interval) Empty() bool { return iv.Hi <= iv.Lo }

// Count returns the number of rows in the interval.
func (iv Interval) Count() uint64 {
	if iv.Empty() {
		return 0
	}
	return iv.Hi - iv.Lo
}

// Index is a read-only FM-index facade: the BWT, its C-array, a
// block-sampled rank dictionary, an optional rank m-table accelerator,
// a sampled suffix array, and a Locator. It owns no mutable state
// after construction; all operations are pure functions of their
// arguments plus this read-only state, so one *Index is safely shared
// by every worker thread (spec.md §5).
type Index struct {
	bwt    []Code
	length uint64

	cArray [NumCodes]uint64
	// blockCounts[b][c] is the number of occurrences of code c in
	// bwt[0 : b*rankBlockSize).
	blockCounts [][NumCodes]uint64

	mTable *rankMTable // may be nil

	sa  *sampledSA
	loc *Locator

	// text is the plain (non-BWT) encoded sequence, kept alongside the
	// index the way original_source's dna_text component is kept
	// alongside its fm-index: the rank/LF structures above answer
	// "where", this answers "what is actually there" for candidate
	// verification (package candidates). Optional: nil for an Index
	// built without WithText, e.g. BWT-only test fixtures.
	text []Code
}

// WithText attaches the plain encoded sequence the index was built
// over, enabling Extract. It returns idx for chaining at construction
// time.
func (idx *Index) WithText(text []Code) *Index {
	idx.text = text
	return idx
}

// Extract returns the encoded text in [begin,end), clamped to the
// indexed length, or nil if no text was attached via WithText. The
// returned slice aliases the index's backing array and must not be
// modified by the caller.
func (idx *Index) Extract(begin, end uint64) []Code {
	if idx.text == nil {
		return nil
	}
	if end > uint64(len(idx.text)) {
		end = uint64(len(idx.text))
	}
	if begin > end {
		begin = end
	}
	return idx.text[begin:end]
}

// NewIndex builds an Index facade over an already-constructed BWT.
// sample maps sampled BWT rows to their corresponding text position;
// rate is the sampling interval used when the bundle was built
// (purely informational here, kept for diagnostics). minMatchingDepth,
// if > 0, causes an accelerator table to be built covering every
// minMatchingDepth-mer, skipping that many characters of backward
// search (spec.md §3 "Rank m-table").
func NewIndex(bwt []Code, sample map[uint64]uint64, rate int, minMatchingDepth int, loc *Locator) *Index {
	idx := &Index{
		bwt:    bwt,
		length: uint64(len(bwt)),
		loc:    loc,
	}
	idx.buildRankBlocks()
	idx.sa = newSampledSA(sample, rate)
	if minMatchingDepth > 0 {
		idx.mTable = buildRankMTable(idx, minMatchingDepth)
	}
	return idx
}

func (idx *Index) buildRankBlocks() {
	nBlocks := int(idx.length)/rankBlockSize + 1
	idx.blockCounts = make([][NumCodes]uint64, nBlocks)
	var running [NumCodes]uint64
	for i := uint64(0); i < idx.length; i++ {
		if i%rankBlockSize == 0 {
			idx.blockCounts[i/rankBlockSize] = running
		}
		running[idx.bwt[i]]++
	}
	if idx.length%rankBlockSize == 0 {
		// Only the checkpoint at exactly idx.length is left unset by the loop.
		idx.blockCounts[nBlocks-1] = running
	}
	// C-array: number of text characters strictly less than each code.
	var total [NumCodes]uint64
	for _, c := range idx.bwt {
		total[c]++
	}
	var cum uint64
	for c := Code(0); c < NumCodes; c++ {
		idx.cArray[c] = cum
		cum += total[c]
	}
}

// Length returns the total indexed length, including SEP/JUMP symbols.
func (idx *Index) Length() uint64 { return idx.length }

// Rank returns the number of occurrences of c within bwt[0:i].
func (idx *Index) Rank(c Code, i uint64) uint64 {
	if i > idx.length {
		i = idx.length
	}
	block := i / rankBlockSize
	count := idx.blockCounts[block][c]
	start := block * rankBlockSize
	for p := start; p < i; p++ {
		if idx.bwt[p] == c {
			count++
		}
	}
	return count
}

// IntervalExtend advances interval cur by prepending character c to
// the matched suffix (classic FM-index backward-search step). It
// returns an empty interval when the extension has no occurrences.
func (idx *Index) IntervalExtend(cur Interval, c Code) Interval {
	if cur.Empty() && cur.Lo != 0 {
		return Interval{}
	}
	lo := idx.cArray[c] + idx.Rank(c, cur.Lo)
	hi := idx.cArray[c] + idx.Rank(c, cur.Hi)
	return Interval{Lo: lo, Hi: hi}
}

// fullInterval is the interval representing every row of the index,
// i.e. the empty-pattern match.
func (idx *Index) fullInterval() Interval { return Interval{Lo: 0, Hi: idx.length} }

// IntervalSearch performs a classical backward search for key,
// returning the resulting interval and the number of single-character
// extension steps actually performed (counting stops as soon as the
// interval becomes empty). The step count feeds the region profile's
// adaptive stop condition.
func (idx *Index) IntervalSearch(key []Code) (Interval, int) {
	n := len(key)
	if n == 0 {
		return idx.fullInterval(), 0
	}
	steps := 0
	cur := idx.fullInterval()
	last := n
	if idx.mTable != nil && n >= idx.mTable.depth {
		if iv, ok := idx.mTable.lookup(key[n-idx.mTable.depth:]); ok {
			if iv.Empty() {
				return Interval{}, steps
			}
			cur = iv
			steps++
			last = n - idx.mTable.depth
		}
	}
	for i := last - 1; i >= 0; i-- {
		cur = idx.IntervalExtend(cur, key[i])
		steps++
		if cur.Empty() {
			return cur, steps
		}
	}
	return cur, steps
}

// Locate resolves a decoded text position into (sequence, offset,
// strand, bisulfite strand).
func (idx *Index) Locate(pos uint64) (seqName string, localOffset uint64, strand Strand, bs BSStrand, ok bool) {
	seqName, localOffset, strand, ok = idx.loc.Locate(pos)
	return seqName, localOffset, strand, BSNone, ok
}
