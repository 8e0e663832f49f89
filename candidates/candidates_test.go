package candidates

import (
	"sort"
	"testing"

	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/matches"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/swg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestIndex mirrors fmindex's own test helper (and regionprofile's,
// neighborhood's): a naive suffix-array-built single-sequence index. It
// also returns the suffix array itself so tests can find the exact SA
// row for a known text offset without relying on substring uniqueness.
func buildTestIndex(t *testing.T, text string) (*fmindex.Index, []fmindex.Code, []int) {
	t.Helper()
	codes := make([]fmindex.Code, len(text)+1)
	fmindex.EncodeSeq(codes, []byte(text))
	codes[len(text)] = fmindex.SEP

	n := len(codes)
	sa := make([]int, n)
	for i := range sa {
		sa[i] = i
	}
	sort.Slice(sa, func(a, b int) bool { return lessSuffix(codes, sa[a], sa[b]) })

	bwt := make([]fmindex.Code, n)
	sample := make(map[uint64]uint64, n)
	for row, start := range sa {
		if start == 0 {
			bwt[row] = fmindex.SEP
		} else {
			bwt[row] = codes[start-1]
		}
		sample[uint64(row)] = uint64(start)
	}
	loc := fmindex.NewLocator([]string{"chr1"}, []uint64{uint64(len(text))}, false)
	idx := fmindex.NewIndex(bwt, sample, 1, 0, loc).WithText(codes)
	return idx, codes, sa
}

func lessSuffix(codes []fmindex.Code, a, b int) bool {
	for a < len(codes) && b < len(codes) {
		if codes[a] != codes[b] {
			return codes[a] < codes[b]
		}
		a++
		b++
	}
	return a == len(codes) && b != len(codes)
}

// rowOf returns the SA row whose suffix starts at text offset pos.
func rowOf(t *testing.T, sa []int, pos int) uint64 {
	t.Helper()
	for row, start := range sa {
		if start == pos {
			return uint64(row)
		}
	}
	t.Fatalf("no SA row starts at offset %d", pos)
	return 0
}

func canonical(c fmindex.Code) bool { return c.IsCanonical() }

var testPenalties = swg.Penalties{Match: 1, Mismatch: 4, GapOpen: 6, GapExtend: 2}

const testGenome = "ACGGTTACAGGCATGGACCTTAGGTACGGATTCACGGTAACCTTGACCATTGGACCTTAAGGTT"

func TestAddIntervalAppendsOnePerSAIndex(t *testing.T) {
	_, _, sa := buildTestIndex(t, testGenome)
	row := rowOf(t, sa, 10)
	s := NewStore(nil, 3)
	s.AddInterval(fmindex.Interval{Lo: row, Hi: row + 3}, 0, 20, 1)
	require.Len(t, s.positions, 3)
	assert.Equal(t, row, s.positions[0].SAIndex)
	assert.Equal(t, 1, s.positions[0].DecodeDistance)
}

func TestAddIntervalSetThresholdedDropsAboveMaxError(t *testing.T) {
	_, _, sa := buildTestIndex(t, testGenome)
	row := rowOf(t, sa, 10)
	s := NewStore(nil, 3)
	s.AddIntervalSetThresholded([]IntervalCandidate{
		{Interval: fmindex.Interval{Lo: row, Hi: row + 1}, RegionBegin: 0, RegionEnd: 20, Errors: 0},
		{Interval: fmindex.Interval{Lo: row + 1, Hi: row + 2}, RegionBegin: 0, RegionEnd: 20, Errors: 5},
	}, 2)
	require.Len(t, s.positions, 1)
	assert.Equal(t, 0, s.positions[0].DecodeDistance)
}

func TestDecodeFilteringPositionsWidensWindowAndSorts(t *testing.T) {
	idx, _, sa := buildTestIndex(t, testGenome)
	rowLate := rowOf(t, sa, 30)
	rowEarly := rowOf(t, sa, 10)
	s := NewStore(idx, 3)
	// Inserted out of text-position order; decode must sort them.
	s.AddInterval(fmindex.Interval{Lo: rowLate, Hi: rowLate + 1}, 0, 20, 0)
	s.AddInterval(fmindex.Interval{Lo: rowEarly, Hi: rowEarly + 1}, 0, 20, 0)

	s.DecodeFilteringPositions(20)
	require.Len(t, s.positions, 2)
	assert.Equal(t, uint64(10), s.positions[0].TextPosition)
	assert.Equal(t, uint64(30), s.positions[1].TextPosition)
	// before = RegionBegin(0)+maxBandwidth(3) = 3, after = (20-0)+3 = 23.
	assert.Equal(t, uint64(7), s.positions[0].WindowBegin)
	assert.Equal(t, uint64(33), s.positions[0].WindowEnd)
}

func TestComposeRegionsCoalescesOverlappingWindowsOnSameSequence(t *testing.T) {
	idx, _, sa := buildTestIndex(t, testGenome)
	s := NewStore(idx, 3)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 10), Hi: rowOf(t, sa, 10) + 1}, 0, 20, 1)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 12), Hi: rowOf(t, sa, 12) + 1}, 0, 18, 0)
	s.DecodeFilteringPositions(20)
	s.ComposeRegions()

	require.Len(t, s.regions, 1)
	r := s.regions[0]
	assert.Equal(t, "chr1", r.SequenceName)
	assert.Equal(t, 0, r.DecodeDistance, "coalesced region keeps the smallest decode distance")
	assert.Len(t, r.SourceRegions, 2)
}

func TestComposeRegionsKeepsDisjointWindowsSeparate(t *testing.T) {
	idx, _, sa := buildTestIndex(t, testGenome)
	s := NewStore(idx, 1)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 5), Hi: rowOf(t, sa, 5) + 1}, 0, 8, 0)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 50), Hi: rowOf(t, sa, 50) + 1}, 0, 8, 0)
	s.DecodeFilteringPositions(8)
	s.ComposeRegions()
	assert.Len(t, s.regions, 2)
}

func TestComposeRegionsPanicsWithoutDecode(t *testing.T) {
	idx, _, sa := buildTestIndex(t, testGenome)
	s := NewStore(idx, 1)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 5), Hi: rowOf(t, sa, 5) + 1}, 0, 8, 0)
	assert.Panics(t, func() { s.ComposeRegions() })
}

func buildPattern(t *testing.T, bases string, nominalError int) *pattern.Pattern {
	t.Helper()
	p, err := pattern.Build([]byte(bases), nil, pattern.Params{NominalError: nominalError})
	require.NoError(t, err)
	return p
}

func TestVerifyCandidatesAcceptsExactCandidateWindow(t *testing.T) {
	idx, codes, sa := buildTestIndex(t, testGenome)
	key := string(decodeBack(codes[10:30]))
	pat := buildPattern(t, key, 2)

	s := NewStore(idx, 3)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 10), Hi: rowOf(t, sa, 10) + 1}, 0, 20, 0)
	s.DecodeFilteringPositions(20)
	s.ComposeRegions()
	require.Len(t, s.regions, 1)

	s.VerifyCandidates(pat, 2)
	require.Equal(t, StatusAccepted, s.regions[0].Status)
	assert.Equal(t, 0, s.regions[0].AlignDistanceMinBound)
}

func TestVerifyCandidatesDiscardsCandidateBeyondErrorBudget(t *testing.T) {
	idx, _, sa := buildTestIndex(t, testGenome)
	// A key that does not occur anywhere near offset 40 forces BPM past
	// its budget.
	pat := buildPattern(t, "TTTTTTTTTTTTTTTTTTTT", 1)

	s := NewStore(idx, 3)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 40), Hi: rowOf(t, sa, 40) + 1}, 0, 20, 0)
	s.DecodeFilteringPositions(20)
	s.ComposeRegions()
	require.Len(t, s.regions, 1)

	s.VerifyCandidates(pat, 1)
	assert.Equal(t, StatusVerifiedDiscarded, s.regions[0].Status)
}

func TestVerificationCacheSupersedesIdenticalFootprint(t *testing.T) {
	c := newVerificationCache()
	c.insert(42, 100, 200, true)
	accepted, found := c.lookup(42, 120, 180)
	require.True(t, found)
	assert.True(t, accepted)

	_, found = c.lookup(42, 90, 250)
	assert.False(t, found, "a wider span than what was verified must not be considered superseded")

	_, found = c.lookup(99, 120, 180)
	assert.False(t, found, "a different footprint must not match")
}

func TestAlignCandidatesAddsExactMatchTrace(t *testing.T) {
	idx, codes, sa := buildTestIndex(t, testGenome)
	key := string(decodeBack(codes[10:30]))
	pat := buildPattern(t, key, 2)

	s := NewStore(idx, 3)
	s.AddInterval(fmindex.Interval{Lo: rowOf(t, sa, 10), Hi: rowOf(t, sa, 10) + 1}, 0, 20, 0)
	s.DecodeFilteringPositions(20)
	s.ComposeRegions()
	s.VerifyCandidates(pat, 2)
	require.Equal(t, StatusAccepted, s.regions[0].Status)

	locator := fmindex.NewLocator([]string{"chr1"}, []uint64{uint64(len(testGenome))}, false)
	store := matches.NewStore(locator)

	err := s.AlignCandidates(pat, canonical, testPenalties, 4, 0, store, false, fmindex.BSNone)
	require.NoError(t, err)
	require.Equal(t, StatusAligned, s.regions[0].Status)
	require.Equal(t, 1, store.Len())
	trace := store.Traces()[0]
	assert.Equal(t, uint64(10), trace.MatchPosition)
	assert.Equal(t, 0, trace.EditDistance)
}

func TestExtendMatchCreatesPendingRegionAroundAnchor(t *testing.T) {
	idx, _, _ := buildTestIndex(t, testGenome)
	pat := buildPattern(t, "ACGGTTACAG", 1)

	s := NewStore(idx, 3)
	s.ExtendMatch(20, 15, pat)
	require.Len(t, s.regions, 1)
	r := s.regions[0]
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, uint64(5), r.BeginPosition)
	assert.Equal(t, uint64(20+15+10), r.EndPosition)
}

// decodeBack is the inverse of fmindex.EncodeSeq, for building a
// pattern.Build-ready base string from a slice of the index's own
// encoded text.
func decodeBack(codes []fmindex.Code) []byte {
	out := make([]byte, len(codes))
	for i, c := range codes {
		out[i] = fmindex.Decode(c)
	}
	return out
}
