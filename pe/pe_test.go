package pe

import (
	"sort"
	"testing"

	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/matches"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/regionprofile"
	"github.com/grailbio/gemmapper/search"
	"github.com/grailbio/gemmapper/swg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestIndex mirrors search's/candidates' own naive suffix-array test
// helper.
func buildTestIndex(t *testing.T, text string) *fmindex.Index {
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
	return fmindex.NewIndex(bwt, sample, 1, 0, loc).WithText(codes)
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

func canonical(c fmindex.Code) bool { return c.IsCanonical() }

const testGenome = "ACGGTTACAGGCATGGACCTTAGGTACGGATTCACGGTAACCTTGACCATTGGACCTTAAGGTT"

func endParams() search.Params {
	model := regionprofile.Model{RegionTh: 1, MaxSteps: 0, DecFactor: 1, RegionTypeTh: 1}
	return search.Params{
		Mode:                    search.ModeFast,
		RegionModelMinimal:      model,
		RegionModelBoost:        model,
		RegionModelDelimit:      model,
		ProperLength:            1,
		MaxBandwidth:            3,
		CompleteSearchError:     2,
		CompleteStrataAfterBest: 1,
		MaxReportedMatches:      5,
		UnboundedAlignment:      search.UnboundedIfUnmapped,
		SWGPenalties:            swg.Penalties{Match: 1, Mismatch: 4, GapOpen: 6, GapExtend: 2},
		Allowed:                 canonical,
	}
}

func buildPattern(t *testing.T, key string) *pattern.Pattern {
	t.Helper()
	pat, err := pattern.Build([]byte(key), nil, pattern.Params{NominalError: 2, NominalBandwidth: 3})
	require.NoError(t, err)
	return pat
}

func TestRunFindsConcordantPair(t *testing.T) {
	idx := buildTestIndex(t, testGenome)
	locator := fmindex.NewLocator([]string{"chr1"}, []uint64{uint64(len(testGenome))}, false)

	pat1 := buildPattern(t, testGenome[10:30])
	pat2 := buildPattern(t, testGenome[40:60])

	params := Params{
		End1:               endParams(),
		End2:               endParams(),
		MinTemplateLength:  0,
		MaxTemplateLength:  100,
		ShortcutMaxCIWidth: 0, // disabled: exercise the full end/2 search path
	}

	result := Run(idx, locator, pat1, pat2, params, &search.Counters{}, &search.Counters{})
	require.Equal(t, StateEnd, result.FinalState)
	require.Len(t, result.Pairs, 1)

	p := result.Pairs[0]
	assert.True(t, p.Concordant)
	assert.Equal(t, uint64(50), p.TemplateLength)
	assert.Equal(t, FF, p.Orientation)
	assert.Equal(t, Separate, p.Layout)
	assert.Equal(t, uint64(10), p.End1.MatchPosition)
	assert.Equal(t, uint64(40), p.End2.MatchPosition)
}

func TestRunRejectsOutOfWindowPairAsDiscordant(t *testing.T) {
	idx := buildTestIndex(t, testGenome)
	locator := fmindex.NewLocator([]string{"chr1"}, []uint64{uint64(len(testGenome))}, false)

	pat1 := buildPattern(t, testGenome[10:30])
	pat2 := buildPattern(t, testGenome[40:60])

	params := Params{
		End1:              endParams(),
		End2:              endParams(),
		MinTemplateLength: 0,
		MaxTemplateLength: 10, // template is 50; outside the concordant window
		Discordant:        DiscordantNever,
	}

	result := Run(idx, locator, pat1, pat2, params, &search.Counters{}, &search.Counters{})
	assert.Empty(t, result.Pairs)
}

func TestExtendIntoFindsMateAroundAnchor(t *testing.T) {
	idx := buildTestIndex(t, testGenome)
	locator := fmindex.NewLocator([]string{"chr1"}, []uint64{uint64(len(testGenome))}, false)

	anchor := matches.Trace{MatchPosition: 10, EffectiveLength: 20}
	mate := buildPattern(t, testGenome[40:60])
	dest := matches.NewStore(locator)

	extendInto(idx, []matches.Trace{anchor}, dest, mate, endParams(), 60)
	require.Equal(t, 1, dest.Len())
	assert.Equal(t, uint64(40), dest.Traces()[0].MatchPosition)
}

func TestOrientationOf(t *testing.T) {
	assert.Equal(t, FF, orientationOf(fmindex.Forward, fmindex.Forward, true))
	assert.Equal(t, RR, orientationOf(fmindex.Reverse, fmindex.Reverse, true))
	assert.Equal(t, FR, orientationOf(fmindex.Forward, fmindex.Reverse, true))
	assert.Equal(t, RF, orientationOf(fmindex.Reverse, fmindex.Forward, true))
}

func TestLayoutOf(t *testing.T) {
	assert.Equal(t, Separate, layoutOf(0, 10, 20, 30))
	assert.Equal(t, Overlap, layoutOf(0, 20, 10, 30))
	assert.Equal(t, Contain, layoutOf(0, 30, 10, 20))
}

func TestIsConcordantChecksWindowOrientationAndLayout(t *testing.T) {
	p := Pair{TemplateLength: 50, Orientation: FF, Layout: Separate}
	assert.True(t, isConcordant(p, Params{MinTemplateLength: 0, MaxTemplateLength: 100}))
	assert.False(t, isConcordant(p, Params{MinTemplateLength: 0, MaxTemplateLength: 40}))

	restricted := Params{MinTemplateLength: 0, MaxTemplateLength: 100, Orientations: map[Orientation]bool{FR: true}}
	assert.False(t, isConcordant(p, restricted))
}

func TestCombinedMCSZeroWhenEitherEndUnmapped(t *testing.T) {
	mapped := search.Result{Class: matches.Unique, MaxCompleteStratum: 2}
	unmapped := search.Result{Class: matches.Unmapped, MaxCompleteStratum: 0}
	assert.Equal(t, 4, combinedMCS(mapped, search.Result{Class: matches.Unique, MaxCompleteStratum: 2}))
	assert.Equal(t, 0, combinedMCS(mapped, unmapped))
}

func TestAmbiguousClassesRecognized(t *testing.T) {
	assert.True(t, ambiguous(matches.Unmapped))
	assert.True(t, ambiguous(matches.TieIndistinguishable))
	assert.False(t, ambiguous(matches.Unique))
	assert.False(t, ambiguous(matches.MMap))
}

func TestScorePairsPenalizesDiscordant(t *testing.T) {
	pairs := []Pair{
		{End1: matches.Trace{MAPQ: 30}, End2: matches.Trace{MAPQ: 40}, Concordant: true},
		{End1: matches.Trace{MAPQ: 30}, End2: matches.Trace{MAPQ: 40}, Concordant: false},
	}
	scorePairs(pairs)
	assert.Equal(t, 30, pairs[0].MAPQ)
	assert.Equal(t, 29, pairs[1].MAPQ)
}
