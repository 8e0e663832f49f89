package scaffold

import (
	"testing"

	"github.com/grailbio/gemmapper/fmindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(s string) []fmindex.Code {
	c := make([]fmindex.Code, len(s))
	fmindex.EncodeSeq(c, []byte(s))
	return c
}

func canonical(c fmindex.Code) bool { return c.IsCanonical() }

func TestBuildEmptyInputYieldsZeroCoverage(t *testing.T) {
	c := Build(nil, nil, nil, canonical)
	assert.Equal(t, 0, c.Coverage)
	assert.Empty(t, c.Regions)
}

func TestBuildChainsNonOverlappingInOrderRegions(t *testing.T) {
	key := encode("ACGTACGTACGT")
	text := encode("ACGTACGTACGT")
	regions := []Region{
		{KeyBegin: 0, KeyEnd: 4, TextBegin: 0, TextEnd: 4},
		{KeyBegin: 4, KeyEnd: 8, TextBegin: 4, TextEnd: 8},
		{KeyBegin: 8, KeyEnd: 12, TextBegin: 8, TextEnd: 12},
	}
	c := Build(regions, key, text, canonical)
	require.Len(t, c.Regions, 3)
	assert.Equal(t, 12, c.Coverage)
	for i := 1; i < len(c.Regions); i++ {
		assert.LessOrEqual(t, c.Regions[i-1].TextEnd, c.Regions[i].TextBegin)
	}
}

func TestBuildDropsOverlappingRegionInFavorOfBetterChain(t *testing.T) {
	key := encode("ACGTACGTACGT")
	text := encode("ACGTACGTACGT")
	regions := []Region{
		{KeyBegin: 0, KeyEnd: 8, TextBegin: 0, TextEnd: 8}, // coverage 8, conflicts with the pair below
		{KeyBegin: 0, KeyEnd: 4, TextBegin: 0, TextEnd: 4},
		{KeyBegin: 4, KeyEnd: 8, TextBegin: 4, TextEnd: 8},
	}
	c := Build(regions, key, text, canonical)
	// Either the single 8-wide region or the two 4-wide regions chain
	// to the same coverage of 8; both are valid optimal chains. Exact
	// extension then widens the chain over the 4 identical characters
	// that follow, so the reported coverage is 12.
	assert.Equal(t, 12, c.Coverage)
}

func TestExactExtendWidensRegionsIntoGaps(t *testing.T) {
	key := encode("ACGTACGTACGT")
	text := encode("ACGTACGTACGT")
	// A single short exact match in the middle should extend left and
	// right to cover the whole identical key/text.
	regions := []Region{{KeyBegin: 4, KeyEnd: 6, TextBegin: 4, TextEnd: 6}}
	c := Build(regions, key, text, canonical)
	require.Len(t, c.Regions, 1)
	assert.Equal(t, 0, c.Regions[0].KeyBegin)
	assert.Equal(t, 12, c.Regions[0].KeyEnd)
	assert.Equal(t, 12, c.Coverage)
}

func TestExactExtendStopsAtMismatch(t *testing.T) {
	key := encode("AAAACGGG")
	text := encode("AAAATGGG")
	regions := []Region{{KeyBegin: 2, KeyEnd: 3, TextBegin: 2, TextEnd: 3}}
	c := Build(regions, key, text, canonical)
	require.Len(t, c.Regions, 1)
	// Extends left to 0 (all A's match) and right up to the mismatch at
	// index 4 ('C' vs 'T'), not past it.
	assert.Equal(t, 0, c.Regions[0].KeyBegin)
	assert.Equal(t, 4, c.Regions[0].KeyEnd)
}
