package swg

import (
	"math/rand"
	"testing"

	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/scaffold"
	"github.com/grailbio/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(s string) []fmindex.Code {
	c := make([]fmindex.Code, len(s))
	fmindex.EncodeSeq(c, []byte(s))
	return c
}

var defaultPenalties = Penalties{Match: 1, Mismatch: 4, GapOpen: 6, GapExtend: 2}

func scoreFromOps(ops []Op, pen Penalties) int32 {
	var total int32
	for _, op := range ops {
		switch op.Type {
		case OpMatch:
			total += pen.Match * int32(op.Len)
		case OpMismatch:
			total -= pen.Mismatch * int32(op.Len)
		case OpInsertion, OpDeletion:
			total -= pen.GapOpen + pen.GapExtend*int32(op.Len)
		}
	}
	return total
}

func TestAlignExactMatchScoresAllMatches(t *testing.T) {
	key := encode("ACGTACGTACGT")
	text := encode("ACGTACGTACGT")
	a, ok := Align(key, text, defaultPenalties, 4, scaffold.Chain{}, 0)
	require.True(t, ok)
	assert.Equal(t, int32(len(key))*defaultPenalties.Match, a.Score)
	require.Len(t, a.CIGAR(), 1)
	assert.Equal(t, sam.CigarMatch, a.CIGAR()[0].Type())
	assert.Equal(t, len(key), a.CIGAR()[0].Len())
}

// TestAlignSubstitutionProducesMismatchRun grounds spec.md's scenario
// S2 (CIGAR "5M1X2M"): an 8bp read with a single central substitution
// against its otherwise-identical text window.
func TestAlignSubstitutionProducesMismatchRun(t *testing.T) {
	key := encode("AAAAACCC")
	text := encode("AAAAAGCC")
	a, ok := Align(key, text, defaultPenalties, 2, scaffold.Chain{}, -1000)
	require.True(t, ok)
	cig := a.CIGAR()
	require.Len(t, cig, 3)
	assert.Equal(t, sam.CigarMatch, cig[0].Type())
	assert.Equal(t, 5, cig[0].Len())
	assert.Equal(t, sam.CigarMismatch, cig[1].Type())
	assert.Equal(t, 1, cig[1].Len())
	assert.Equal(t, sam.CigarMatch, cig[2].Type())
	assert.Equal(t, 2, cig[2].Len())
}

// TestAlignInsertionProducesInsertionRun grounds scenario S3 (CIGAR
// "6M1I3M"): a read with one extra base not present in the text.
func TestAlignInsertionProducesInsertionRun(t *testing.T) {
	key := encode("ACGTACGGGAC") // 11bp: 6 matching + 1 inserted 'G' + 4 matching (GGAC)
	text := encode("ACGTACGGAC") // 10bp: the same without the inserted base
	a, ok := Align(key, text, defaultPenalties, 3, scaffold.Chain{}, -1000)
	require.True(t, ok)
	cig := a.CIGAR()
	var sawInsertion bool
	total := 0
	for _, op := range cig {
		if op.Type() == sam.CigarInsertion {
			sawInsertion = true
			assert.Equal(t, 1, op.Len())
		}
		total += op.Len()
	}
	assert.True(t, sawInsertion)
	assert.Equal(t, len(key), total)
}

func TestAlignRejectsBelowThreshold(t *testing.T) {
	key := encode("AAAAAAAA")
	text := encode("TTTTTTTT")
	_, ok := Align(key, text, defaultPenalties, 2, scaffold.Chain{}, 0)
	assert.False(t, ok)
}

func TestAlignUsesScaffoldChainAsExactAnchor(t *testing.T) {
	key := encode("ACGTACGTACGT")
	text := encode("ACGTACGTACGT")
	chain := scaffold.Chain{
		Regions:  []scaffold.Region{{KeyBegin: 0, KeyEnd: 12, TextBegin: 0, TextEnd: 12}},
		Coverage: 12,
	}
	a, ok := Align(key, text, defaultPenalties, 0, chain, 0)
	require.True(t, ok)
	assert.Equal(t, int32(12)*defaultPenalties.Match, a.Score)
	require.Len(t, a.Ops, 1)
	assert.Equal(t, OpMatch, a.Ops[0].Type)
	assert.Equal(t, 12, a.Ops[0].Len)
}

func TestCIGARScoreConsistency(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	bases := []byte("ACGT")
	for trial := 0; trial < 50; trial++ {
		n := 10 + rnd.Intn(15)
		key := make([]fmindex.Code, n)
		text := make([]fmindex.Code, n)
		for i := range key {
			key[i] = fmindex.Encode(bases[rnd.Intn(4)])
			text[i] = key[i]
		}
		for s := 0; s < rnd.Intn(3); s++ {
			text[rnd.Intn(n)] = fmindex.Encode(bases[rnd.Intn(4)])
		}
		a, ok := Align(key, text, defaultPenalties, 4, scaffold.Chain{}, -1000)
		require.True(t, ok, "trial %d", trial)
		assert.Equal(t, a.Score, scoreFromOps(a.Ops, defaultPenalties), "trial %d", trial)
	}
}

func TestAlignAgreesWithReferenceOnRandomInputs(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	bases := []byte("ACGT")
	for trial := 0; trial < 60; trial++ {
		n := 5 + rnd.Intn(12)
		key := make([]fmindex.Code, n)
		for i := range key {
			key[i] = fmindex.Encode(bases[rnd.Intn(4)])
		}
		text := make([]fmindex.Code, len(key))
		copy(text, key)
		edits := rnd.Intn(3)
		for e := 0; e < edits; e++ {
			text[rnd.Intn(len(text))] = fmindex.Encode(bases[rnd.Intn(4)])
		}
		a, ok := Align(key, text, defaultPenalties, n, scaffold.Chain{}, -1000)
		require.True(t, ok, "trial %d", trial)
		want := referenceAlign(key, text, defaultPenalties)
		assert.Equal(t, want, a.Score, "trial %d", trial)
	}
}
