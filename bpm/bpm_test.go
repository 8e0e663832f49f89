package bpm

import (
	"math/rand"
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

func TestVerifyExactMatch(t *testing.T) {
	key := encode("ACGTACGT")
	p := Compile(key, 0, DefaultMinTile)
	require.Len(t, p.Tiles, 1)
	res := Verify(p, key, 0)
	assert.True(t, res.Accepted)
	assert.Equal(t, 0, res.Distance)
	assert.Equal(t, 0, res.MinBound)
}

func TestVerifyOneSubstitution(t *testing.T) {
	key := encode("GTACGAAC") // S2 scenario pattern
	text := encode("GTACGAAC")
	text[2] = fmindex.Encode('X') // force a mismatch at a known column (X -> N)
	p := Compile(key, 1, DefaultMinTile)
	res := Verify(p, text, 1)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Distance)
}

func TestVerifyRejectsBeyondBudget(t *testing.T) {
	key := encode("ACGTACGTACGT")
	text := encode("TTTTTTTTTTTT")
	p := Compile(key, 2, DefaultMinTile)
	res := Verify(p, text, 2)
	assert.False(t, res.Accepted)
	assert.GreaterOrEqual(t, res.MinBound, 3)
}

func TestMinBoundNeverExceedsDistance(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	bases := []byte("ACGT")
	for trial := 0; trial < 200; trial++ {
		n := 10 + rnd.Intn(50)
		key := make([]byte, n)
		text := make([]byte, n)
		for i := range key {
			key[i] = bases[rnd.Intn(4)]
			text[i] = bases[rnd.Intn(4)]
		}
		kc := make([]fmindex.Code, n)
		tc := make([]fmindex.Code, n)
		fmindex.EncodeSeq(kc, key)
		fmindex.EncodeSeq(tc, text)
		p := Compile(kc, n, DefaultMinTile)
		res := Verify(p, tc, n)
		assert.LessOrEqual(t, res.MinBound, res.Distance, "trial %d", trial)
	}
}

func TestVerifySubstitutionsOnlyNeverExceedsCount(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	bases := []byte("ACGT")
	for trial := 0; trial < 100; trial++ {
		n := 8 + rnd.Intn(20)
		key := make([]fmindex.Code, n)
		text := make([]fmindex.Code, n)
		for i := range key {
			key[i] = fmindex.Encode(bases[rnd.Intn(4)])
			text[i] = key[i]
		}
		nSub := rnd.Intn(3)
		for s := 0; s < nSub; s++ {
			pos := rnd.Intn(n)
			text[pos] = fmindex.Encode(bases[rnd.Intn(4)])
		}
		p := Compile(key, n, DefaultMinTile)
		res := Verify(p, text, n)
		// Same-length key/text differing at nSub positions can always be
		// reconciled with nSub substitutions, so the true edit distance is
		// at most nSub, and so is the single-tile verifier's best match.
		want := referenceEditDistance(key, text)
		assert.LessOrEqual(t, want, nSub, "trial %d", trial)
		assert.LessOrEqual(t, res.Distance, nSub, "trial %d", trial)
		assert.LessOrEqual(t, res.MinBound, res.Distance, "trial %d", trial)
	}
}
