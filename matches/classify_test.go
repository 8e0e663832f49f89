package matches

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUnmappedWhenNoMatches(t *testing.T) {
	assert.Equal(t, Unmapped, Classify(Predictors{}))
}

func TestClassifyUniqueWhenSingleBestMatch(t *testing.T) {
	p := Predictors{FirstStratumMatches: 1, SubDominantMatches: 0}
	assert.Equal(t, Unique, Classify(p))
}

func TestClassifyUniqueStillHoldsWithWorseSubdominantMatches(t *testing.T) {
	p := Predictors{FirstStratumMatches: 1, SubDominantMatches: 3}
	assert.Equal(t, Unique, Classify(p))
}

func TestClassifyTieIndistinguishableWhenAllTiedFieldsMatch(t *testing.T) {
	p := Predictors{
		FirstStratumMatches: 2, BestEditDistance: 1, SecondBestEditDistance: 1,
		BestEventDistance: 1, SecondBestEventDistance: 1, BestSWGScore: 10, SecondBestSWGScore: 10,
	}
	assert.Equal(t, TieIndistinguishable, Classify(p))
}

func TestClassifyMMapWhenFirstStratumMatchesDiffer(t *testing.T) {
	p := Predictors{
		FirstStratumMatches: 2, BestEditDistance: 1, SecondBestEditDistance: 2,
		BestEventDistance: 1, SecondBestEventDistance: 2, BestSWGScore: 10, SecondBestSWGScore: 5,
	}
	assert.Equal(t, MMap, Classify(p))
}

func TestMAPQUnmappedIsZero(t *testing.T) {
	assert.Equal(t, 0, MAPQ(Predictors{}))
}

func TestMAPQUniqueHighConfidenceBeatsLowCoverage(t *testing.T) {
	high := Predictors{FirstStratumMatches: 1, LongestRegionCoverage: 1, KmerFrequency: 0}
	low := Predictors{FirstStratumMatches: 1, LongestRegionCoverage: 0.1, KmerFrequency: 0.9}
	assert.Greater(t, MAPQ(high), MAPQ(low))
}

func TestMAPQNeverExceedsSixty(t *testing.T) {
	p := Predictors{FirstStratumMatches: 1, LongestRegionCoverage: 1, KmerFrequency: 0}
	assert.LessOrEqual(t, MAPQ(p), 60)
}

func TestMAPQTieIndistinguishableIsZero(t *testing.T) {
	p := Predictors{
		FirstStratumMatches: 2, BestEditDistance: 1, SecondBestEditDistance: 1,
		BestEventDistance: 1, SecondBestEventDistance: 1, BestSWGScore: 10, SecondBestSWGScore: 10,
	}
	assert.Equal(t, 0, MAPQ(p))
}

func TestPredictorsFromStoreCountsStrata(t *testing.T) {
	s := NewStore(testLocator())
	_, _ = s.AddMatchTrace(100, exactAlignment(10), 0, 0, false, 0)
	_, _ = s.AddMatchTrace(200, exactAlignment(10), 0, 0, false, 0)
	_, _ = s.AddMatchTrace(300, exactAlignment(10), 2, 2, false, 0)
	p := s.Predictors(10, 1.0, 0.0)
	assert.Equal(t, 2, p.FirstStratumMatches)
	assert.Equal(t, 1, p.SubDominantMatches)
	assert.Equal(t, 0, p.BestEditDistance)
	assert.True(t, p.HasSecondBest)
	assert.Equal(t, 2, p.SecondBestEditDistance)
}
