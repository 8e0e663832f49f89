package matches

// Predictors are the inputs to classify() and MAPQ (spec.md §4.J:
// "ratios of first-stratum to subdominant counts, coverage of longest
// region, kmer_frequency, etc."). The spec fixes this input set but
// leaves the exact scoring weights a calibration parameter; this
// module's MAPQ below is this pack's own calibration, grounded on the
// shape archive_score_se.h names (per-category scoring functions) but
// not on any specific constant from it (the header declares the
// functions without giving their bodies).
type Predictors struct {
	FirstStratumMatches    int
	SubDominantMatches     int
	BestEditDistance       int
	SecondBestEditDistance int // -1 when there is no second-best
	BestEventDistance      int
	SecondBestEventDistance int
	BestSWGScore           int32
	SecondBestSWGScore     int32
	HasSecondBest          bool
	LongestRegionCoverage  float64 // fraction of the read length, [0,1]
	KmerFrequency          float64 // fraction of candidate k-mers shared with the genome background, [0,1]
}

// Predictors derives the classification/MAPQ input set from the
// store's current traces. readLength and the two pipeline-reported
// fractions are supplied by the caller (search/pe) since the store
// itself only tracks decoded alignments, not the upstream region
// profile or k-mer filter state.
func (s *Store) Predictors(readLength int, longestRegionCoverage, kmerFrequency float64) Predictors {
	p := Predictors{LongestRegionCoverage: longestRegionCoverage, KmerFrequency: kmerFrequency, SecondBestEditDistance: -1}
	if len(s.traces) == 0 {
		return p
	}
	best := s.traces[0]
	for _, t := range s.traces[1:] {
		if t.Distance < best.Distance {
			best = t
		}
	}
	p.BestEditDistance = best.EditDistance
	p.BestEventDistance = best.Distance
	p.BestSWGScore = best.SWGScore

	secondDistance := -1
	var second Trace
	for _, t := range s.traces {
		if t.Distance == best.Distance {
			p.FirstStratumMatches++
			continue
		}
		if secondDistance == -1 || t.Distance < secondDistance {
			secondDistance = t.Distance
			second = t
		}
	}
	p.SubDominantMatches = len(s.traces) - p.FirstStratumMatches
	if secondDistance != -1 {
		p.HasSecondBest = true
		p.SecondBestEditDistance = second.EditDistance
		p.SecondBestEventDistance = second.Distance
		p.SecondBestSWGScore = second.SWGScore
	}
	return p
}

// Classify computes the classification of spec.md §4.J's classify():
// one of {unmapped, unique, mmap, tie_indistinguishable, tie_swg_score,
// tie_edit_distance, tie_event_distance}, derived purely from the
// number of matches and the gap between the best and second-best
// stratum.
func Classify(p Predictors) Class {
	if p.FirstStratumMatches == 0 {
		return Unmapped
	}
	if p.FirstStratumMatches == 1 {
		return Unique
	}
	switch {
	case p.BestSWGScore == p.SecondBestSWGScore && p.BestEditDistance == p.SecondBestEditDistance && p.BestEventDistance == p.SecondBestEventDistance:
		return TieIndistinguishable
	case p.BestSWGScore == p.SecondBestSWGScore:
		return TieSWGScore
	case p.BestEditDistance == p.SecondBestEditDistance:
		return TieEditDistance
	case p.BestEventDistance == p.SecondBestEventDistance:
		return TieEventDistance
	default:
		return MMap
	}
}

// MAPQ derives a mapping quality in [0,60] from p's classification,
// the edit-distance gap between the best and second-best matches, the
// longest scaffolded region's coverage of the read, and k-mer
// background frequency. The match counts enter only through the
// classification.
func MAPQ(p Predictors) int {
	switch Classify(p) {
	case Unmapped:
		return 0
	case TieIndistinguishable:
		return 0
	case TieSWGScore, TieEditDistance, TieEventDistance:
		return clampMAPQ(3)
	case MMap:
		gap := 0
		if p.SubDominantMatches > 0 {
			gap = p.BestEditDistance - p.SecondBestEditDistance
			if gap < 0 {
				gap = -gap
			}
		}
		score := 1 + gap*3
		return clampMAPQ(score)
	default: // Unique
		score := 60
		if p.HasSecondBest {
			gap := p.SecondBestEditDistance - p.BestEditDistance
			score -= 30 - min(gap*10, 30)
		}
		score = int(float64(score) * (0.5 + 0.5*p.LongestRegionCoverage))
		score = int(float64(score) * (1 - 0.3*p.KmerFrequency))
		return clampMAPQ(score)
	}
}

func clampMAPQ(v int) int {
	if v < 0 {
		return 0
	}
	if v > 60 {
		return 60
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
