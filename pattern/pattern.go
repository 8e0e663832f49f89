// Package pattern implements the pattern builder of spec.md §4.B: it
// turns one read's raw bases (and optional qualities) into the
// per-read Pattern object every later search stage consumes, deriving
// the quality mask, the wildcard/low-quality counts that drive the
// effective error budget, the optional run-length view, and the
// precompiled BPM/k-mer helpers.
package pattern

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/gemmapper/bpm"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/gemerrors"
	"github.com/grailbio/gemmapper/kmerfilter"
)

// Params carries the actual-parameters (spec.md §6) the builder needs:
// the nominal error/bandwidth budgets (already resolved from a
// fraction of read length to an absolute count by the caller) and the
// quality model configuration.
type Params struct {
	QualityModel     QualityModel
	QualityFormat    QualityFormat
	QualityThreshold int
	NominalError     int
	NominalBandwidth int
	RunLength        bool
	MinTile          int
}

// Pattern is one read's compiled search input (spec.md §3).
type Pattern struct {
	// RegularKey is the full-length encoded key before any RL
	// collapsing; quality_mask and CIGAR emission always refer back to
	// this coordinate space.
	RegularKey []fmindex.Code
	// Key is the key every search stage actually queries: equal to
	// RegularKey unless RunLength is set, in which case it is the
	// RL-encoded view.
	Key []fmindex.Code

	QualityMask []QualityClass // nil if no quality-aware budgeting

	NumWildcards               int
	NumLowQualityBases         int
	MaxEffectiveFilteringError int
	MaxEffectiveBandwidth      int

	RunLength bool
	RLRuns    []uint8 // nil unless RunLength

	// BPM and KMer are nil when MaxEffectiveFilteringError == 0: per
	// spec.md §4.B, only exact lookup is permitted in that case, and
	// building them would be wasted work.
	BPM  *bpm.Pattern
	KMer *kmerfilter.Profile
}

// IsNull reports whether p represents spec.md §4.B's failure case: an
// empty key, or a key of only wildcards. Build never returns such a
// Pattern; IsNull exists for callers that retain a Pattern across a
// clear/reuse cycle (the teacher's pattern_clear/pattern_is_null
// idiom, adapted here as a method instead of a zero-length sentinel).
func (p *Pattern) IsNull() bool {
	return p == nil || len(p.RegularKey) == 0
}

// Build derives a Pattern from raw bases and optional qualities (qual
// may be nil). It returns a gemerrors.Pattern-kind error — recoverable
// per spec.md §7, meaning the caller should report the read unmapped
// rather than abort — when the key is empty or entirely wildcards.
func Build(bases []byte, qual []byte, params Params) (*Pattern, error) {
	if len(bases) == 0 {
		return nil, errors.E(gemerrors.Pattern, "empty read key")
	}

	key := make([]fmindex.Code, len(bases))
	var mask []QualityClass
	doQuality := params.QualityModel != QualityIgnore && len(qual) == len(bases) && len(qual) > 0
	if doQuality {
		mask = make([]QualityClass, len(bases))
	}

	numWildcards := 0
	numLowQuality := 0
	for i, b := range bases {
		c := fmindex.Encode(b)
		key[i] = c
		nonCanonical := !c.IsCanonical()
		if nonCanonical {
			numWildcards++
		}
		if doQuality {
			phred := decodeQual(qual[i], params.QualityFormat)
			class := classifyBase(phred, params.QualityModel, params.QualityThreshold)
			mask[i] = class
			if nonCanonical {
				numLowQuality++
			} else if class != QualityReal {
				numLowQuality++
			}
		}
	}
	if numWildcards == len(bases) {
		return nil, errors.E(gemerrors.Pattern, "key contains only wildcards")
	}

	p := &Pattern{
		RegularKey:         key,
		Key:                key,
		QualityMask:        mask,
		NumWildcards:       numWildcards,
		NumLowQualityBases: numLowQuality,
	}
	p.MaxEffectiveFilteringError = params.NominalError + numLowQuality
	p.MaxEffectiveBandwidth = params.NominalBandwidth + numLowQuality

	if params.RunLength {
		rlKey, rlRuns := runLengthEncode(key)
		p.Key = rlKey
		p.RLRuns = rlRuns
		p.RunLength = true
	}

	if p.MaxEffectiveFilteringError > 0 {
		minTile := params.MinTile
		if minTile <= 0 {
			minTile = bpm.DefaultMinTile
		}
		p.BPM = bpm.Compile(p.Key, p.MaxEffectiveFilteringError, minTile)
		p.KMer = kmerfilter.Build(p.Key)
	}

	return p, nil
}
