// Package config defines the flat configuration surface of spec.md §6
// and resolves it into the per-package Params structs the rest of this
// module consumes.
//
// Grounded on markduplicates/validate.go for the sequential,
// fail-fast-per-field Validate() idiom (each check returns immediately
// with a plain error describing the one violation found, rather than
// a generic multi-error type this pack's examples never reach for);
// original_source/src/search_parameters.c for the option list itself
// and the "nominal fraction vs. absolute count" instantiation rule
// (0<x<1 is a fraction of read length, ceil(x*L); x>=1 is already an
// absolute count).
package config

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/gemerrors"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/pe"
	"github.com/grailbio/gemmapper/regionprofile"
	"github.com/grailbio/gemmapper/search"
	"github.com/grailbio/gemmapper/swg"
)

// Config is the flat configuration object of spec.md §6, as a CLI
// would assemble it from flags before handing it to the core.
type Config struct {
	MappingMode string // fast|thorough|complete|brute_force|fixed_filtering|test

	SearchMaxMatches int

	// Nominal fractions (0,1) or absolute counts (>=1); resolved to a
	// per-read count via NominalInstantiate once the read length is known.
	CompleteSearchError     float64
	CompleteStrataAfterBest float64
	AlignmentMaxError       float64
	MaxBandwidth            float64
	AlignmentMinIdentity    float64

	UnboundedAlignment string // never|if_unmapped

	AlignmentScaffolding  bool
	MinCoverage           float64
	MinMatchingLength     int
	HomopolymerMinContext int

	CigarCuration bool
	MinEndContext int

	SWGMatch, SWGMismatch, SWGGapOpen, SWGGapExtend int32
	SWGThreshold                                    int32

	QualityModel     string // gem|flat
	QualityFormat    string // ignore|offset_33|offset_64
	QualityThreshold int

	PairedEndSearch       bool
	MinTemplateLength     uint64
	MaxTemplateLength     uint64
	PairOrientation       []string // subset of FR,RF,FF,RR
	PairLayout            []string // subset of separate,overlap,contain
	PairDiscordantSearch  string   // always|if_no_concordant|never
	ShortcutMaxCIWidth    uint64
	ShortcutMinMAPQ       int

	BisulfiteRead string // inferred|1|2|interleaved

	RegionProfileMinimal RegionProfileModel
	RegionProfileBoost   RegionProfileModel
	RegionProfileDelimit RegionProfileModel

	FilteringThreshold    float64
	FilteringRegionFactor float64

	MAPQModel     string // none|gem|classify
	MAPQThreshold int
}

// RegionProfileModel mirrors regionprofile.Model's four tunables as a
// flat, flag-friendly shape.
type RegionProfileModel struct {
	RegionTh     uint64
	MaxSteps     uint64
	DecFactor    uint64
	RegionTypeTh uint64
}

func (m RegionProfileModel) resolve() regionprofile.Model {
	return regionprofile.Model{RegionTh: m.RegionTh, MaxSteps: m.MaxSteps, DecFactor: m.DecFactor, RegionTypeTh: m.RegionTypeTh}
}

// Default returns spec.md §6's implied defaults: fast mapping, a
// generous but bounded search, and the pairing window off (PE must be
// enabled explicitly by the caller).
func Default() Config {
	model := RegionProfileModel{RegionTh: 2, MaxSteps: 2, DecFactor: 2, RegionTypeTh: 2}
	return Config{
		MappingMode:             "fast",
		SearchMaxMatches:        10,
		CompleteSearchError:     0.04,
		CompleteStrataAfterBest: 1,
		AlignmentMaxError:       0.08,
		MaxBandwidth:            0.12,
		AlignmentMinIdentity:    0.8,
		UnboundedAlignment:      "if_unmapped",
		AlignmentScaffolding:    true,
		MinCoverage:             0.2,
		MinMatchingLength:       10,
		HomopolymerMinContext:   2,
		CigarCuration:           true,
		MinEndContext:           2,
		SWGMatch:                1,
		SWGMismatch:             4,
		SWGGapOpen:              6,
		SWGGapExtend:            2,
		SWGThreshold:            0,
		QualityModel:            "gem",
		QualityFormat:           "offset_33",
		QualityThreshold:        26,
		PairDiscordantSearch:    "if_no_concordant",
		BisulfiteRead:           "inferred",
		RegionProfileMinimal:    model,
		RegionProfileBoost:      model,
		RegionProfileDelimit:    model,
		FilteringThreshold:      0.2,
		FilteringRegionFactor:   1,
		MAPQModel:               "gem",
		MAPQThreshold:           0,
	}
}

// NominalInstantiate resolves a nominal fraction-or-count x against a
// read length L: 0<x<1 is a fraction (ceil(x*L)); x>=1 is already an
// absolute count (truncated to int).
func NominalInstantiate(x float64, readLength int) int {
	if x > 0 && x < 1 {
		return int(math.Ceil(x * float64(readLength)))
	}
	return int(x)
}

// Validate checks c for the contradictory or out-of-range options
// spec.md §7 names as ConfigurationError, failing fast on the first
// violation found (the same sequential-check idiom as
// markduplicates/validate.go, just against this core's own option set).
func (c Config) Validate() error {
	switch c.MappingMode {
	case "fast", "thorough", "complete", "brute_force", "fixed_filtering", "test":
	default:
		return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown mapping-mode %q", c.MappingMode))
	}
	if c.SearchMaxMatches < 1 {
		return errors.E(gemerrors.Configuration, fmt.Sprintf("search-max-matches must be >= 1, got %d", c.SearchMaxMatches))
	}
	if c.AlignmentMaxError < 0 {
		return errors.E(gemerrors.Configuration, "alignment-max-error must be non-negative")
	}
	if c.QualityThreshold == 0 && c.QualityModel == "gem" {
		return errors.E(gemerrors.Configuration, "quality-threshold must be > 0 when quality-model is gem")
	}
	switch c.UnboundedAlignment {
	case "never", "if_unmapped":
	default:
		return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown unbounded-alignment %q", c.UnboundedAlignment))
	}
	switch c.QualityModel {
	case "gem", "flat":
	default:
		return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown quality-model %q", c.QualityModel))
	}
	switch c.QualityFormat {
	case "ignore", "offset_33", "offset_64":
	default:
		return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown quality-format %q", c.QualityFormat))
	}
	switch c.MAPQModel {
	case "none", "gem", "classify":
	default:
		return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown mapq-model %q", c.MAPQModel))
	}
	switch c.BisulfiteRead {
	case "inferred", "1", "2", "interleaved":
	default:
		return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown bisulfite-read %q", c.BisulfiteRead))
	}
	if c.PairedEndSearch {
		if c.MinTemplateLength > c.MaxTemplateLength {
			return errors.E(gemerrors.Configuration, fmt.Sprintf("min-template-length (%d) must be <= max-template-length (%d)", c.MinTemplateLength, c.MaxTemplateLength))
		}
		switch c.PairDiscordantSearch {
		case "always", "if_no_concordant", "never":
		default:
			return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown pair-discordant-search %q", c.PairDiscordantSearch))
		}
		for _, o := range c.PairOrientation {
			switch o {
			case "FR", "RF", "FF", "RR":
			default:
				return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown pair-orientation %q", o))
			}
		}
		for _, l := range c.PairLayout {
			switch l {
			case "separate", "overlap", "contain":
			default:
				return errors.E(gemerrors.Configuration, fmt.Sprintf("unknown pair-layout %q", l))
			}
		}
	}
	return nil
}

// searchMode maps MappingMode to search.Mode.
func (c Config) searchMode() search.Mode {
	switch c.MappingMode {
	case "thorough":
		return search.ModeThorough
	case "complete":
		return search.ModeComplete
	case "brute_force":
		return search.ModeBruteForce
	case "fixed_filtering":
		return search.ModeFixedFiltering
	case "test":
		return search.ModeTest
	default:
		return search.ModeFast
	}
}

func (c Config) unboundedAlignment() search.UnboundedAlignment {
	if c.UnboundedAlignment == "if_unmapped" {
		return search.UnboundedIfUnmapped
	}
	return search.UnboundedNever
}

// SearchParams resolves c into a search.Params for a read of the given
// length, instantiating every nominal fraction/count field.
func (c Config) SearchParams(readLength int, allowed func(fmindex.Code) bool) search.Params {
	return search.Params{
		Mode:                    c.searchMode(),
		RegionModelMinimal:      c.RegionProfileMinimal.resolve(),
		RegionModelBoost:        c.RegionProfileBoost.resolve(),
		RegionModelDelimit:      c.RegionProfileDelimit.resolve(),
		ProperLength:            0,
		MaxBandwidth:            NominalInstantiate(c.MaxBandwidth, readLength),
		CompleteSearchError:     NominalInstantiate(c.CompleteSearchError, readLength),
		CompleteStrataAfterBest: NominalInstantiate(c.CompleteStrataAfterBest, readLength),
		MaxReportedMatches:      c.SearchMaxMatches,
		MinMatchDistance:        0,
		UnboundedAlignment:      c.unboundedAlignment(),
		SWGPenalties:            swg.Penalties{Match: c.SWGMatch, Mismatch: c.SWGMismatch, GapOpen: c.SWGGapOpen, GapExtend: c.SWGGapExtend},
		SWGThreshold:            c.SWGThreshold,
		Allowed:                 allowed,
	}
}

// PEParams resolves c into a pe.Params for a pair whose ends have the
// given lengths.
func (c Config) PEParams(len1, len2 int, allowed func(fmindex.Code) bool) pe.Params {
	params := pe.Params{
		End1:               c.SearchParams(len1, allowed),
		End2:               c.SearchParams(len2, allowed),
		MinTemplateLength:  c.MinTemplateLength,
		MaxTemplateLength:  c.MaxTemplateLength,
		Discordant:         discordantMode(c.PairDiscordantSearch),
		ShortcutMaxCIWidth: c.ShortcutMaxCIWidth,
		ShortcutMinMAPQ:    c.ShortcutMinMAPQ,
	}
	if len(c.PairOrientation) > 0 {
		params.Orientations = make(map[pe.Orientation]bool, len(c.PairOrientation))
		for _, o := range c.PairOrientation {
			params.Orientations[orientationOf(o)] = true
		}
	}
	if len(c.PairLayout) > 0 {
		params.Layouts = make(map[pe.Layout]bool, len(c.PairLayout))
		for _, l := range c.PairLayout {
			params.Layouts[layoutOf(l)] = true
		}
	}
	return params
}

// PatternParams resolves c into a pattern.Params for a read of the
// given length, instantiating its nominal error/bandwidth fields.
func (c Config) PatternParams(readLength int) pattern.Params {
	return pattern.Params{
		QualityModel:     qualityModelOf(c.QualityModel),
		QualityFormat:    qualityFormatOf(c.QualityFormat),
		QualityThreshold: c.QualityThreshold,
		NominalError:     NominalInstantiate(c.AlignmentMaxError, readLength),
		NominalBandwidth: NominalInstantiate(c.MaxBandwidth, readLength),
	}
}

func qualityModelOf(s string) pattern.QualityModel {
	switch s {
	case "flat":
		return pattern.QualityFlat
	case "gem":
		return pattern.QualityGem
	default:
		return pattern.QualityIgnore
	}
}

func qualityFormatOf(s string) pattern.QualityFormat {
	switch s {
	case "offset_64":
		return pattern.QualityFormatOffset64
	case "offset_33":
		return pattern.QualityFormatOffset33
	default:
		return pattern.QualityFormatIgnore
	}
}

func discordantMode(s string) pe.DiscordantSearch {
	switch s {
	case "always":
		return pe.DiscordantAlways
	case "never":
		return pe.DiscordantNever
	default:
		return pe.DiscordantIfNoConcordant
	}
}

func orientationOf(s string) pe.Orientation {
	switch s {
	case "RF":
		return pe.RF
	case "FF":
		return pe.FF
	case "RR":
		return pe.RR
	default:
		return pe.FR
	}
}

func layoutOf(s string) pe.Layout {
	switch s {
	case "overlap":
		return pe.Overlap
	case "contain":
		return pe.Contain
	default:
		return pe.Separate
	}
}
