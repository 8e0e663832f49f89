// Package search implements the SE control loop of spec.md §4.K: the
// state machine (S0 begin -> S1 exact_filtering_adaptive -> S2
// neighborhood_search -> S3 align_local -> S4 end) that sequences
// region profiling (package regionprofile), candidate generation
// (packages neighborhood/fmindex) and filtering (package candidates)
// for one read, deciding when enough has been found to stop early.
//
// Grounded on original_source/include/region_profile.h and
// filtering_region.h for the per-stage data this loop threads through,
// and on archive_search_pe.c's state-machine shape (a small enum, one
// function per transition) for how this pack expresses a control loop
// in Go -- no archive_search_se.c survived into original_source/, so
// the SE states are named directly from spec.md §4.K's own state list.
package search

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/gemmapper/candidates"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/matches"
	"github.com/grailbio/gemmapper/neighborhood"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/regionprofile"
	"github.com/grailbio/gemmapper/swg"
)

// State is one node of the SE control loop's state machine (spec.md §4.K).
type State int

const (
	StateBegin State = iota
	StateExactFilteringAdaptive
	StateNeighborhoodSearch
	StateAlignLocal
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateBegin:
		return "begin"
	case StateExactFilteringAdaptive:
		return "exact_filtering_adaptive"
	case StateNeighborhoodSearch:
		return "neighborhood_search"
	case StateAlignLocal:
		return "align_local"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Mode is mapping_mode (spec.md §6): S0 uses it to pick the region
// profile model and S1 uses it to pick a static or dynamic degree
// schedule.
type Mode int

const (
	ModeFast Mode = iota
	ModeThorough
	ModeComplete
	ModeBruteForce
	ModeFixedFiltering
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeThorough:
		return "thorough"
	case ModeComplete:
		return "complete"
	case ModeBruteForce:
		return "brute_force"
	case ModeFixedFiltering:
		return "fixed_filtering"
	case ModeTest:
		return "test"
	default:
		return "unknown"
	}
}

// UnboundedAlignment is the unbounded_alignment option gating S3.
type UnboundedAlignment int

const (
	UnboundedNever UnboundedAlignment = iota
	UnboundedIfUnmapped
)

// Params bundles the subset of spec.md §6's configuration surface this
// loop consumes. Nominal fractions are assumed already resolved to
// per-read absolute counts by the caller, the way package pattern
// resolves NominalError/NominalBandwidth before Build runs.
type Params struct {
	Mode               Mode
	RegionModelMinimal regionprofile.Model
	RegionModelBoost   regionprofile.Model
	RegionModelDelimit regionprofile.Model
	MaxRegions         int
	// ProperLength is filtering_region_factor's merge threshold for
	// regionprofile.MergeSmallRegions; <= 0 defaults to a quarter of
	// the key length.
	ProperLength            int
	MaxBandwidth            int
	CompleteSearchError     int
	CompleteStrataAfterBest int
	MaxReportedMatches      int
	MinMatchDistance        int
	UnboundedAlignment      UnboundedAlignment
	SWGPenalties            swg.Penalties
	SWGThreshold            int32
	Allowed                 func(fmindex.Code) bool
}

func (p Params) modelForMode() regionprofile.Model {
	switch p.Mode {
	case ModeComplete, ModeBruteForce:
		return p.RegionModelDelimit
	case ModeThorough:
		return p.RegionModelBoost
	default:
		return p.RegionModelMinimal
	}
}

func (p Params) properLength(keyLength int) int {
	if p.ProperLength > 0 {
		return p.ProperLength
	}
	if keyLength < 4 {
		return keyLength
	}
	return keyLength / 4
}

// Counters is the thread-local profiling surface spec.md §5 names
// ("shared, mutable process state") and original_source's
// profiler_timer.c sums at shutdown. A worker goroutine accumulates
// into the same *Counters across every read it processes; Merge folds
// another goroutine's totals in at shutdown.
type Counters struct {
	RegionsGenerated        int
	ExactCandidates         int
	NeighborhoodInvocations int
	NeighborhoodHits        int
	CandidatesVerified      int
	CandidatesAligned       int
}

func (c *Counters) Merge(other Counters) {
	c.RegionsGenerated += other.RegionsGenerated
	c.ExactCandidates += other.ExactCandidates
	c.NeighborhoodInvocations += other.NeighborhoodInvocations
	c.NeighborhoodHits += other.NeighborhoodHits
	c.CandidatesVerified += other.CandidatesVerified
	c.CandidatesAligned += other.CandidatesAligned
}

// Result is the outcome of one Run/RunReverseComplement.
type Result struct {
	Store              *matches.Store
	MaxCompleteStratum int
	Class              matches.Class
	FinalState         State
}

// Run executes the SE control loop for pat -- the pattern of the read
// as it reads on the indexed (forward) strand -- against idx,
// reporting into a fresh matches.Store.
func Run(idx *fmindex.Index, locator *fmindex.Locator, pat *pattern.Pattern, params Params, counters *Counters) Result {
	return run(idx, locator, pat, params, counters, false, fmindex.BSNone)
}

// RunReverseComplement runs the control loop for rcPat, the
// reverse-complement of the same read, against the same (forward-only)
// index. Matches are reported with emulatedRCSearch=true so
// matches.Store reverses their CIGAR back onto the forward strand --
// spec.md §9's emulated-reverse-complement note, used whenever the
// index was not built with indexed_complement.
func RunReverseComplement(idx *fmindex.Index, locator *fmindex.Locator, rcPat *pattern.Pattern, params Params, counters *Counters) Result {
	return run(idx, locator, rcPat, params, counters, true, fmindex.BSNone)
}

func run(idx *fmindex.Index, locator *fmindex.Locator, pat *pattern.Pattern, params Params, counters *Counters, emulatedRCSearch bool, bsStrand fmindex.BSStrand) Result {
	store := matches.NewStore(locator)
	if pat.IsNull() {
		return Result{Store: store, FinalState: StateEnd, Class: matches.Unmapped}
	}

	model := params.modelForMode()
	maxError := params.CompleteSearchError
	candStore := candidates.NewStore(idx, params.MaxBandwidth)

	state := StateExactFilteringAdaptive
	regions := runAdaptiveStage(idx, pat, params, model, maxError, candStore, counters)
	verifyAndAlign(candStore, pat, maxError, params, store, counters, emulatedRCSearch, bsStrand)
	maxError = clampMaxError(store, maxError, params.CompleteStrataAfterBest)
	mcs := maxError + pat.NumWildcards

	if store.Len() == 0 && params.CompleteSearchError > 0 {
		state = StateNeighborhoodSearch
		runNeighborhoodStage(idx, pat, regions, maxError, candStore, counters)
		verifyAndAlign(candStore, pat, maxError, params, store, counters, emulatedRCSearch, bsStrand)
		maxError = clampMaxError(store, maxError, params.CompleteStrataAfterBest)
		mcs = maxError + pat.NumWildcards
	}

	if store.Len() == 0 && !fulfilled(store, mcs, params) && params.UnboundedAlignment == UnboundedIfUnmapped {
		state = StateAlignLocal
		runLocalStage(candStore, pat, params, store, counters, emulatedRCSearch, bsStrand)
	}

	state = StateEnd
	finalize(store, pat, regions)

	coverage := longestCoverage(regions, len(pat.RegularKey))
	predictors := store.Predictors(len(pat.RegularKey), coverage, 0)

	return Result{
		Store:              store,
		MaxCompleteStratum: mcs,
		Class:              matches.Classify(predictors),
		FinalState:         state,
	}
}

// runAdaptiveStage is S1 exact_filtering_adaptive: build the adaptive
// region profile, schedule filtering degrees, generate candidates for
// every non-gap region, then decode and compose them into filtering
// regions.
func runAdaptiveStage(idx *fmindex.Index, pat *pattern.Pattern, params Params, model regionprofile.Model, maxError int, candStore *candidates.Store, counters *Counters) []regionprofile.Region {
	regions := regionprofile.GenerateAdaptive(idx, pat.Key, model, params.MaxRegions)
	regions = regionprofile.FillGaps(regions, len(pat.Key))
	regions = regionprofile.MergeSmallRegions(regions, params.properLength(len(pat.Key)))

	if params.Mode == ModeFast {
		regionprofile.ScheduleStatic(regions)
	} else {
		regionprofile.ScheduleDynamic(regions, maxError, params.properLength(len(pat.Key)))
	}
	counters.RegionsGenerated += len(regions)

	generateCandidates(idx, pat, regions, candStore, counters)

	candStore.DecodeFilteringPositions(len(pat.Key))
	candStore.ComposeRegions()
	return regions
}

// runNeighborhoodStage is S2 neighborhood_search: when the first
// stratum is still empty, run neighborhood search on every non-gap
// region with the remaining error budget, folding the results into the
// same candidate store.
func runNeighborhoodStage(idx *fmindex.Index, pat *pattern.Pattern, regions []regionprofile.Region, maxError int, candStore *candidates.Store, counters *Counters) {
	for _, r := range regions {
		if r.Type == regionprofile.Gap {
			continue
		}
		counters.NeighborhoodInvocations++
		for _, res := range neighborhood.Search(idx, pat.Key[r.Begin:r.End], maxError) {
			candStore.AddInterval(res.Interval, r.Begin, r.End, res.Distance)
			counters.NeighborhoodHits += int(res.Interval.Count())
		}
	}
	candStore.DecodeFilteringPositions(len(pat.Key))
	candStore.ComposeRegions()
}

// generateCandidates turns each scheduled region into filtering
// positions: an exact-degree region hands its own queried interval
// straight to AddInterval; a bounded-error region is resolved through
// neighborhood search over its own key slice, tagged with the BWT
// interval's actual edit distance rather than 0.
func generateCandidates(idx *fmindex.Index, pat *pattern.Pattern, regions []regionprofile.Region, candStore *candidates.Store, counters *Counters) {
	for _, r := range regions {
		if r.Type == regionprofile.Gap {
			continue
		}
		switch r.Degree {
		case regionprofile.DegreeIgnore:
			continue
		case regionprofile.DegreeExact:
			candStore.AddInterval(fmindex.Interval{Lo: r.Lo, Hi: r.Hi}, r.Begin, r.End, 0)
			counters.ExactCandidates += int(r.Candidates())
		default:
			counters.NeighborhoodInvocations++
			for _, res := range neighborhood.Search(idx, pat.Key[r.Begin:r.End], r.Max) {
				candStore.AddInterval(res.Interval, r.Begin, r.End, res.Distance)
				counters.NeighborhoodHits += int(res.Interval.Count())
			}
		}
	}
}

// verifyAndAlign runs §4.F ops 5-6 over every pending/accepted
// filtering region produced so far.
func verifyAndAlign(candStore *candidates.Store, pat *pattern.Pattern, maxError int, params Params, store *matches.Store, counters *Counters, emulatedRCSearch bool, bsStrand fmindex.BSStrand) {
	candStore.VerifyCandidates(pat, maxError)
	counters.CandidatesVerified += len(candStore.Regions())
	before := store.Len()
	if err := candStore.AlignCandidates(pat, params.Allowed, params.SWGPenalties, params.MaxBandwidth, params.SWGThreshold, store, emulatedRCSearch, bsStrand); err != nil {
		log.Error.Printf("search: align_candidates: %v", err)
	}
	counters.CandidatesAligned += store.Len() - before
}

// runLocalStage is S3 align_local: promote the best-scoring verified-
// but-discarded regions (lowest BPM minimum-error bound first) back to
// accepted, then SWG-align them with a widened band, the closest this
// module comes to original_source's unbounded/local alignment pass
// over "best verified regions" -- spec.md §4.K leaves the exact
// selection rule unspecified beyond that phrase; this pack's own
// reading is recorded in DESIGN.md.
func runLocalStage(candStore *candidates.Store, pat *pattern.Pattern, params Params, store *matches.Store, counters *Counters, emulatedRCSearch bool, bsStrand fmindex.BSStrand) {
	maxCount := params.MaxReportedMatches
	if maxCount <= 0 {
		maxCount = 1
	}
	promoteBestDiscarded(candStore.Regions(), maxCount)

	wideBand := params.MaxBandwidth * 4
	if wideBand < params.MaxBandwidth {
		wideBand = params.MaxBandwidth
	}
	before := store.Len()
	if err := candStore.AlignCandidates(pat, params.Allowed, params.SWGPenalties, wideBand, params.SWGThreshold, store, emulatedRCSearch, bsStrand); err != nil {
		log.Error.Printf("search: align_local: %v", err)
	}
	counters.CandidatesAligned += store.Len() - before
}

func promoteBestDiscarded(regions []candidates.FilteringRegion, maxCount int) {
	type ranked struct {
		index int
		bound int
	}
	var discarded []ranked
	for i, r := range regions {
		if r.Status == candidates.StatusVerifiedDiscarded {
			discarded = append(discarded, ranked{i, r.AlignDistanceMinBound})
		}
	}
	sort.Slice(discarded, func(a, b int) bool { return discarded[a].bound < discarded[b].bound })
	if len(discarded) > maxCount {
		discarded = discarded[:maxCount]
	}
	for _, d := range discarded {
		regions[d.index].Status = candidates.StatusAccepted
	}
}

// fulfilled is spec.md §4.K's early-termination predicate: enough
// matches at a good enough stratum to stop looking.
func fulfilled(store *matches.Store, mcs int, params Params) bool {
	return store.Len() >= params.MaxReportedMatches && mcs >= params.CompleteStrataAfterBest+params.MinMatchDistance
}

// clampMaxError is spec.md §4.K's "MAX-error adjustment": once any
// match with edit distance d is found, the current max search error is
// clamped to d + complete_strata_after_best.
func clampMaxError(store *matches.Store, maxError, completeStrataAfterBest int) int {
	best := -1
	for _, t := range store.Traces() {
		if best == -1 || t.EditDistance < best {
			best = t.EditDistance
		}
	}
	if best == -1 {
		return maxError
	}
	if clamp := best + completeStrataAfterBest; clamp < maxError {
		return clamp
	}
	return maxError
}

// finalize is S4 end: sort by distance and stamp every surviving trace
// with this read's single MAPQ value (spec.md §4.J: MAPQ is a function
// of the whole match set, not computed per trace).
func finalize(store *matches.Store, pat *pattern.Pattern, regions []regionprofile.Region) {
	store.SortByDistance()
	coverage := longestCoverage(regions, len(pat.RegularKey))
	// This pack does not track a genome-wide k-mer background
	// frequency (that would need a whole-genome k-mer histogram from
	// the out-of-scope index builder, spec.md §1); 0 is the neutral,
	// no-penalty value for matches.MAPQ's kmer_frequency input.
	predictors := store.Predictors(len(pat.RegularKey), coverage, 0)
	mapq := matches.MAPQ(predictors)
	traces := store.Traces()
	for i := range traces {
		traces[i].MAPQ = mapq
	}
}

func longestCoverage(regions []regionprofile.Region, keyLength int) float64 {
	if keyLength == 0 {
		return 0
	}
	longest := 0
	for _, r := range regions {
		if r.Type == regionprofile.Gap {
			continue
		}
		if l := r.Length(); l > longest {
			longest = l
		}
	}
	return float64(longest) / float64(keyLength)
}
