// Package regionprofile implements the region profile of spec.md
// §4.C: an ordered, non-overlapping partition of a pattern's key into
// regions, each queried against the FM-index and scheduled with a
// filtering degree that later drives package neighborhood/candidates.
package regionprofile

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/gemmapper/fmindex"
)

// Type classifies a region by its final BWT-interval selectivity, or
// as a structural gap induced by wildcard characters (spec.md §4.C).
type Type int

const (
	Unique Type = iota
	Standard
	Gap
)

func (t Type) String() string {
	switch t {
	case Unique:
		return "unique"
	case Standard:
		return "standard"
	case Gap:
		return "gap"
	default:
		return "unknown"
	}
}

// Degree is the filtering degree scheduled for a region: how many
// errors candidate generation should tolerate when consuming it.
type Degree int

const (
	DegreeIgnore Degree = iota // 0: ignore
	DegreeExact                // 1: use the queried interval directly
	DegreeOneError             // 2: at most 1 error (neighborhood search)
	DegreeTwoErrors            // 3: at most 2 errors
)

// Region is one partition element (original_source's region_search_t,
// per spec §9's Open-Question resolution: the
// {begin,end,type,max,min,hi,lo,degree} form, with NS limits derived
// from Degree alone rather than carried as separate fields).
type Region struct {
	Begin, End int
	Type       Type
	Max, Min   int // scheduled mismatch bracket
	Lo, Hi     uint64
	Degree     Degree
}

func (r Region) Length() int { return r.End - r.Begin }

// Candidates is the number of exact candidate positions the region's
// queried interval represents (hi-lo).
func (r Region) Candidates() uint64 {
	if r.Hi <= r.Lo {
		return 0
	}
	return r.Hi - r.Lo
}

// Model is a named tuple of region-profile generation thresholds
// (original_source's region_profile_model_t), e.g. rp_minimal,
// rp_boost, rp_delimit (spec.md §6). Each is an independent value; no
// aliasing between them is introduced (spec §9 Open Question).
type Model struct {
	RegionTh     uint64 // enough selectivity: hi-lo <= RegionTh closes a region
	MaxSteps     uint64 // give up extending after this many characters without improving by DecFactor
	DecFactor    uint64
	RegionTypeTh uint64 // hi-lo <= RegionTypeTh classifies Unique, else Standard
}

func isAllowed(c fmindex.Code) bool { return c.IsCanonical() }

// GenerateAdaptive walks key from right to left, extending a BWT
// interval with idx.IntervalExtend, per spec.md §4.C's adaptive
// generation rule. A region closes when its interval becomes
// selective enough, when exploration has stalled for MaxSteps
// characters without the interval shrinking by DecFactor, or when the
// key is exhausted; wildcards always close the current region and
// start a gap.
func GenerateAdaptive(idx *fmindex.Index, key []fmindex.Code, model Model, maxRegions int) []Region {
	var regions []Region
	n := len(key)
	end := n
	for end > 0 {
		if maxRegions > 0 && len(regions) >= maxRegions {
			break
		}
		if !isAllowed(key[end-1]) {
			// Gap: skip every contiguous run of disallowed characters.
			begin := end
			for begin > 0 && !isAllowed(key[begin-1]) {
				begin--
			}
			regions = append(regions, Region{Begin: begin, End: end, Type: Gap})
			end = begin
			continue
		}

		decFactor := model.DecFactor
		if decFactor == 0 {
			decFactor = 1
		}
		cur := fmindex.Interval{Lo: 0, Hi: idx.Length()}
		begin := end
		lastImprove := end
		bestCount := idx.Length()
		for begin > 0 {
			if !isAllowed(key[begin-1]) {
				break
			}
			next := idx.IntervalExtend(cur, key[begin-1])
			if next.Empty() {
				break
			}
			cur = next
			begin--
			if cur.Count()*decFactor <= bestCount {
				bestCount = cur.Count()
				lastImprove = begin
			}
			if cur.Count() <= model.RegionTh {
				break
			}
			if uint64(lastImprove-begin) >= model.MaxSteps && model.MaxSteps > 0 {
				break
			}
		}
		if begin == end {
			// A single disallowed character masquerading as allowed
			// (shouldn't happen, isAllowed was already checked) — avoid an
			// infinite loop defensively.
			log.Error.Printf("regionprofile: adaptive generation made no progress at position %d", end)
			break
		}
		r := Region{Begin: begin, End: end, Lo: cur.Lo, Hi: cur.Hi}
		r.Type = classify(r, model)
		regions = append(regions, r)
		end = begin
	}
	reverseRegions(regions)
	return regions
}

func classify(r Region, model Model) Type {
	if r.Candidates() <= model.RegionTypeTh {
		return Unique
	}
	return Standard
}

func reverseRegions(regions []Region) {
	for i, j := 0, len(regions)-1; i < j; i, j = i+1, j-1 {
		regions[i], regions[j] = regions[j], regions[i]
	}
}

// GenerateFixed produces a deterministic partition of key into windows
// of regionLength characters (the last extended to cover any
// remainder), then issues one backward search per region —
// spec.md §4.C's "fixed" family, used when search must be
// deterministic across implementations (e.g. GPU-offloading).
//
// Grounded on original_source/src/filtering/region_profile_fixed.c:
// region_profile_generate_fixed_partition followed by
// region_profile_generate_fixed_query.
func GenerateFixed(idx *fmindex.Index, key []fmindex.Code, regionLength int) []Region {
	if regionLength <= 0 {
		regionLength = len(key)
	}
	var regions []Region
	begin := 0
	length := 0
	for i := 0; i < len(key); i++ {
		if !isAllowed(key[i]) {
			begin = i + 1
			length = 0
			continue
		}
		length++
		if length == regionLength {
			regions = append(regions, Region{Begin: begin, End: i + 1})
			begin = i + 1
			length = 0
		}
	}
	if length > 0 {
		if n := len(regions); n > 0 && regions[n-1].End == begin {
			regions[n-1].End = len(key)
		} else {
			regions = append(regions, Region{Begin: begin, End: len(key)})
		}
	}

	for i := range regions {
		queryFixedRegion(idx, key, &regions[i])
	}
	return regions
}

// queryFixedRegion runs a single backward search over [r.Begin,r.End),
// recording the resulting interval and how many characters it took to
// become empty (used as the region's degree, per the original's "FIXME
// Field nzSteps" comment — carried over verbatim in spirit as the
// degree assignment below).
func queryFixedRegion(idx *fmindex.Index, key []fmindex.Code, r *Region) {
	lo, hi := uint64(0), idx.Length()
	degree := 0
	for pos := r.End - 1; pos >= r.Begin; pos-- {
		iv := idx.IntervalExtend(fmindex.Interval{Lo: lo, Hi: hi}, key[pos])
		lo, hi = iv.Lo, iv.Hi
		if hi-lo == 0 {
			degree = r.End - pos
			break
		}
	}
	if degree == 0 {
		degree = r.End - r.Begin
	}
	r.Type = Standard
	r.Lo, r.Hi = lo, hi
	r.Degree = Degree(degree)
	if r.Degree > DegreeTwoErrors {
		r.Degree = DegreeTwoErrors
	}
	r.Min, r.Max = mismatchBracket(r.Degree)
}

// FillGaps inserts explicit Gap regions covering any key ranges the
// generated regions don't already cover (spec.md §4.C "fill_gaps").
func FillGaps(regions []Region, keyLength int) []Region {
	sorted := append([]Region(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })

	var filled []Region
	cursor := 0
	for _, r := range sorted {
		if r.Begin > cursor {
			filled = append(filled, Region{Begin: cursor, End: r.Begin, Type: Gap})
		}
		filled = append(filled, r)
		if r.End > cursor {
			cursor = r.End
		}
	}
	if cursor < keyLength {
		filled = append(filled, Region{Begin: cursor, End: keyLength, Type: Gap})
	}
	return filled
}

// MergeSmallRegions fuses any region shorter than properLength into an
// adjacent neighbor, using only region metadata — no further index
// queries (spec.md §4.C "merge_small_regions"). The merged region
// keeps whichever of the two intervals is wider (has more
// candidates), the looser of the two bounds.
func MergeSmallRegions(regions []Region, properLength int) []Region {
	if len(regions) == 0 {
		return regions
	}
	merged := append([]Region(nil), regions[0])
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.Length() < properLength || last.Length() < properLength {
			last.End = r.End
			if r.Candidates() > last.Candidates() {
				last.Lo, last.Hi = r.Lo, r.Hi
			}
			if r.Type == Gap && last.Type != Gap {
				// A gap absorbed into a non-gap neighbor stops being a gap;
				// a non-gap absorbed into a gap likewise loses gap status,
				// since the fused range now contains searchable characters.
			} else if last.Type == Gap && r.Type != Gap {
				last.Type = r.Type
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// mismatchBracket derives the region's [Min,Max] scheduled mismatch
// bracket from its Degree: DegreeExact tolerates 0 mismatches,
// DegreeOneError up to 1, DegreeTwoErrors up to 2.
func mismatchBracket(d Degree) (min, max int) {
	switch d {
	case DegreeOneError:
		return 0, 1
	case DegreeTwoErrors:
		return 0, 2
	default:
		return 0, 0
	}
}

// ScheduleStatic assigns DegreeExact to every non-gap region (spec.md
// §4.C "static schedule (fast mode)").
func ScheduleStatic(regions []Region) {
	for i := range regions {
		if regions[i].Type != Gap {
			regions[i].Degree = DegreeExact
			regions[i].Min, regions[i].Max = mismatchBracket(DegreeExact)
		}
	}
}

// ScheduleDynamic assigns degrees as a function of remaining errors,
// regions left, and a sensibility length (filtering_region_factor *
// proper_length), per spec.md §4.C's "dynamic schedule": regions are
// first sorted by estimated mappability (ascending candidate count, a
// proxy for higher selectivity being more informative), and each gets
// as much degree as the remaining error budget allows, spending one
// unit of budget per degree level above DegreeExact.
func ScheduleDynamic(regions []Region, errorsAllowed int, sensibilityLength int) {
	order := make([]int, 0, len(regions))
	for i, r := range regions {
		if r.Type != Gap {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return regions[order[a]].Candidates() < regions[order[b]].Candidates()
	})

	remaining := errorsAllowed
	for _, i := range order {
		r := &regions[i]
		if remaining <= 0 || r.Length() < sensibilityLength {
			r.Degree = DegreeExact
			continue
		}
		switch {
		case remaining >= 2:
			r.Degree = DegreeTwoErrors
			remaining -= 2
		default:
			r.Degree = DegreeOneError
			remaining--
		}
		r.Min, r.Max = mismatchBracket(r.Degree)
	}
}
