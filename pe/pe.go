// Package pe implements the paired-end control loop of spec.md §4.L: two
// interleaved SE searches (package search) around a template-length model,
// with an extension subroutine (§4.F op 7 + §4.I) used both as a shortcut
// around a full end/2 search and as a recovery rescue for an ambiguous end.
//
// Grounded on original_source/src/archive_search_pe.c for the state
// vocabulary and, specifically, for the convention this module follows
// throughout: extension is always performed against the forward strand
// windows the anchor resolves to (archive_search_pe.c: "All extensions are
// done against the forward strand ... matches contain all the strand
// needed info"), which is exactly how candidates.Store.ExtendMatch and
// matches.Store.AddMatchTrace already behave for this pack's SE path.
package pe

import (
	"context"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/gemmapper/candidates"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/matches"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/search"
)

// State is one state of the PE0..PE5 control loop of spec.md §4.L.
type State int

const (
	StateBegin State = iota
	StateSearchEnd1
	StateSearchEnd2
	StateRecovery
	StateFindPairs
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateBegin:
		return "begin"
	case StateSearchEnd1:
		return "search_end1"
	case StateSearchEnd2:
		return "search_end2"
	case StateRecovery:
		return "recovery"
	case StateFindPairs:
		return "find_pairs"
	default:
		return "end"
	}
}

// Orientation is a configured pair_orientation value.
type Orientation int

const (
	FR Orientation = iota
	RF
	FF
	RR
)

func (o Orientation) String() string {
	switch o {
	case FR:
		return "FR"
	case RF:
		return "RF"
	case FF:
		return "FF"
	default:
		return "RR"
	}
}

// Layout is a configured pair_layout value.
type Layout int

const (
	Separate Layout = iota
	Overlap
	Contain
)

func (l Layout) String() string {
	switch l {
	case Separate:
		return "separate"
	case Overlap:
		return "overlap"
	default:
		return "contain"
	}
}

// DiscordantSearch is pair_discordant_search.
type DiscordantSearch int

const (
	DiscordantAlways DiscordantSearch = iota
	DiscordantIfNoConcordant
	DiscordantNever
)

// Params bundles the per-end SE search parameters with the pairing model.
type Params struct {
	End1, End2 search.Params

	MinTemplateLength, MaxTemplateLength uint64
	Orientations                         map[Orientation]bool
	Layouts                              map[Layout]bool
	Discordant                           DiscordantSearch

	// ShortcutMaxCIWidth bounds MaxTemplateLength-MinTemplateLength for the
	// PE1 shortcut extension to be attempted at all; 0 disables the
	// shortcut (every read falls through to a full end/2 search).
	ShortcutMaxCIWidth uint64
	// ShortcutMinMAPQ is the end/1 MAPQ floor spec.md calls "high
	// confidence" before a shortcut extension is attempted.
	ShortcutMinMAPQ int
}

func (p Params) tightTemplateCI() bool {
	return p.ShortcutMaxCIWidth > 0 && p.MaxTemplateLength >= p.MinTemplateLength &&
		p.MaxTemplateLength-p.MinTemplateLength <= p.ShortcutMaxCIWidth
}

// Pair is one reported end/1-end/2 assignment (spec.md §3 "pair
// assignment").
type Pair struct {
	End1, End2     matches.Trace
	TemplateLength uint64
	Orientation    Orientation
	Layout         Layout
	Concordant     bool
	// Extended marks a pair in which at least one mate was rescued via the
	// extension subroutine (shortcut or recovery) rather than a full SE
	// search; spec.md's pair_extended is a per-mate flag, but this module
	// does not thread per-trace extension provenance through matches.Trace,
	// so it is approximated here at pair granularity -- every pair from a
	// Run() call in which any extension fired is marked Extended.
	Extended bool
	MAPQ     int
}

// Result is the outcome of one Run.
type Result struct {
	Pairs              []Pair
	FinalState         State
	End1Class          matches.Class
	End2Class          matches.Class
	MaxCompleteStratum int
}

// Run drives the PE0..PE5 control loop for one read pair against a shared
// index and locator (both ends are searched against the same reference).
func Run(idx *fmindex.Index, locator *fmindex.Locator, pat1, pat2 *pattern.Pattern, params Params, counters1, counters2 *search.Counters) Result {
	state := StateSearchEnd1
	res1 := search.Run(idx, locator, pat1, params.End1, counters1)

	extendedAny := false
	state = StateSearchEnd2
	var res2 search.Result
	if shortcutEligible(res1, params) {
		shortcutStore := matches.NewStore(locator)
		extendInto(idx, res1.Store.Traces(), shortcutStore, pat2, params.End2, params.MaxTemplateLength)
		if shortcutStore.Len() > 0 {
			extendedAny = true
			res2 = search.Result{
				Store:      shortcutStore,
				Class:      matches.Classify(shortcutStore.Predictors(len(pat2.RegularKey), 1, 0)),
				FinalState: search.StateEnd,
			}
		}
	}
	if res2.Store == nil {
		res2 = search.Run(idx, locator, pat2, params.End2, counters2)
	}

	state = StateRecovery
	rescue1 := ambiguous(res1.Class)
	rescue2 := ambiguous(res2.Class)
	if rescue1 || rescue2 {
		// The two rescue attempts read from the other end's already-final
		// store and write into their own end's store, so they are mutually
		// independent and safe to run concurrently.
		_ = traverse.Each(2, func(i int) error {
			switch i {
			case 0:
				if rescue1 {
					extendInto(idx, res2.Store.Traces(), res1.Store, pat1, params.End1, params.MaxTemplateLength)
				}
			case 1:
				if rescue2 {
					extendInto(idx, res1.Store.Traces(), res2.Store, pat2, params.End2, params.MaxTemplateLength)
				}
			}
			return nil
		})
		if rescue1 {
			res1.Class = matches.Classify(res1.Store.Predictors(len(pat1.RegularKey), 1, 0))
		}
		if rescue2 {
			res2.Class = matches.Classify(res2.Store.Predictors(len(pat2.RegularKey), 1, 0))
		}
		extendedAny = extendedAny || rescue1 || rescue2
	}

	state = StateFindPairs
	pairs := findPairs(res1.Store.Traces(), res2.Store.Traces(), params)
	for i := range pairs {
		pairs[i].Extended = extendedAny
	}

	state = StateEnd
	scorePairs(pairs)

	return Result{
		Pairs:              pairs,
		FinalState:         state,
		End1Class:          res1.Class,
		End2Class:          res2.Class,
		MaxCompleteStratum: combinedMCS(res1, res2),
	}
}

func shortcutEligible(res1 search.Result, params Params) bool {
	if res1.Class != matches.Unique || !params.tightTemplateCI() {
		return false
	}
	traces := res1.Store.Traces()
	return len(traces) == 1 && traces[0].MAPQ >= params.ShortcutMinMAPQ
}

func ambiguous(c matches.Class) bool {
	switch c {
	case matches.Unmapped, matches.TieIndistinguishable, matches.TieSWGScore, matches.TieEditDistance, matches.TieEventDistance:
		return true
	default:
		return false
	}
}

// extendInto runs the extension subroutine of spec.md §4.L (§4.F op 7 +
// §4.I) for every anchor trace, writing any successful mate alignments
// directly into dest.
func extendInto(idx *fmindex.Index, anchors []matches.Trace, dest *matches.Store, mate *pattern.Pattern, mateParams search.Params, maxTemplateLength uint64) {
	if len(anchors) == 0 {
		return
	}
	candStore := candidates.NewStore(idx, mateParams.MaxBandwidth)
	for _, t := range anchors {
		candStore.ExtendMatch(t.MatchPosition, maxTemplateLength, mate)
	}
	candStore.VerifyCandidates(mate, mate.MaxEffectiveFilteringError)
	_ = candStore.AlignCandidates(mate, mateParams.Allowed, mateParams.SWGPenalties, mateParams.MaxBandwidth, mateParams.SWGThreshold, dest, false, fmindex.BSNone)
}

func findPairs(end1, end2 []matches.Trace, params Params) []Pair {
	var concordant, discordant []Pair
	for _, t1 := range end1 {
		for _, t2 := range end2 {
			if t1.SequenceName != t2.SequenceName {
				continue
			}
			p := classifyPair(t1, t2)
			if isConcordant(p, params) {
				p.Concordant = true
				concordant = append(concordant, p)
			} else {
				discordant = append(discordant, p)
			}
		}
	}
	switch params.Discordant {
	case DiscordantNever:
		return concordant
	case DiscordantIfNoConcordant:
		if len(concordant) > 0 {
			return concordant
		}
		return discordant
	default: // DiscordantAlways
		return append(concordant, discordant...)
	}
}

func classifyPair(t1, t2 matches.Trace) Pair {
	begin1, end1p := t1.MatchPosition, t1.MatchPosition+uint64(t1.EffectiveLength)
	begin2, end2p := t2.MatchPosition, t2.MatchPosition+uint64(t2.EffectiveLength)

	lo, hi := begin1, end1p
	if begin2 < lo {
		lo = begin2
	}
	if end2p > hi {
		hi = end2p
	}

	return Pair{
		End1:           t1,
		End2:           t2,
		TemplateLength: hi - lo,
		Orientation:    orientationOf(t1.Strand, t2.Strand, begin1 <= begin2),
		Layout:         layoutOf(begin1, end1p, begin2, end2p),
	}
}

func orientationOf(s1, s2 fmindex.Strand, end1First bool) Orientation {
	switch {
	case s1 == fmindex.Forward && s2 == fmindex.Forward:
		return FF
	case s1 == fmindex.Reverse && s2 == fmindex.Reverse:
		return RR
	case s1 == fmindex.Forward && end1First, s2 == fmindex.Forward && !end1First:
		return FR
	default:
		return RF
	}
}

func layoutOf(begin1, end1p, begin2, end2p uint64) Layout {
	switch {
	case end1p <= begin2 || end2p <= begin1:
		return Separate
	case (begin1 <= begin2 && end2p <= end1p) || (begin2 <= begin1 && end1p <= end2p):
		return Contain
	default:
		return Overlap
	}
}

func isConcordant(p Pair, params Params) bool {
	if p.TemplateLength < params.MinTemplateLength || p.TemplateLength > params.MaxTemplateLength {
		return false
	}
	if len(params.Orientations) > 0 && !params.Orientations[p.Orientation] {
		return false
	}
	if len(params.Layouts) > 0 && !params.Layouts[p.Layout] {
		return false
	}
	return true
}

// scorePairs fills in each pair's MAPQ from its mates' individual MAPQs,
// penalizing discordant pairs; spec.md names "paired predictors" as the
// PE5 MAPQ input without fixing a formula, so this is this module's own
// calibration in the spirit of matches.MAPQ's single-end one.
func scorePairs(pairs []Pair) {
	for i := range pairs {
		p := &pairs[i]
		mapq := p.End1.MAPQ
		if p.End2.MAPQ < mapq {
			mapq = p.End2.MAPQ
		}
		if !p.Concordant && mapq > 0 {
			mapq--
		}
		p.MAPQ = mapq
	}
}

func combinedMCS(res1, res2 search.Result) int {
	if res1.Class == matches.Unmapped || res2.Class == matches.Unmapped {
		return 0
	}
	return res1.MaxCompleteStratum + res2.MaxCompleteStratum
}
