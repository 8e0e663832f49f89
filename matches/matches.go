// Package matches implements the matches store of spec.md §4.J: a
// deduplicating collection of decoded, aligned match traces, with the
// counters, classification, and MAPQ scoring the SE/PE control loops
// (§4.K/§4.L) read from it.
//
// Grounded on original_source/include/matches.h and src/matches.c for
// the two-vector (interval/position) shape, the dedup-by-position
// invariant, and classify()'s input set; src/archive_score.c for the
// MAPQ predictor fields. This pack's own markduplicates/main.go shows
// the teacher's own position-keyed, sort-then-compact dedup idiom
// (bucket by position, keep one record per key) which this store's
// AddMatchTrace/FilterByMAPQ follow directly.
package matches

import (
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/gemerrors"
	"github.com/grailbio/gemmapper/swg"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Trace is one reported alignment (spec.md §3's "Match trace").
type Trace struct {
	TextPosition    uint64
	SequenceName    string
	Strand          fmindex.Strand
	BSStrand        fmindex.BSStrand
	Distance        int // event distance
	EditDistance    int
	SWGScore        int32
	MAPQ            int
	CIGAR           sam.Cigar
	MatchPosition   uint64
	EffectiveLength int
}

func (t Trace) endPosition() uint64 { return t.MatchPosition + uint64(t.EffectiveLength) }

// Class is the classification of a read's overall match set
// (spec.md §4.J classify()).
type Class int

const (
	Unmapped Class = iota
	Unique
	MMap
	TieIndistinguishable
	TieSWGScore
	TieEditDistance
	TieEventDistance
)

func (c Class) String() string {
	switch c {
	case Unmapped:
		return "unmapped"
	case Unique:
		return "unique"
	case MMap:
		return "mmap"
	case TieIndistinguishable:
		return "tie_indistinguishable"
	case TieSWGScore:
		return "tie_swg_score"
	case TieEditDistance:
		return "tie_edit_distance"
	case TieEventDistance:
		return "tie_event_distance"
	default:
		return "unknown"
	}
}

// defaultMaxTraces bounds how many distinct traces a Store will hold
// for one read. A Store is this rendition's per-read arena (spec.md
// §5): Go's GC makes a manual bump allocator unnecessary, but the
// arena's exhaustion behavior still needs a real trigger, so the
// bound lives here instead, over the one per-read structure that
// actually grows with the candidate set. Pathologically repetitive
// reference/pattern combinations are the only realistic way to reach
// it; ordinary reads stop far short via search_max_matches/filtering.
const defaultMaxTraces = 1 << 16

// Store owns the deduplicated set of decoded match traces for one
// read, plus the counters the control loop and MAPQ model need.
type Store struct {
	locator *fmindex.Locator

	traces     []Trace
	byBegin    map[uint64]int
	byBeginEnd map[uint64]int

	counters    map[int]int // distance -> count
	minDistance int
	maxDistance int
	hasAny      bool

	maxTraces int
}

// NewStore creates an empty store that locates positions against
// locator (spec.md §4.A), bounded at defaultMaxTraces.
func NewStore(locator *fmindex.Locator) *Store {
	return NewStoreWithCapacity(locator, defaultMaxTraces)
}

// NewStoreWithCapacity is NewStore with an explicit per-read trace
// capacity bound, letting a caller (or a test exercising
// gemerrors.Capacity) size the arena deliberately instead of taking
// defaultMaxTraces.
func NewStoreWithCapacity(locator *fmindex.Locator, maxTraces int) *Store {
	return &Store{
		locator:    locator,
		byBegin:    make(map[uint64]int),
		byBeginEnd: make(map[uint64]int),
		counters:   make(map[int]int),
		maxTraces:  maxTraces,
	}
}

// AddMatchTrace locates textPosition, optionally reverses the
// alignment's CIGAR for an emulated reverse-complement search, dedups
// against any existing trace sharing (match_position) or
// (match_position+effective_length), and updates counters. It reports
// whether a new trace was inserted (false means an existing,
// lower-or-equal-distance trace was kept, or the new one replaced a
// worse one in place).
func (s *Store) AddMatchTrace(textPosition uint64, a swg.Alignment, editDistance, eventDistance int, emulatedRCSearch bool, bsStrand fmindex.BSStrand) (inserted bool, err error) {
	seqName, localOffset, strand, ok := s.locator.Locate(textPosition)
	if !ok {
		return false, errors.E(gemerrors.Index, "matches: text position outside any indexed sequence")
	}

	cigar := a.CIGAR()
	if emulatedRCSearch {
		cigar = reverseCigar(cigar)
	}

	t := Trace{
		TextPosition:    textPosition,
		SequenceName:    seqName,
		Strand:          strand,
		BSStrand:        bsStrand,
		Distance:        eventDistance,
		EditDistance:    editDistance,
		SWGScore:        a.Score,
		CIGAR:           cigar,
		MatchPosition:   textPosition,
		EffectiveLength: a.EffectiveLength(),
	}

	if idx, dup := s.byBegin[t.MatchPosition]; dup {
		return s.resolveDuplicate(idx, t), nil
	}
	if idx, dup := s.byBeginEnd[t.endPosition()]; dup {
		return s.resolveDuplicate(idx, t), nil
	}
	if len(s.traces) >= s.maxTraces {
		return false, errors.E(gemerrors.Capacity, "matches: store exceeded its per-read trace capacity")
	}

	idx := len(s.traces)
	s.traces = append(s.traces, t)
	s.byBegin[t.MatchPosition] = idx
	s.byBeginEnd[t.endPosition()] = idx
	s.updateCounters(t.Distance)
	log.Debug.Printf("matches: inserted trace at %s:%d distance=%d", seqName, localOffset, t.Distance)
	return true, nil
}

// resolveDuplicate keeps whichever of the existing trace at idx and
// the candidate t has the lower distance, per spec.md §4.J step 3.
func (s *Store) resolveDuplicate(idx int, t Trace) (inserted bool) {
	existing := s.traces[idx]
	if t.Distance >= existing.Distance {
		return false
	}
	s.traces[idx] = t
	s.byBegin[t.MatchPosition] = idx
	s.byBeginEnd[t.endPosition()] = idx
	s.updateCounters(t.Distance)
	return false
}

func (s *Store) updateCounters(distance int) {
	s.counters[distance]++
	if !s.hasAny || distance < s.minDistance {
		s.minDistance = distance
	}
	if !s.hasAny || distance > s.maxDistance {
		s.maxDistance = distance
	}
	s.hasAny = true
}

// Len reports the number of distinct traces currently stored.
func (s *Store) Len() int { return len(s.traces) }

// Traces returns the stored traces in insertion order.
func (s *Store) Traces() []Trace { return s.traces }

// FilterByMAPQ compacts the store to only those traces whose MAPQ is
// at least threshold, then rebuilds the position indexes (spec.md
// §4.J filter_by_mapq).
func (s *Store) FilterByMAPQ(threshold int) {
	kept := s.traces[:0]
	for _, t := range s.traces {
		if t.MAPQ >= threshold {
			kept = append(kept, t)
		}
	}
	s.traces = kept
	s.byBegin = make(map[uint64]int, len(s.traces))
	s.byBeginEnd = make(map[uint64]int, len(s.traces))
	s.counters = make(map[int]int)
	s.hasAny = false
	for i, t := range s.traces {
		s.byBegin[t.MatchPosition] = i
		s.byBeginEnd[t.endPosition()] = i
		s.updateCounters(t.Distance)
	}
}

// SortByDistance orders traces by edit distance, breaking ties by
// swg score (descending) then text position.
func (s *Store) SortByDistance() {
	sort.Slice(s.traces, func(i, j int) bool {
		a, b := s.traces[i], s.traces[j]
		if a.EditDistance != b.EditDistance {
			return a.EditDistance < b.EditDistance
		}
		if a.SWGScore != b.SWGScore {
			return a.SWGScore > b.SWGScore
		}
		return a.MatchPosition < b.MatchPosition
	})
}

// SortBySWGScore orders traces by swg score (descending), breaking
// ties by edit distance then text position.
func (s *Store) SortBySWGScore() {
	sort.Slice(s.traces, func(i, j int) bool {
		a, b := s.traces[i], s.traces[j]
		if a.SWGScore != b.SWGScore {
			return a.SWGScore > b.SWGScore
		}
		if a.EditDistance != b.EditDistance {
			return a.EditDistance < b.EditDistance
		}
		return a.MatchPosition < b.MatchPosition
	})
}

// SortByMAPQ orders traces by MAPQ (descending), breaking ties by
// swg score then edit distance.
func (s *Store) SortByMAPQ() {
	sort.Slice(s.traces, func(i, j int) bool {
		a, b := s.traces[i], s.traces[j]
		if a.MAPQ != b.MAPQ {
			return a.MAPQ > b.MAPQ
		}
		if a.SWGScore != b.SWGScore {
			return a.SWGScore > b.SWGScore
		}
		return a.EditDistance < b.EditDistance
	})
}

// SortBySequencePosition orders traces by (sequence name, position),
// the coordinate-sorted order typical of an output stream.
func (s *Store) SortBySequencePosition() {
	sort.Slice(s.traces, func(i, j int) bool {
		a, b := s.traces[i], s.traces[j]
		if a.SequenceName != b.SequenceName {
			return a.SequenceName < b.SequenceName
		}
		return a.MatchPosition < b.MatchPosition
	})
}

// Merge folds other's traces into s under the same position-keyed
// dedup rule AddMatchTrace applies. This is how a caller combines a
// forward-strand search.Run with a search.RunReverseComplement search
// against the same non-indexed-complement index into one classifiable
// result, without re-deciding distances by hand. It returns a
// gemerrors.Capacity error, leaving s unchanged from that point on, if
// the merge would push s past its per-read trace capacity.
func (s *Store) Merge(other *Store) error {
	for _, t := range other.traces {
		if idx, dup := s.byBegin[t.MatchPosition]; dup {
			s.resolveDuplicate(idx, t)
			continue
		}
		if idx, dup := s.byBeginEnd[t.endPosition()]; dup {
			s.resolveDuplicate(idx, t)
			continue
		}
		if len(s.traces) >= s.maxTraces {
			return errors.E(gemerrors.Capacity, "matches: merge exceeded the per-read trace capacity")
		}
		idx := len(s.traces)
		s.traces = append(s.traces, t)
		s.byBegin[t.MatchPosition] = idx
		s.byBeginEnd[t.endPosition()] = idx
		s.updateCounters(t.Distance)
	}
	return nil
}

func reverseCigar(c sam.Cigar) sam.Cigar {
	out := make(sam.Cigar, len(c))
	for i, op := range c {
		out[len(c)-1-i] = op
	}
	return out
}
