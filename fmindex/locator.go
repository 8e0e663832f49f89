package fmindex

import "sort"

// Strand identifies which strand of the reference a text position
// belongs to. Indexes built with indexed_complement=false emulate the
// reverse strand by reverse-complementing the pattern instead of the
// text, in which case Locator always reports Forward and the caller
// (package pattern / search) is responsible for the emulated-RC
// bookkeeping described in spec.md §9.
type Strand uint8

const (
	Forward Strand = iota
	Reverse
)

func (s Strand) String() string {
	if s == Reverse {
		return "-"
	}
	return "+"
}

// BSStrand identifies the bisulfite-converted strand a match was found
// on, when bisulfite_read is enabled in the search configuration.
type BSStrand uint8

const (
	BSNone BSStrand = iota
	BSC2T
	BSG2A
)

// seqSpan is one indexed sequence's [start,end) span within the
// concatenated text, separated from its neighbors by a SEP code.
type seqSpan struct {
	name  string
	start uint64
	end   uint64
}

// Locator maps a global text position to (sequence, local offset,
// strand). It owns no mutable state after construction.
type Locator struct {
	spans             []seqSpan // sorted by start
	indexedComplement bool
	forwardLength     uint64 // length of one strand's worth of sequence
}

// NewLocator builds a Locator from sequence names and lengths, in the
// order they were concatenated into the index text. If
// indexedComplement is true, the text is assumed to hold the forward
// strand followed immediately by the reverse-complement strand (each
// sequence mirrored), and positions past forwardLength are reported on
// Reverse with offsets measured from that sequence's own start.
func NewLocator(names []string, lengths []uint64, indexedComplement bool) *Locator {
	spans := make([]seqSpan, 0, len(names))
	var offset uint64
	for i, name := range names {
		start := offset
		end := start + lengths[i]
		spans = append(spans, seqSpan{name: name, start: start, end: end})
		offset = end + 1 // +1 for the SEP separator
	}
	forwardLength := offset
	if indexedComplement {
		for i, name := range names {
			start := offset
			end := start + lengths[i]
			spans = append(spans, seqSpan{name: name, start: start, end: end})
			offset = end + 1
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return &Locator{spans: spans, indexedComplement: indexedComplement, forwardLength: forwardLength}
}

// Locate maps a global text position to the sequence that contains it.
// ok is false if pos falls in a separator/jump gap between sequences.
func (l *Locator) Locate(pos uint64) (seqName string, localOffset uint64, strand Strand, ok bool) {
	i := sort.Search(len(l.spans), func(i int) bool { return l.spans[i].end > pos })
	if i >= len(l.spans) || pos < l.spans[i].start {
		return "", 0, Forward, false
	}
	span := l.spans[i]
	if l.indexedComplement && span.start >= l.forwardLength {
		// Position falls in the mirrored reverse-complement half: report
		// it as a Reverse-strand offset into the same named sequence,
		// measured from the high end.
		length := span.end - span.start
		localOffset = length - 1 - (pos - span.start)
		return span.name, localOffset, Reverse, true
	}
	return span.name, pos - span.start, Forward, true
}

// Length returns the total span covered by the locator (sum of all
// indexed sequence lengths and separators, both strands if mirrored).
func (l *Locator) Length() uint64 {
	if len(l.spans) == 0 {
		return 0
	}
	return l.spans[len(l.spans)-1].end
}
