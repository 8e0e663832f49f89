// Package candidates implements the filtering candidates container of
// spec.md §4.F: the per-read accumulator that turns raw BWT intervals
// surfaced by region profiling (package regionprofile) and
// neighborhood search (package neighborhood) into decoded text
// positions, coalesces them into candidate regions, verifies each one
// with the k-mer pre-filter (package kmerfilter) and tiled BPM
// (package bpm), and finally scaffolds (package scaffold) and aligns
// (package swg) the survivors into the matches store (package
// matches).
//
// Grounded on original_source/include/filtering_candidates.h and
// filtering_region.h for the position/region/cache shape and the
// region status enum, and on original_source/src/dna_text.c for the
// decision to keep a plain encoded-text accessor (fmindex.Index.Extract)
// alongside the BWT rather than reconstructing windows from rank
// queries alone.
package candidates

import (
	"sort"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/gemmapper/bpm"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/kmerfilter"
	"github.com/grailbio/gemmapper/matches"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/scaffold"
	"github.com/grailbio/gemmapper/swg"
)

// FilteringPosition is one undecoded (or just-decoded) SA hit
// attributed to the source region that generated it (spec.md §4.F
// op 1 "add_interval").
type FilteringPosition struct {
	SAIndex        uint64
	TextPosition   uint64 // valid only once decoded
	WindowBegin    uint64 // TextPosition adjusted by ±max_bandwidth+key_length
	WindowEnd      uint64
	RegionBegin    int
	RegionEnd      int
	DecodeDistance int
}

// IntervalCandidate bundles one BWT interval with the source region
// bounds and tolerated error count that add_interval_set attributes
// to every SA index inside it.
type IntervalCandidate struct {
	Interval               fmindex.Interval
	RegionBegin, RegionEnd int
	Errors                 int
}

// Status is a filtering_region's place in the pipeline (spec.md §4.F,
// original_source's filtering_region_status_t collapsed to the states
// this module's verify/align stages actually distinguish).
type Status int

const (
	StatusPending Status = iota
	StatusAccepted
	StatusVerifiedDiscarded
	StatusAligned
	StatusAlignedSubdominant
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusVerifiedDiscarded:
		return "verified_discarded"
	case StatusAligned:
		return "aligned"
	case StatusAlignedSubdominant:
		return "aligned_subdominant"
	default:
		return "unknown"
	}
}

// SourceSpan is one key-coordinate region that contributed a position
// to a FilteringRegion.
type SourceSpan struct{ Begin, End int }

// FilteringRegion is a coalesced group of filtering positions sharing
// an approximate text location (spec.md §4.F op 4).
type FilteringRegion struct {
	BeginPosition, EndPosition uint64
	SequenceName               string
	Strand                     fmindex.Strand
	SourceRegions              []SourceSpan
	DecodeDistance             int // smallest decode_distance among contributors

	Status                Status
	AlignDistance         int
	AlignDistanceMinBound int
	MatchEndColumn        int
	Alignment             swg.Alignment

	// seeds are the exact-match sub-regions (key coordinates and their
	// offset within this region's text window) contributed by every
	// position with DecodeDistance==0, i.e. positions whose source
	// region matched the window exactly rather than through bounded
	// neighborhood search. AlignCandidates hands these straight to
	// scaffold.Build as original_source's match_scaffold_chain expects
	// to receive already-known exact matching regions.
	seeds []scaffold.Region
}

func (r *FilteringRegion) addSourceSpan(begin, end int) {
	for _, s := range r.SourceRegions {
		if s.Begin == begin && s.End == end {
			return
		}
	}
	r.SourceRegions = append(r.SourceRegions, SourceSpan{begin, end})
}

func (r *FilteringRegion) addSeed(p FilteringPosition) {
	if p.DecodeDistance != 0 {
		return
	}
	offset := int(p.TextPosition - r.BeginPosition)
	r.seeds = append(r.seeds, scaffold.Region{
		KeyBegin:  p.RegionBegin,
		KeyEnd:    p.RegionEnd,
		TextBegin: offset,
		TextEnd:   offset + (p.RegionEnd - p.RegionBegin),
	})
}

// verifiedSpan is one entry of the verification cache: a text span
// that has already been run through k-mer+BPM verification, together
// with the outcome, grounded on original_source's verified_region_t
// {begin_position,end_position}.
type verifiedSpan struct {
	begin, end uint64
	accepted   bool
}

// verificationCache answers "has a span superseding [begin,end) with
// this footprint already been verified" (spec.md §4.F op 5.a). The
// footprint is a content hash of the candidate text window
// (filtering_region_t.footprint in original_source is likewise a
// checksum field carried per-region), so two regions whose text
// windows are byte-identical -- the common case of a repeat hit
// reached through two different source regions -- share one
// verification instead of re-running BPM twice.
type verificationCache struct {
	byFootprint map[uint64][]verifiedSpan
}

func newVerificationCache() verificationCache {
	return verificationCache{byFootprint: make(map[uint64][]verifiedSpan)}
}

func footprintOf(window []fmindex.Code) uint64 {
	raw := make([]byte, len(window))
	for i, c := range window {
		raw[i] = byte(c)
	}
	return farm.Hash64(raw)
}

func (c verificationCache) lookup(footprint, begin, end uint64) (accepted, found bool) {
	for _, v := range c.byFootprint[footprint] {
		if v.begin <= begin && end <= v.end {
			return v.accepted, true
		}
	}
	return false, false
}

func (c verificationCache) insert(footprint, begin, end uint64, accepted bool) {
	c.byFootprint[footprint] = append(c.byFootprint[footprint], verifiedSpan{begin, end, accepted})
}

// Store is the per-read filtering-candidates container (spec.md §4.F).
type Store struct {
	idx          *fmindex.Index
	maxBandwidth int

	positions []FilteringPosition
	decoded   bool

	regions []FilteringRegion
	cache   verificationCache
}

// NewStore creates an empty container over idx. maxBandwidth is the
// ±window expansion applied when decoding positions and compared for
// region coalescing (spec.md §4.E/§4.F).
func NewStore(idx *fmindex.Index, maxBandwidth int) *Store {
	return &Store{idx: idx, maxBandwidth: maxBandwidth, cache: newVerificationCache()}
}

// AddInterval appends one filtering position per SA index in
// [iv.Lo,iv.Hi) (spec.md §4.F op 1). SA indexes are not decoded yet.
func (s *Store) AddInterval(iv fmindex.Interval, regionBegin, regionEnd, decodeDistance int) {
	for sa := iv.Lo; sa < iv.Hi; sa++ {
		s.positions = append(s.positions, FilteringPosition{
			SAIndex:        sa,
			RegionBegin:    regionBegin,
			RegionEnd:      regionEnd,
			DecodeDistance: decodeDistance,
		})
	}
	s.decoded = false
}

// AddIntervalSet runs AddInterval for every candidate in bulk (spec.md
// §4.F op 2).
func (s *Store) AddIntervalSet(cands []IntervalCandidate) {
	for _, c := range cands {
		s.AddInterval(c.Interval, c.RegionBegin, c.RegionEnd, c.Errors)
	}
}

// AddIntervalSetThresholded is AddIntervalSet but drops any candidate
// whose Errors exceeds maxError before adding it.
func (s *Store) AddIntervalSetThresholded(cands []IntervalCandidate, maxError int) {
	for _, c := range cands {
		if c.Errors > maxError {
			continue
		}
		s.AddInterval(c.Interval, c.RegionBegin, c.RegionEnd, c.Errors)
	}
}

// DecodeFilteringPositions bulk-resolves every pending SA index to a
// text position via the index's sampled-SA decode, widens it into a
// window by ±maxBandwidth (plus the key span the source region did
// not cover), then sorts positions by text position -- spec.md §4.F op
// 3 and its "position vector is sorted by text position before
// compose_regions" invariant.
func (s *Store) DecodeFilteringPositions(keyLength int) {
	saIndexes := make([]uint64, len(s.positions))
	for i, p := range s.positions {
		saIndexes[i] = p.SAIndex
	}
	decoded := s.idx.DecodeBatch(saIndexes)
	for i := range s.positions {
		p := &s.positions[i]
		p.TextPosition = decoded[i]

		before := uint64(p.RegionBegin) + uint64(s.maxBandwidth)
		after := uint64(keyLength-p.RegionBegin) + uint64(s.maxBandwidth)
		if before > p.TextPosition {
			p.WindowBegin = 0
		} else {
			p.WindowBegin = p.TextPosition - before
		}
		p.WindowEnd = p.TextPosition + after
	}
	sort.Slice(s.positions, func(i, j int) bool {
		return s.positions[i].TextPosition < s.positions[j].TextPosition
	})
	s.decoded = true
}

// ComposeRegions coalesces sorted filtering positions into
// FilteringRegions (spec.md §4.F op 4): two positions coalesce when
// their ±max_bandwidth-expanded windows overlap and they locate to the
// same indexed sequence and strand ("agree on locator_interval").
// Must be called after DecodeFilteringPositions.
func (s *Store) ComposeRegions() {
	if !s.decoded {
		panic("candidates: ComposeRegions called before DecodeFilteringPositions")
	}
	s.regions = s.regions[:0]
	var cur *FilteringRegion
	for _, p := range s.positions {
		seqName, _, strand, _, ok := s.idx.Locate(p.TextPosition)
		if !ok {
			continue
		}
		if cur != nil && cur.SequenceName == seqName && cur.Strand == strand && p.WindowBegin < cur.EndPosition {
			if p.WindowEnd > cur.EndPosition {
				cur.EndPosition = p.WindowEnd
			}
			if p.DecodeDistance < cur.DecodeDistance {
				cur.DecodeDistance = p.DecodeDistance
			}
			cur.addSourceSpan(p.RegionBegin, p.RegionEnd)
			cur.addSeed(p)
			continue
		}
		s.regions = append(s.regions, FilteringRegion{
			BeginPosition:  p.WindowBegin,
			EndPosition:    p.WindowEnd,
			SequenceName:   seqName,
			Strand:         strand,
			DecodeDistance: p.DecodeDistance,
		})
		cur = &s.regions[len(s.regions)-1]
		cur.addSourceSpan(p.RegionBegin, p.RegionEnd)
		cur.addSeed(p)
	}
}

// Regions exposes the current filtering regions (for inspection and
// for PE's extend_match to inject synthetic regions directly).
func (s *Store) Regions() []FilteringRegion { return s.regions }

// VerifyCandidates runs the k-mer pre-filter then tiled BPM over every
// StatusPending region (spec.md §4.F op 5). pat supplies the compiled
// BPM pattern and k-mer profile (package pattern); maxError is the
// effective error threshold candidates must not exceed.
func (s *Store) VerifyCandidates(pat *pattern.Pattern, maxError int) {
	for i := range s.regions {
		r := &s.regions[i]
		if r.Status != StatusPending {
			continue
		}
		window := s.idx.Extract(r.BeginPosition, r.EndPosition)
		if window == nil {
			// No raw-text accessor attached to the index: cannot verify,
			// so conservatively discard rather than align on nothing.
			r.Status = StatusVerifiedDiscarded
			continue
		}

		footprint := footprintOf(window)
		if accepted, found := s.cache.lookup(footprint, r.BeginPosition, r.EndPosition); found {
			if accepted {
				r.Status = StatusAccepted
			} else {
				r.Status = StatusVerifiedDiscarded
			}
			continue
		}

		if pat.KMer != nil {
			textProfile := kmerfilter.Build(window)
			if !kmerfilter.PassesFilter(pat.KMer, textProfile, maxError) {
				r.Status = StatusVerifiedDiscarded
				s.cache.insert(footprint, r.BeginPosition, r.EndPosition, false)
				continue
			}
		}

		if pat.BPM == nil {
			// maxEffectiveFilteringError == 0: only exact lookup permitted
			// (spec.md §4.B); a region that reached verification at all
			// without an exact full-interval hit cannot be accepted.
			r.Status = StatusVerifiedDiscarded
			s.cache.insert(footprint, r.BeginPosition, r.EndPosition, false)
			continue
		}

		res := bpm.Verify(pat.BPM, window, maxError)
		r.AlignDistance = res.Distance
		r.AlignDistanceMinBound = res.MinBound
		r.MatchEndColumn = res.MatchEndColumn
		if res.MinBound > maxError {
			r.Status = StatusVerifiedDiscarded
			s.cache.insert(footprint, r.BeginPosition, r.EndPosition, false)
			continue
		}
		r.Status = StatusAccepted
		s.cache.insert(footprint, r.BeginPosition, r.EndPosition, true)
	}
}

// AlignCandidates scaffolds and SWG-aligns every StatusAccepted region
// (spec.md §4.F op 6), reporting successful alignments to store via
// matches.Store.AddMatchTrace. allowed reports whether a code
// participates in exact-extension (package scaffold); pen and
// bandWidth configure the aligner; threshold is the SWG score below
// which an alignment is kept as aligned_subdominant rather than
// reported.
func (s *Store) AlignCandidates(
	pat *pattern.Pattern,
	allowed func(fmindex.Code) bool,
	pen swg.Penalties,
	bandWidth int,
	threshold int32,
	store *matches.Store,
	emulatedRCSearch bool,
	bsStrand fmindex.BSStrand,
) error {
	for i := range s.regions {
		r := &s.regions[i]
		if r.Status != StatusAccepted {
			continue
		}
		window := s.idx.Extract(r.BeginPosition, r.EndPosition)
		if window == nil {
			r.Status = StatusAlignedSubdominant
			continue
		}

		chain := scaffold.Build(r.seeds, pat.Key, window, allowed)

		alignment, ok := swg.Align(pat.Key, window, pen, bandWidth, chain, threshold)
		if !ok {
			r.Status = StatusAlignedSubdominant
			continue
		}
		r.Alignment = alignment
		r.Status = StatusAligned

		textPosition := r.BeginPosition + uint64(alignment.TextBegin)
		editDistance := countEdits(alignment)
		if _, err := store.AddMatchTrace(textPosition, alignment, editDistance, r.AlignDistance, emulatedRCSearch, bsStrand); err != nil {
			return err
		}
	}
	return nil
}

// ExtendMatch is the PE-only operation of spec.md §4.F op 7: given a
// confirmed alignment of the other mate (anchorPosition, already
// resolved to this index's text coordinates) and the mate's own
// compiled pattern, it manufactures a single StatusPending candidate
// region spanning maxTemplateLength around the anchor, skipping
// region-profile/neighborhood search entirely since the anchor already
// pins the locus. It does not verify or align the region itself; the
// next VerifyCandidates/AlignCandidates calls pick it up.
func (s *Store) ExtendMatch(anchorPosition uint64, maxTemplateLength uint64, pat *pattern.Pattern) {
	begin := uint64(0)
	if anchorPosition > maxTemplateLength {
		begin = anchorPosition - maxTemplateLength
	}
	end := anchorPosition + maxTemplateLength + uint64(len(pat.Key))
	seqName, _, strand, _, ok := s.idx.Locate(anchorPosition)
	if !ok {
		return
	}
	s.regions = append(s.regions, FilteringRegion{
		BeginPosition: begin,
		EndPosition:   end,
		SequenceName:  seqName,
		Strand:        strand,
		Status:        StatusPending,
	})
}

// countEdits approximates the alignment's edit distance from its CIGAR
// (mismatches + indel bases), since swg.Alignment only carries the
// affine-gap score; the matches store records both the event distance
// (the scaffold/BPM distance already on the region) and this edit
// distance per spec.md §3's Match trace fields.
func countEdits(a swg.Alignment) int {
	edits := 0
	for _, op := range a.Ops {
		switch op.Type {
		case swg.OpMismatch, swg.OpInsertion, swg.OpDeletion:
			edits += op.Len
		}
	}
	return edits
}
