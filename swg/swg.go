// Package swg implements the banded affine-gap Smith-Waterman-Gotoh
// aligner of spec.md §4.I: given a pattern key, a candidate text
// window and a scaffold chain of exact anchor regions (optional), it
// produces a score and a CIGAR.
//
// The DP itself follows a Gotoh three-matrix (M/I/D) recurrence,
// "glocal": the key must be consumed end to end (it is the read),
// while the text window's own ends are free (the window is padded
// beyond the read's expected span precisely so its edges never need
// to be part of the reported alignment). Banding restricts each text
// column to the key rows within the given width of its diagonal;
// every scaffold segment is aligned with that same width, which is
// not widened per segment.
//
// Grounded on original_source/src/align/align_swg_simd.c for the
// overall M/I/D/Lazy-F shape, and on this pack's own
// util/distance.go (computeCell's row-major matrix + operation
// tracking) for how the teacher expresses a DP recurrence with
// traceback in Go. The "striped"/SIMD framing in align_swg_simd.c
// does not carry over literally: this module has no vector
// intrinsics available (see DESIGN.md), so the Lazy-F loop here
// corrects the same M/D dependency the real striped kernel defers,
// but over a plain row-major matrix rather than vector lanes.
package swg

import (
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/scaffold"
	"github.com/grailbio/hts/sam"
)

// Penalties are the affine-gap scoring parameters of spec.md §4.I.
// Match is a non-negative bonus; Mismatch, GapOpen and GapExtend are
// non-negative magnitudes applied as subtractions.
type Penalties struct {
	Match     int32
	Mismatch  int32
	GapOpen   int32
	GapExtend int32
}

// OpType is one CIGAR-bearing operation kind from spec.md §4.I's
// output tuple {match(len), mismatch(c), ins(len), del(len),
// soft_trim(len)}.
type OpType uint8

const (
	OpMatch OpType = iota
	OpMismatch
	OpInsertion
	OpDeletion
	OpSoftTrim
)

// Op is one alignment operation. Base is only meaningful for
// OpMismatch, where it records the text base substituted in (the
// "(c)" of spec.md's mismatch(c)); internally every mismatch is
// length 1, merged into longer CIGAR runs only at CIGAR() time.
type Op struct {
	Type OpType
	Len  int
	Base fmindex.Code
}

// Alignment is the result of Align: a score, the operation sequence,
// and the text window actually spanned (spec.md's effective_length
// is TextEnd-TextBegin).
type Alignment struct {
	Score      int32
	Ops        []Op
	TextBegin  int
	TextEnd    int
	Used8Bit   bool
}

// EffectiveLength is the length of text the alignment actually spans.
func (a Alignment) EffectiveLength() int { return a.TextEnd - a.TextBegin }

// CIGAR renders Ops as a sam.Cigar, merging adjacent same-type
// operations into single runs as SAM requires.
func (a Alignment) CIGAR() sam.Cigar {
	if len(a.Ops) == 0 {
		return nil
	}
	var c sam.Cigar
	curType := a.Ops[0].Type
	curLen := 0
	flush := func() {
		if curLen == 0 {
			return
		}
		c = append(c, sam.NewCigarOp(cigarOpType(curType), curLen))
	}
	for _, op := range a.Ops {
		if op.Type != curType {
			flush()
			curType = op.Type
			curLen = 0
		}
		curLen += op.Len
	}
	flush()
	return c
}

func cigarOpType(t OpType) sam.CigarOpType {
	switch t {
	case OpMatch:
		return sam.CigarMatch
	case OpMismatch:
		return sam.CigarMismatch
	case OpInsertion:
		return sam.CigarInsertion
	case OpDeletion:
		return sam.CigarDeletion
	case OpSoftTrim:
		return sam.CigarSoftClipped
	default:
		return sam.CigarMatch
	}
}

const negInf = int32(-1 << 30)

// biasBudget computes the matrix_bias/match_bias pair of spec.md
// §4.I(i): matrix_bias accommodates the worst-case all-deletion path
// over a text window of length textLen, match_bias is the per-base
// match bonus. used8Bit reports whether their sum stays within a
// saturating 8-bit lane (<=255); when it doesn't, the aligner must
// use the 16-bit path. This module has no real SIMD lanes (see
// DESIGN.md), so both paths run the identical int32 recurrence below;
// used8Bit is carried on Alignment purely as the spec-mandated
// routing decision, not as a distinct numeric representation.
func biasBudget(pen Penalties, textLen int) (matrixBias, matchBias int32, used8Bit bool) {
	matrixBias = pen.GapOpen + int32(textLen)*pen.GapExtend
	matchBias = pen.Match
	return matrixBias, matchBias, matrixBias+matchBias <= 255
}

// Align aligns key against text, anchored by chain's exact regions
// when non-empty (spec.md §4.H/§4.I), within a band of the given
// width, and reports whether the resulting score clears threshold.
func Align(key, text []fmindex.Code, pen Penalties, bandWidth int, chain scaffold.Chain, threshold int32) (Alignment, bool) {
	_, _, used8Bit := biasBudget(pen, len(text))

	var ops []Op
	var score int32
	textBegin, textEnd := -1, -1

	appendSegment := func(keyLo, keyHi, textLo, textHi int) {
		segOps, segScore, segTextBegin, segTextEnd, ok := alignSegment(key[keyLo:keyHi], text[textLo:textHi], pen, bandWidth)
		if !ok {
			return
		}
		ops = append(ops, segOps...)
		score += segScore
		if len(segOps) == 0 {
			// A segment with an empty key (the "free text gap" case of
			// alignSegment) never touches the text, regardless of how
			// much of it was offered; its (0,0) span is a placeholder,
			// not a real anchor, and must not pull textBegin/textEnd
			// toward this segment's slice offset.
			return
		}
		if textBegin == -1 || textLo+segTextBegin < textBegin {
			textBegin = textLo + segTextBegin
		}
		if textLo+segTextEnd > textEnd {
			textEnd = textLo + segTextEnd
		}
	}

	prevKeyEnd, prevTextEnd := 0, 0
	for _, r := range chain.Regions {
		appendSegment(prevKeyEnd, r.KeyBegin, prevTextEnd, r.TextBegin)
		runLen := r.KeyEnd - r.KeyBegin
		ops = append(ops, Op{Type: OpMatch, Len: runLen})
		score += pen.Match * int32(runLen)
		if textBegin == -1 || r.TextBegin < textBegin {
			textBegin = r.TextBegin
		}
		if r.TextEnd > textEnd {
			textEnd = r.TextEnd
		}
		prevKeyEnd, prevTextEnd = r.KeyEnd, r.TextEnd
	}
	appendSegment(prevKeyEnd, len(key), prevTextEnd, len(text))

	if textBegin == -1 {
		textBegin, textEnd = 0, 0
	}

	alignment := Alignment{
		Score:     score,
		Ops:       mergeAdjacent(ops),
		TextBegin: textBegin,
		TextEnd:   textEnd,
		Used8Bit:  used8Bit,
	}
	return alignment, score >= threshold
}

func mergeAdjacent(ops []Op) []Op {
	if len(ops) == 0 {
		return ops
	}
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		if n := len(out); n > 0 && out[n-1].Type == op.Type && op.Type != OpMismatch {
			out[n-1].Len += op.Len
			continue
		}
		out = append(out, op)
	}
	return out
}

type column struct {
	m, i, d []int32
}

func newColumn(n int) column {
	m := make([]int32, n+1)
	i := make([]int32, n+1)
	d := make([]int32, n+1)
	for k := range m {
		m[k], i[k], d[k] = negInf, negInf, negInf
	}
	return column{m: m, i: i, d: d}
}

func max2(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c int32) int32 {
	return max2(a, max2(b, c))
}

func score1(a, b fmindex.Code, pen Penalties) int32 {
	if a.IsCanonical() && b.IsCanonical() && a == b {
		return pen.Match
	}
	return -pen.Mismatch
}

// alignSegment runs the banded M/I/D Gotoh recurrence of spec.md
// §4.I over a single (key,text) sub-range, free at both text ends
// (the text window is a candidate locus, padded beyond the read's
// expected span) and anchored to consume the full key. It returns
// the operations, score, and the text sub-range actually spanned; ok
// is false when key is non-empty but no band-reachable alignment
// exists (the band was too narrow for the indel budget needed).
func alignSegment(key, text []fmindex.Code, pen Penalties, bandWidth int) (ops []Op, score int32, textBegin, textEnd int, ok bool) {
	m, n := len(key), len(text)
	if m == 0 {
		if n == 0 {
			return nil, 0, 0, 0, true
		}
		return nil, 0, 0, 0, true // free text gap: unconsumed text costs nothing in the glocal model
	}
	if n == 0 {
		// Key must still be consumed: an all-deletion path.
		return []Op{{Type: OpDeletion, Len: m}}, -(pen.GapOpen + int32(m)*pen.GapExtend), 0, 0, true
	}

	cols := make([]column, n+1)
	cols[0] = newColumn(m)
	cols[0].m[0] = 0
	for i := 1; i <= m; i++ {
		// j==0: no text consumed, so only a pure-insertion (key-only)
		// path can reach row i.
		cols[0].i[i] = -(pen.GapOpen + int32(i)*pen.GapExtend)
	}

	lo := func(j int) int {
		l := j - bandWidth
		if l < 0 {
			l = 0
		}
		return l
	}
	hi := func(j int) int {
		h := j + bandWidth
		if h > m {
			h = m
		}
		return h
	}

	for j := 1; j <= n; j++ {
		cur := newColumn(m)
		cur.m[0] = 0
		// i==0: no key consumed, so only a pure-deletion (text-only)
		// path can reach column j.
		cur.d[0] = -(pen.GapOpen + int32(j)*pen.GapExtend)
		prev := cols[j-1]

		rowLo, rowHi := lo(j), hi(j)
		for i := rowLo; i <= rowHi; i++ {
			if i == 0 {
				continue
			}
			diag := max3(prev.m[i-1], prev.i[i-1], prev.d[i-1])
			mCand := diag + score1(key[i-1], text[j-1], pen)
			// Insertion (key consumed, column fixed) depends on this
			// same column's previous row, already final by the time
			// we reach i since this loop runs i in increasing order
			// -- a real vector-lane implementation computes every row
			// of the column at once and needs the Lazy-F resweep to
			// thread this dependency after the fact; a plain
			// sequential loop threads it for free.
			iCand := max2(cur.m[i-1]-pen.GapOpen-pen.GapExtend, cur.i[i-1]-pen.GapExtend)
			// Deletion (text consumed, row fixed) depends only on the
			// previous column, already complete.
			dCand := max2(prev.m[i]-pen.GapOpen-pen.GapExtend, prev.d[i]-pen.GapExtend)
			cur.m[i] = max3(mCand, iCand, dCand)
			cur.i[i] = iCand
			cur.d[i] = dCand
		}
		cols[j] = cur
	}

	bestJ, bestScore, bestState := -1, negInf, byte('m')
	for j := 0; j <= n; j++ {
		c := cols[j]
		if c.m[m] > bestScore {
			bestScore, bestJ, bestState = c.m[m], j, 'm'
		}
	}
	if bestJ == -1 {
		return nil, 0, 0, 0, false
	}

	ops, iBegin := traceback(cols, key, text, pen, m, bestJ, bestState)
	return ops, bestScore, iBegin, bestJ, true
}

// traceback walks the M/I/D matrices backward from (m, j) to i==0,
// emitting operations in text order. The free-text-start boundary
// means the walk can stop as soon as i reaches 0, regardless of how
// much text remains to the left; that remainder is simply not part
// of the alignment (textBegin below it).
func traceback(cols []column, key, text []fmindex.Code, pen Penalties, i, j int, state byte) ([]Op, int) {
	var rev []Op
	for i > 0 {
		if state == 'd' && j == 0 {
			// No text left to delete from: the band masked off every
			// path that could consume the remaining key. Report the
			// remainder as a soft trim rather than indexing before
			// column 0.
			rev = append(rev, Op{Type: OpSoftTrim, Len: i})
			i = 0
			break
		}
		switch state {
		case 'm':
			prev := cols[j-1]
			diag := max3(prev.m[i-1], prev.i[i-1], prev.d[i-1])
			if cur := cols[j]; cur.m[i] != diag+score1(key[i-1], text[j-1], pen) {
				// M took its value from a gap state in this same cell.
				if cur.m[i] == cur.i[i] {
					state = 'i'
				} else {
					state = 'd'
				}
				continue
			}
			if key[i-1].IsCanonical() && text[j-1].IsCanonical() && key[i-1] == text[j-1] {
				rev = append(rev, Op{Type: OpMatch, Len: 1})
			} else {
				rev = append(rev, Op{Type: OpMismatch, Len: 1, Base: text[j-1]})
			}
			switch {
			case diag == prev.m[i-1]:
				state = 'm'
			case diag == prev.i[i-1]:
				state = 'i'
			default:
				state = 'd'
			}
			i--
			j--
		case 'i':
			cur := cols[j]
			rev = append(rev, Op{Type: OpInsertion, Len: 1})
			if cur.i[i] == cur.m[i-1]-pen.GapOpen-pen.GapExtend {
				state = 'm'
			} else {
				state = 'i'
			}
			i--
		case 'd':
			cur := cols[j]
			prev := cols[j-1]
			rev = append(rev, Op{Type: OpDeletion, Len: 1})
			if cur.d[i] == prev.m[i]-pen.GapOpen-pen.GapExtend {
				state = 'm'
			} else {
				state = 'd'
			}
			j--
		}
	}
	ops := make([]Op, len(rev))
	for k := range rev {
		ops[k] = rev[len(rev)-1-k]
	}
	return ops, j
}
