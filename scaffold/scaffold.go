// Package scaffold implements the scaffold & chain stage of
// spec.md §4.H: given a set of exact matching sub-regions between a
// pattern key and a candidate text window, it chains the largest
// non-overlapping, in-order subset by a longest-increasing-subsequence
// (LIS) objective (coverage desc, sparseness asc), then exact-extends
// each chained region maximally into the gaps it leaves behind.
//
// Grounded directly on
// original_source/src/matches/scaffold/match_scaffold_chain.c: the
// right-to-left DP over match_scaffold_lis_t (coverage/sparseness/
// next_region/chained) and the subsequent left/right exact-extend walk
// are both carried over with the same recursion shape, translated from
// the teacher's raw index arithmetic into Go slices.
package scaffold

import (
	"sort"

	"github.com/grailbio/gemmapper/fmindex"
)

// Region is one exact matching sub-region: a (key,text) interval pair
// where key[KeyBegin:KeyEnd] matches text[TextBegin:TextEnd]
// character-for-character.
type Region struct {
	KeyBegin, KeyEnd   int
	TextBegin, TextEnd int
}

func (r Region) coverage() int { return r.KeyEnd - r.KeyBegin }

func (r Region) overlaps(o Region) bool {
	return r.TextBegin < o.TextEnd && o.TextBegin < r.TextEnd
}

// keyBefore reports whether r precedes o in both key and text order
// (original_source's match_alignment_region_key_cmp < 0 combined with
// the non-overlap check).
func (r Region) keyBefore(o Region) bool {
	return r.KeyEnd <= o.KeyBegin && r.TextEnd <= o.TextBegin
}

func textDistance(a, b Region) int {
	d := b.TextBegin - a.TextEnd
	if d < 0 {
		return -d
	}
	return d
}

// Chain is the result of scaffolding: an ordered, non-overlapping
// subset of the input regions plus the total key coverage they
// represent.
type Chain struct {
	Regions  []Region
	Coverage int
}

type lisEntry struct {
	coverage   int
	sparseness int
	next       int // index of the next chained region, or len(regions) if none
	chained    bool
}

func less(a, b lisEntry) bool {
	if a.coverage != b.coverage {
		return a.coverage > b.coverage
	}
	return a.sparseness < b.sparseness
}

// Build sorts regions by text offset, computes the LIS chain, and
// exact-extends the surviving regions into the key/text headroom left
// by their chain neighbors (spec.md §4.H steps 1-3). key and text are
// the full pattern key and the candidate text window the regions were
// found within; allowed reports whether a code may participate in an
// exact extension (non-canonical codes never do, spec.md §4.B:
// wildcards are "never substituted during search", and the same holds
// for scaffold extension).
func Build(regions []Region, key, text []fmindex.Code, allowed func(fmindex.Code) bool) Chain {
	if len(regions) == 0 {
		return Chain{}
	}
	sorted := append([]Region(nil), regions...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TextBegin != sorted[j].TextBegin {
			return sorted[i].TextBegin < sorted[j].TextBegin
		}
		return sorted[i].TextEnd < sorted[j].TextEnd
	})

	n := len(sorted)
	lis := make([]lisEntry, n)
	for i := n - 1; i >= 0; i-- {
		cur := sorted[i]
		best := lisEntry{coverage: cur.coverage(), sparseness: 0, next: n, chained: true}
		for j := i + 1; j < n; j++ {
			if !lis[j].chained {
				continue
			}
			if !cur.overlaps(sorted[j]) && cur.keyBefore(sorted[j]) {
				joint := lisEntry{
					coverage:   cur.coverage() + lis[j].coverage,
					sparseness: textDistance(cur, sorted[j]) + lis[j].sparseness,
					next:       j,
					chained:    true,
				}
				if less(joint, best) {
					best = joint
				}
				break
			}
			if less(lis[j], best) {
				best = lisEntry{coverage: lis[j].coverage, sparseness: lis[j].sparseness, next: j, chained: false}
			}
		}
		lis[i] = best
	}

	var chained []Region
	i := 0
	coverage := 0
	if n > 0 {
		coverage = lis[0].coverage
	}
	for i < n {
		if lis[i].chained {
			chained = append(chained, sorted[i])
		}
		i = lis[i].next
	}

	exactExtend(chained, key, text, allowed)
	return Chain{Regions: chained, Coverage: recomputeCoverage(chained, coverage)}
}

// recomputeCoverage re-derives total coverage after extension, since
// exactExtend widens regions in place.
func recomputeCoverage(regions []Region, fallback int) int {
	if len(regions) == 0 {
		return fallback
	}
	total := 0
	for _, r := range regions {
		total += r.coverage()
	}
	return total
}

// exactExtend widens each chained region left and right as far as
// key/text keep matching, stopping at the previous/next region's
// boundary or the first disallowed character (spec.md §4.H step 3).
func exactExtend(regions []Region, key, text []fmindex.Code, allowed func(fmindex.Code) bool) {
	for i := range regions {
		r := &regions[i]

		leftKeyMax, leftTextMax := 0, 0
		if i > 0 {
			leftKeyMax = regions[i-1].KeyEnd
			leftTextMax = regions[i-1].TextEnd
		}
		lk, lt := r.KeyBegin-1, r.TextBegin-1
		for lk >= leftKeyMax && lt >= leftTextMax {
			if text[lt] != key[lk] || !allowed(text[lt]) {
				break
			}
			lk--
			lt--
		}
		r.KeyBegin, r.TextBegin = lk+1, lt+1

		rightKeyMax, rightTextMax := len(key)-1, len(text)-1
		if i < len(regions)-1 {
			rightKeyMax = regions[i+1].KeyBegin - 1
			rightTextMax = regions[i+1].TextBegin - 1
		}
		rk, rt := r.KeyEnd, r.TextEnd
		for rk <= rightKeyMax && rt <= rightTextMax {
			if text[rt] != key[rk] || !allowed(text[rt]) {
				break
			}
			rk++
			rt++
		}
		r.KeyEnd, r.TextEnd = rk, rt
	}
}
