// Package neighborhood implements the neighborhood search of
// spec.md §4.D: for a region and an error budget ε, enumerate the
// BWT intervals of every substring within edit distance ≤ ε of the
// region's key, via a branch-and-bound walk over a DP column vector
// extended one FM-index character at a time.
//
// Grounded on original_source/src/neighborhood_search/dp_matrix.c: the
// column-of-cells layout (one column per character consumed, one row
// per key position) and the classic del/ins/sub recurrence over that
// column are carried over directly; the column there is printed for
// debugging (dp_matrix_print) rather than pruned online, so the
// branch-and-bound pruning itself (stop descending once every cell in
// the column exceeds the error budget) is this package's own
// contribution, grounded on the general bounded-edit-distance-automaton
// technique the header's "interval_set_t" accumulation implies.
package neighborhood

import "github.com/grailbio/gemmapper/fmindex"

// Result is one accepted BWT interval together with the edit distance
// at which it was reached.
type Result struct {
	Interval fmindex.Interval
	Distance int
}

// Search enumerates every BWT interval within maxError edit operations
// of key, walking the FM-index backward (key's last character first),
// exactly as Index.IntervalExtend's own backward-search convention.
func Search(idx *fmindex.Index, key []fmindex.Code, maxError int) []Result {
	n := len(key)
	col := make([]int, n+1)
	for i := range col {
		col[i] = i
	}
	var results []Result
	maxDepth := n + maxError + 1
	searchRec(idx, key, maxError, fmindex.Interval{Lo: 0, Hi: idx.Length()}, col, 0, maxDepth, &results)
	return results
}

func columnMin(col []int) int {
	m := col[0]
	for _, v := range col[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func searchRec(idx *fmindex.Index, key []fmindex.Code, maxError int, interval fmindex.Interval, col []int, depth, maxDepth int, results *[]Result) {
	n := len(key)
	if col[n] <= maxError && !interval.Empty() {
		*results = append(*results, Result{Interval: interval, Distance: col[n]})
	}
	if depth >= maxDepth || interval.Empty() || columnMin(col) > maxError {
		return
	}
	for c := fmindex.Code(0); c < fmindex.NumCanonical; c++ {
		next := idx.IntervalExtend(interval, c)
		if next.Empty() {
			continue
		}
		nextCol := make([]int, n+1)
		nextCol[0] = col[0] + 1 // pure insertion relative to key: skip a text character
		for v := 1; v <= n; v++ {
			del := nextCol[v-1] + 1
			ins := col[v] + 1
			sub := col[v-1]
			if key[n-v] != c {
				sub++
			}
			nextCol[v] = minOf3(del, ins, sub)
		}
		searchRec(idx, key, maxError, next, nextCol, depth+1, maxDepth, results)
	}
}

func minOf3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
