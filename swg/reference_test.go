package swg

import "github.com/grailbio/gemmapper/fmindex"

// referenceAlign is a from-scratch, unbanded Gotoh aligner used only
// to cross-check Align's banded/striped-in-spirit recurrence
// (spec.md §8 testable property 5: "two independent implementations
// ... yield identical scores on all random (key,text) pairs"). It
// mirrors util/distance.go's plain row-major matrix idiom rather than
// swg.go's column-major/striped layout, so the two really do differ
// in shape, not just in variable names.
func referenceAlign(key, text []fmindex.Code, pen Penalties) int32 {
	m, n := len(key), len(text)
	if m == 0 {
		return 0
	}
	neg := negInf
	M := make([][]int32, m+1)
	I := make([][]int32, m+1)
	D := make([][]int32, m+1)
	for i := range M {
		M[i] = make([]int32, n+1)
		I[i] = make([]int32, n+1)
		D[i] = make([]int32, n+1)
		for j := range M[i] {
			M[i][j], I[i][j], D[i][j] = neg, neg, neg
		}
	}
	M[0][0] = 0
	for j := 1; j <= n; j++ {
		D[0][j] = -(pen.GapOpen + int32(j)*pen.GapExtend)
		M[0][j] = 0 // free text start
	}
	for i := 1; i <= m; i++ {
		I[i][0] = -(pen.GapOpen + int32(i)*pen.GapExtend)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			diag := max3(M[i-1][j-1], I[i-1][j-1], D[i-1][j-1])
			D[i][j] = max2(M[i-1][j]-pen.GapOpen-pen.GapExtend, D[i-1][j]-pen.GapExtend)
			I[i][j] = max2(M[i][j-1]-pen.GapOpen-pen.GapExtend, I[i][j-1]-pen.GapExtend)
			M[i][j] = max3(diag+score1(key[i-1], text[j-1], pen), I[i][j], D[i][j])
		}
	}
	best := neg
	for j := 0; j <= n; j++ {
		if M[m][j] > best {
			best = M[m][j]
		}
	}
	return best
}
