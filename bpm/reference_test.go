package bpm

import "github.com/grailbio/gemmapper/fmindex"

// referenceEditDistance computes the classic Levenshtein edit distance
// between two encoded sequences with a flat O(n*m) dynamic-programming
// matrix. It exists purely as ground truth for the tiled bit-parallel
// verifier under test; production verification always goes through
// Verify/verifyTile.
//
// Adapted from the teacher repo's util.Levenshtein (grailbio-bio
// util/distance.go), which computes the same recurrence over
// []byte barcodes. That version also supported resuming the
// comparison into caller-supplied "downstream" bytes to handle
// indels shifting a fixed-width barcode read; this domain instead
// always compares two already-delimited sequences, so that
// extension machinery is dropped here.
func referenceEditDistance(a, b []fmindex.Code) int {
	n, m := len(a), len(b)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = j
	}
	for i := 1; i <= n; i++ {
		cur[0] = i
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + 1
			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			cur[j] = min
		}
		prev, cur = cur, prev
	}
	return prev[m]
}
