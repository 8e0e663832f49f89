// Package kmerfilter implements the alphabet-indexed k-mer counting
// pre-filter of spec.md §4.B/§4.F: a cheap, allocation-free lower bound
// on the number of errors between a pattern and a candidate text
// window, used to reject hopeless candidates before the much more
// expensive tiled BPM verification (package bpm) runs.
//
// Unlike package fusion's kmerIndex (grailbio-bio fusion/kmer_index.go),
// which hashes arbitrary-length kmers into a sharded lookup table to
// answer "which genes contain this kmer", this filter only ever needs
// fixed-length (K=3) counting profiles compared position-free against
// each other, so the kmers are indexed directly as base-NumCodes
// integers rather than hashed.
package kmerfilter

import "github.com/grailbio/gemmapper/fmindex"

// K is the k-mer length the spec fixes ("3-mer counting profile").
const K = 3

// numBuckets is NumCodes^K: every K-length string over the 7-symbol
// alphabet (including N, SEP, JUMP) gets its own bucket.
const numBuckets = fmindex.NumCodes * fmindex.NumCodes * fmindex.NumCodes

// Profile is a counting profile over every K-mer of a sequence.
type Profile struct {
	counts [numBuckets]int32
}

func bucket(a, b, c fmindex.Code) int {
	return int(a)*fmindex.NumCodes*fmindex.NumCodes + int(b)*fmindex.NumCodes + int(c)
}

// Build counts every overlapping K-mer of seq into a fresh Profile.
func Build(seq []fmindex.Code) *Profile {
	p := &Profile{}
	for i := 0; i+K <= len(seq); i++ {
		p.counts[bucket(seq[i], seq[i+1], seq[i+2])]++
	}
	return p
}

// CountMissing returns the number of K-mer instances present in p but
// absent (in excess) from other — i.e. sum_i max(0, p[i]-other[i]).
// This is the quantity spec.md §4.B's "per-kmer weight" budget is
// measured against: every pattern K-mer that the text profile cannot
// account for implies at least one error nearby.
func (p *Profile) CountMissing(other *Profile) int {
	missing := 0
	for i, c := range p.counts {
		if d := c - other.counts[i]; d > 0 {
			missing += int(d)
		}
	}
	return missing
}

// PassesFilter reports whether the candidate text profile could still
// correspond to the pattern within maxEffectiveError errors: each error
// can invalidate at most K overlapping K-mers, so a candidate whose
// missing K-mer count exceeds maxEffectiveError*K is rejected outright
// without ever reaching BPM.
func PassesFilter(pattern, text *Profile, maxEffectiveError int) bool {
	budget := maxEffectiveError * K
	return pattern.CountMissing(text) <= budget
}

// LowerBoundErrors converts a missing-K-mer count into the minimum
// number of errors that could explain it, for callers that want a
// numeric bound (e.g. to combine with other lower bounds) rather than
// a yes/no filter decision.
func LowerBoundErrors(missing int) int {
	return (missing + K - 1) / K
}
