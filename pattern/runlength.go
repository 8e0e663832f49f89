package pattern

import "github.com/grailbio/gemmapper/fmindex"

// maxRun is the largest homopolymer run a single RL symbol can
// represent; longer runs are split into multiple symbols of the same
// code, matching the 8-bit run-length field the teacher's on-disk
// formats use elsewhere for small counters.
const maxRun = 255

// runLengthEncode collapses consecutive identical codes in key into a
// single symbol plus a run length, per spec.md §4.B's "RL mode ...
// replaces key with run-length-encoded key and tracks rl_runs[] for
// later CIGAR unroll". Downstream search stages operate entirely on
// the returned rlKey; rlRuns lets the caller unroll an alignment CIGAR
// computed over rlKey back into coordinates over the original key.
func runLengthEncode(key []fmindex.Code) (rlKey []fmindex.Code, rlRuns []uint8) {
	if len(key) == 0 {
		return nil, nil
	}
	rlKey = make([]fmindex.Code, 0, len(key))
	rlRuns = make([]uint8, 0, len(key))
	i := 0
	for i < len(key) {
		c := key[i]
		run := 1
		for i+run < len(key) && key[i+run] == c && run < maxRun {
			run++
		}
		rlKey = append(rlKey, c)
		rlRuns = append(rlRuns, uint8(run))
		i += run
	}
	return rlKey, rlRuns
}

// RLUnrollColumn maps a column index within an RL-encoded key back to
// the column in the original (non-RL) key at which that RL symbol's
// run begins, for CIGAR emission over the caller's original
// coordinates.
func RLUnrollColumn(rlRuns []uint8, rlColumn int) int {
	col := 0
	for i := 0; i < rlColumn && i < len(rlRuns); i++ {
		col += int(rlRuns[i])
	}
	return col
}
