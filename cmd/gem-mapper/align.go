package main

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/gemmapper/config"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/gemerrors"
	"github.com/grailbio/gemmapper/indexio"
	"github.com/grailbio/gemmapper/matches"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/pe"
	"github.com/grailbio/gemmapper/search"
)

// SAM-ish flag bits this stub emitter sets. Not a full SAM writer
// (§1/§6 scope the output as "reported match traces", not a BAM/SAM
// encoder); enough to round-trip mapped/unmapped, strand, and mate
// bookkeeping for a reader skimming the output by eye.
const (
	flagPaired      = 0x1
	flagProperPair  = 0x2
	flagUnmapped    = 0x4
	flagMateReverse = 0x20
	flagRead1       = 0x40
	flagRead2       = 0x80
	flagReverse     = 0x10
)

func allowAnyCode(fmindex.Code) bool { return true }

// runSingleEnd maps one read against idx, folding in an emulated
// reverse-complement search when the index was not built with
// indexed_complement (spec.md §9).
func runSingleEnd(idx *fmindex.Index, locator *fmindex.Locator, bundle indexio.Bundle, cfg config.Config, r record) []string {
	params := cfg.SearchParams(len(r.Seq), allowAnyCode)
	pat, err := pattern.Build([]byte(r.Seq), []byte(r.Qual), cfg.PatternParams(len(r.Seq)))
	if err != nil {
		if gemerrors.IsRecoverable(err) {
			return []string{unmappedLine(r, false)}
		}
		log.Panicf("gem-mapper: build pattern for %s: %v", r.ID, err)
	}

	counters := &search.Counters{}
	result := search.Run(idx, locator, pat, params, counters)

	if !bundle.IndexedComplement {
		mergeReverseComplement(idx, locator, params, cfg, r, &result)
	}

	return samLines(r.ID, r.Seq, r.Qual, result.Store.Traces())
}

// mergeReverseComplement runs the reverse-complement half of the
// search and folds it into result in place, then recomputes the
// combined store's classification and MAPQ (search.Run's own finalize
// step, replayed here since finalize is private to package search and
// a merged store needs to be re-finalized as one match set).
func mergeReverseComplement(idx *fmindex.Index, locator *fmindex.Locator, params search.Params, cfg config.Config, r record, result *search.Result) {
	rcBases := make([]byte, len(r.Seq))
	fmindex.ReverseComplementASCII(rcBases, []byte(r.Seq))
	rcQual := reverseQual(r.Qual)

	rcPat, err := pattern.Build(rcBases, rcQual, cfg.PatternParams(len(r.Seq)))
	if err != nil {
		if gemerrors.IsRecoverable(err) {
			return
		}
		log.Panicf("gem-mapper: build reverse-complement pattern for %s: %v", r.ID, err)
	}

	rcCounters := &search.Counters{}
	rcResult := search.RunReverseComplement(idx, locator, rcPat, params, rcCounters)
	if err := result.Store.Merge(rcResult.Store); err != nil {
		if gemerrors.IsRecoverable(err) {
			log.Error.Printf("gem-mapper: %s: %v, keeping forward-strand matches only", r.ID, err)
			return
		}
		log.Panicf("gem-mapper: merge reverse-complement matches for %s: %v", r.ID, err)
	}
	result.Store.SortByDistance()

	predictors := result.Store.Predictors(len(r.Seq), 0, 0)
	result.Class = matches.Classify(predictors)
	mapq := matches.MAPQ(predictors)
	traces := result.Store.Traces()
	for i := range traces {
		traces[i].MAPQ = mapq
	}
}

// runPairedEnd maps one read pair via the PE control loop.
func runPairedEnd(idx *fmindex.Index, locator *fmindex.Locator, cfg config.Config, r1, r2 record) []string {
	params := cfg.PEParams(len(r1.Seq), len(r2.Seq), allowAnyCode)
	pat1, err1 := pattern.Build([]byte(r1.Seq), []byte(r1.Qual), cfg.PatternParams(len(r1.Seq)))
	pat2, err2 := pattern.Build([]byte(r2.Seq), []byte(r2.Qual), cfg.PatternParams(len(r2.Seq)))
	if err1 != nil && !gemerrors.IsRecoverable(err1) {
		log.Panicf("gem-mapper: build pattern for %s/1: %v", r1.ID, err1)
	}
	if err2 != nil && !gemerrors.IsRecoverable(err2) {
		log.Panicf("gem-mapper: build pattern for %s/2: %v", r2.ID, err2)
	}
	if err1 != nil || err2 != nil {
		return unmappedPairLines(r1, r2)
	}

	counters1 := &search.Counters{}
	counters2 := &search.Counters{}
	result := pe.Run(idx, locator, pat1, pat2, params, counters1, counters2)

	if len(result.Pairs) == 0 {
		return unmappedPairLines(r1, r2)
	}

	var lines []string
	for _, p := range result.Pairs {
		lines = append(lines, pairedLine(r1.ID, r1.Seq, r1.Qual, p.End1, true, p.Concordant, p.End2))
		lines = append(lines, pairedLine(r2.ID, r2.Seq, r2.Qual, p.End2, false, p.Concordant, p.End1))
	}
	return lines
}

func unmappedPairLines(r1, r2 record) []string {
	return []string{unmappedLine(r1, true), unmappedLine(r2, true)}
}

func unmappedLine(r record, paired bool) string {
	flag := flagUnmapped
	if paired {
		flag |= flagPaired
	}
	return samFields(r.ID, flag, "*", 0, 0, "*", r.Seq, r.Qual)
}

func samLines(id, seq, qual string, traces []matches.Trace) []string {
	if len(traces) == 0 {
		return []string{unmappedLine(record{ID: id, Seq: seq, Qual: qual}, false)}
	}
	lines := make([]string, 0, len(traces))
	for _, t := range traces {
		flag := 0
		if t.Strand == fmindex.Reverse {
			flag |= flagReverse
		}
		lines = append(lines, samFields(id, flag, t.SequenceName, t.MatchPosition+1, t.MAPQ, cigarString(t), seq, qual))
	}
	return lines
}

func pairedLine(id, seq, qual string, self matches.Trace, isRead1 bool, concordant bool, mate matches.Trace) string {
	flag := flagPaired
	if concordant {
		flag |= flagProperPair
	}
	if isRead1 {
		flag |= flagRead1
	} else {
		flag |= flagRead2
	}
	if self.Strand == fmindex.Reverse {
		flag |= flagReverse
	}
	if mate.Strand == fmindex.Reverse {
		flag |= flagMateReverse
	}
	return samFields(id, flag, self.SequenceName, self.MatchPosition+1, self.MAPQ, cigarString(self), seq, qual)
}

func cigarString(t matches.Trace) string {
	if len(t.CIGAR) == 0 {
		return "*"
	}
	return fmt.Sprint(t.CIGAR)
}

func samFields(id string, flag int, rname string, pos uint64, mapq int, cigar, seq, qual string) string {
	if qual == "" {
		qual = "*"
	}
	return strings.Join([]string{
		id,
		fmt.Sprintf("%d", flag),
		rname,
		fmt.Sprintf("%d", pos),
		fmt.Sprintf("%d", mapq),
		cigar,
		seq,
		qual,
	}, "\t")
}

func reverseQual(q string) []byte {
	if q == "" {
		return nil
	}
	b := []byte(q)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return b
}
