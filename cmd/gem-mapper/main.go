// Command gem-mapper is the CLI entry point wiring config -> index
// load -> per-read/per-pair traversal -> SE/PE search -> reported
// match traces. Grounded on cmd/bio-fusion/main.go's flag-parsing +
// grail.Init() idiom; the worker fan-out itself follows
// encoding/converter/convert.go's traverse.Each(len(shards), ...)
// pattern (read everything into an indexable slice, shard it, write
// results back out in input order) rather than bio-fusion's
// channel-based pipeline, since a read or pair here is independent,
// bounded work rather than a streaming transform.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/gemmapper/config"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/indexio"
)

type cliFlags struct {
	indexPrefix string
	r1, r2      string
	output      string

	mappingMode      string
	searchMaxMatches int
	qualityFormat    string
	pairOrientation  string
	pairLayout       string
	pairDiscordant   string
	minTemplateLen   uint64
	maxTemplateLen   uint64
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.indexPrefix, "index", "", "Path prefix of the index bundle (prefix.{text,bwt,fmi,rank,ssa,loc}).")
	flag.StringVar(&f.r1, "r1", "", "Path to the end/1 pre-split record stream (one \"id\\tseq\\tqual\" per line).")
	flag.StringVar(&f.r2, "r2", "", "Path to the end/2 record stream; omit for single-end search.")
	flag.StringVar(&f.output, "output", "", "Where to write reported match traces (default stdout).")
	flag.StringVar(&f.mappingMode, "mapping-mode", "fast", "fast|thorough|complete|brute_force|fixed_filtering|test")
	flag.IntVar(&f.searchMaxMatches, "search-max-matches", 10, "Maximum matches reported per read.")
	flag.StringVar(&f.qualityFormat, "quality-format", "offset_33", "ignore|offset_33|offset_64")
	flag.StringVar(&f.pairOrientation, "pair-orientation", "FR", "Comma-separated subset of FR,RF,FF,RR.")
	flag.StringVar(&f.pairLayout, "pair-layout", "separate,overlap,contain", "Comma-separated subset of separate,overlap,contain.")
	flag.StringVar(&f.pairDiscordant, "pair-discordant-search", "if_no_concordant", "always|if_no_concordant|never")
	flag.Uint64Var(&f.minTemplateLen, "min-template-length", 0, "Minimum concordant template length.")
	flag.Uint64Var(&f.maxTemplateLen, "max-template-length", 1000, "Maximum concordant template length.")
	flag.Parse()
	return f
}

func (f cliFlags) config() config.Config {
	cfg := config.Default()
	cfg.MappingMode = f.mappingMode
	cfg.SearchMaxMatches = f.searchMaxMatches
	cfg.QualityFormat = f.qualityFormat
	cfg.PairedEndSearch = f.r2 != ""
	cfg.MinTemplateLength = f.minTemplateLen
	cfg.MaxTemplateLength = f.maxTemplateLen
	cfg.PairDiscordantSearch = f.pairDiscordant
	cfg.PairOrientation = strings.Split(f.pairOrientation, ",")
	cfg.PairLayout = strings.Split(f.pairLayout, ",")
	return cfg
}

func main() {
	flags := parseFlags()
	cleanup := grail.Init()
	defer cleanup()

	if flags.indexPrefix == "" {
		log.Fatal("gem-mapper: --index is required")
	}
	if flags.r1 == "" {
		log.Fatal("gem-mapper: --r1 is required")
	}

	cfg := flags.config()
	if err := cfg.Validate(); err != nil {
		log.Panicf("gem-mapper: invalid configuration: %v", err)
	}

	ctx := context.Background()
	bundle, err := indexio.ReadBundle(ctx, flags.indexPrefix)
	if err != nil {
		log.Panicf("gem-mapper: read index %v: %v", flags.indexPrefix, err)
	}
	idx := bundle.BuildIndex()
	locator := bundle.BuildLocator()

	out := openOutput(flags.output)
	defer out.Flush()

	if cfg.PairedEndSearch {
		runPaired(idx, locator, cfg, flags, out)
	} else {
		runSingle(idx, locator, bundle, cfg, flags, out)
	}
}

func openOutput(path string) *bufio.Writer {
	if path == "" {
		return bufio.NewWriterSize(os.Stdout, 1<<20)
	}
	f, err := os.Create(path)
	if err != nil {
		log.Panicf("gem-mapper: create %v: %v", path, err)
	}
	return bufio.NewWriterSize(f, 1<<20)
}

func openRecordFile(path string) *os.File {
	f, err := os.Open(path)
	if err != nil {
		log.Panicf("gem-mapper: open %v: %v", path, err)
	}
	return f
}

// runSingle drains flags.r1's record stream into memory, maps every
// read concurrently via traverse.Each, and writes the results back
// out in input order.
func runSingle(idx *fmindex.Index, locator *fmindex.Locator, bundle indexio.Bundle, cfg config.Config, flags cliFlags, out *bufio.Writer) {
	in := openRecordFile(flags.r1)
	defer in.Close()

	var reads []record
	sc := newRecordScanner(in)
	for {
		var r record
		if !sc.Scan(&r) {
			break
		}
		reads = append(reads, r)
	}
	if err := sc.Err(); err != nil {
		log.Panicf("gem-mapper: read %v: %v", flags.r1, err)
	}

	results := make([][]string, len(reads))
	if err := traverse.Each(len(reads), func(i int) error {
		results[i] = runSingleEnd(idx, locator, bundle, cfg, reads[i])
		return nil
	}); err != nil {
		log.Panicf("gem-mapper: %v", err)
	}

	for _, lines := range results {
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
	}
}

// runPaired drains flags.r1/flags.r2 in lockstep and maps every pair
// concurrently, the paired-end analogue of runSingle.
func runPaired(idx *fmindex.Index, locator *fmindex.Locator, cfg config.Config, flags cliFlags, out *bufio.Writer) {
	in1 := openRecordFile(flags.r1)
	defer in1.Close()
	in2 := openRecordFile(flags.r2)
	defer in2.Close()

	var reads1, reads2 []record
	sc := newRecordPairScanner(in1, in2)
	for {
		var r1, r2 record
		if !sc.Scan(&r1, &r2) {
			break
		}
		reads1 = append(reads1, r1)
		reads2 = append(reads2, r2)
	}
	if err := sc.Err(); err != nil {
		log.Panicf("gem-mapper: read %v/%v: %v", flags.r1, flags.r2, err)
	}

	results := make([][]string, len(reads1))
	if err := traverse.Each(len(reads1), func(i int) error {
		results[i] = runPairedEnd(idx, locator, cfg, reads1[i], reads2[i])
		return nil
	}); err != nil {
		log.Panicf("gem-mapper: %v", err)
	}

	for _, lines := range results {
		for _, l := range lines {
			fmt.Fprintln(out, l)
		}
	}
}
