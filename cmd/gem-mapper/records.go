package main

// cmd/gem-mapper reads FASTA/FASTQ-shaped records already parsed by a
// caller-supplied iterator: FASTQ parsing itself is an external
// collaborator, out of this core's scope. recordScanner reads one
// tab-separated "id\tseq\tqual" record per line (qual may be empty,
// meaning no per-base qualities), the pre-split shape a real FASTQ
// reader upstream would hand this binary for test/demo purposes.

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// record is one pre-split read: an id, its bases, and its optional
// per-base qualities (same length as bases, or empty).
type record struct {
	ID, Seq, Qual string
}

type recordScanner struct {
	r   *bufio.Scanner
	err error
}

func newRecordScanner(r io.Reader) *recordScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &recordScanner{r: sc}
}

// Scan reads the next record into rec, skipping blank lines.
func (s *recordScanner) Scan(rec *record) bool {
	if s.err != nil {
		return false
	}
	for s.r.Scan() {
		line := s.r.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			s.err = fmt.Errorf("record: expected at least \"id\\tseq\", got %q", line)
			return false
		}
		rec.ID = fields[0]
		rec.Seq = fields[1]
		rec.Qual = ""
		if len(fields) >= 3 {
			rec.Qual = fields[2]
		}
		return true
	}
	s.err = s.r.Err()
	return false
}

func (s *recordScanner) Err() error { return s.err }

// recordPairScanner reads two record streams in lockstep, for
// paired-end input.
type recordPairScanner struct {
	a, b *recordScanner
}

func newRecordPairScanner(r1, r2 io.Reader) *recordPairScanner {
	return &recordPairScanner{a: newRecordScanner(r1), b: newRecordScanner(r2)}
}

func (s *recordPairScanner) Scan(r1, r2 *record) bool {
	okA := s.a.Scan(r1)
	okB := s.b.Scan(r2)
	if okA != okB {
		s.a.err = fmt.Errorf("record: mate streams have different record counts")
		return false
	}
	return okA && okB
}

func (s *recordPairScanner) Err() error {
	if s.a.err != nil {
		return s.a.err
	}
	return s.b.err
}
