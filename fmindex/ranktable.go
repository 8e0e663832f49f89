package fmindex

// rankMTable is the "rank m-table" accelerator described in spec.md
// §3: a precomputed map from every canonical k-mer (k =
// min_matching_depth) to its BWT interval, letting IntervalSearch skip
// the first k character-at-a-time extension steps. It is purely an
// accelerator; IntervalSearch falls back to per-character extension
// whenever the suffix being searched contains a non-canonical code, or
// one deeper than the table covers.
type rankMTable struct {
	depth   int
	entries map[string]Interval
}

func buildRankMTable(idx *Index, depth int) *rankMTable {
	t := &rankMTable{depth: depth, entries: make(map[string]Interval)}
	key := make([]Code, depth)
	t.fill(idx, key, 0, idx.fullInterval())
	return t
}

func (t *rankMTable) fill(idx *Index, key []Code, pos int, cur Interval) {
	if cur.Empty() {
		return
	}
	if pos == len(key) {
		t.entries[codesToKey(key)] = cur
		return
	}
	for c := Code(0); c < NumCanonical; c++ {
		key[pos] = c
		t.fill(idx, key, pos+1, idx.IntervalExtend(cur, c))
	}
}

func (t *rankMTable) lookup(suffix []Code) (Interval, bool) {
	for _, c := range suffix {
		if !c.IsCanonical() {
			return Interval{}, false
		}
	}
	iv, ok := t.entries[codesToKey(suffix)]
	return iv, ok
}

func codesToKey(codes []Code) string {
	buf := make([]byte, len(codes))
	for i, c := range codes {
		buf[i] = byte(c)
	}
	return string(buf)
}
