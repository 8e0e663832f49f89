package fmindex

// decodeNumPositionsPrefetched is the batch-size threshold above which
// DecodeBatch switches from a simple per-index walk to the lock-step
// pipeline that interleaves the LF-mapping walks of every position in
// the batch (spec.md §4.E). The real GEM3 pipeline additionally issues
// hardware prefetches on the upcoming sampled-SA cache line for each
// in-flight walk; that detail is a CPU-cache optimization with no
// portable Go equivalent, so only the interleaving itself — which is
// what makes the batched form profitable even without prefetching, by
// giving the scheduler many independent dependency chains to overlap —
// is reproduced here.
const decodeNumPositionsPrefetched = 16

// sampledSA is the sparse mapping from sampled BWT rows to the text
// position they correspond to.
type sampledSA struct {
	sample map[uint64]uint64
	rate   int
}

func newSampledSA(sample map[uint64]uint64, rate int) *sampledSA {
	if rate <= 0 {
		rate = 1
	}
	return &sampledSA{sample: sample, rate: rate}
}

// lf computes the LF-mapping step at BWT row i: the row of the BWT
// whose suffix is one character longer (the preceding text character).
func (idx *Index) lf(i uint64) uint64 {
	c := idx.bwt[i]
	return idx.cArray[c] + idx.Rank(c, i)
}

// DecodeOne resolves a single SA index (BWT row) to its absolute text
// position by walking LF-mapping steps until a sampled row is reached.
func (idx *Index) DecodeOne(saIndex uint64) uint64 {
	steps := uint64(0)
	i := saIndex
	for {
		if pos, ok := idx.sa.sample[i]; ok {
			return (pos + steps) % idx.length
		}
		i = idx.lf(i)
		steps++
		if steps > idx.length {
			// Internal assertion: every row must reach a sample within
			// one full cycle of LF-mapping. A corrupt or incomplete
			// sampled-SA bundle violates this invariant.
			panic("fmindex: sampled SA walk did not terminate")
		}
	}
}

// DecodeBatch resolves a batch of SA indexes to text positions,
// preserving input order. For small batches it walks each index to
// completion before moving to the next; for large batches it advances
// every unresolved walk one LF step per round, which keeps the walks'
// independent memory accesses in flight together.
func (idx *Index) DecodeBatch(saIndexes []uint64) []uint64 {
	out := make([]uint64, len(saIndexes))
	if len(saIndexes) < decodeNumPositionsPrefetched {
		for i, sa := range saIndexes {
			out[i] = idx.DecodeOne(sa)
		}
		return out
	}

	type walk struct {
		cur   uint64
		steps uint64
		done  bool
	}
	walks := make([]walk, len(saIndexes))
	for i, sa := range saIndexes {
		walks[i].cur = sa
	}
	remaining := len(walks)
	for remaining > 0 {
		for i := range walks {
			w := &walks[i]
			if w.done {
				continue
			}
			if pos, ok := idx.sa.sample[w.cur]; ok {
				out[i] = (pos + w.steps) % idx.length
				w.done = true
				remaining--
				continue
			}
			w.cur = idx.lf(w.cur)
			w.steps++
		}
	}
	return out
}
