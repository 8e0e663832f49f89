// Package bpm implements bit-parallel Myers edit-distance verification
// (spec.md §4.G): a pattern is compiled once into per-character
// bit-lane masks, tiled into ≤64-character chunks, and each tile is
// verified against a candidate text window using Myers' (1999)
// O(n·⌈m/w⌉) bit-vector recurrence with a quick-abandon early exit.
package bpm

import "github.com/grailbio/gemmapper/fmindex"

// DefaultMinTile and MaxTileLength bound the tile lengths Compile
// chooses between, mirroring spec.md §3's "tile length in
// [min_tile, max_tile]". A tile can never exceed 64 characters: the
// Myers recurrence below packs one bit per pattern position into a
// uint64.
const (
	DefaultMinTile = 32
	MaxTileLength  = 64
)

// Tile is one ≤64-character chunk of a compiled pattern together with
// its precomputed Eq bit-lanes and its share of the error budget.
type Tile struct {
	Offset int // offset of this tile within the full pattern key
	Length int
	Budget int // ceil(err_rate * Length)
	eq     [fmindex.NumCodes]uint64
}

// Pattern is a BPM-compiled pattern: the original key plus its tiles.
type Pattern struct {
	Key   []fmindex.Code
	Tiles []Tile
}

// Compile builds a BPM pattern from key, splitting it into tiles of at
// most MaxTileLength characters (at least minTile characters, except
// possibly the last) and assigning each tile a share of
// maxEffectiveError proportional to its length.
//
// Per spec.md §4.B, compiling this structure is skipped entirely (by
// the caller, package pattern) when maxEffectiveError == 0 — only
// exact lookup is permitted in that case.
func Compile(key []fmindex.Code, maxEffectiveError int, minTile int) *Pattern {
	if minTile <= 0 || minTile > MaxTileLength {
		minTile = DefaultMinTile
	}
	n := len(key)
	p := &Pattern{Key: key}
	errRate := 0.0
	if n > 0 {
		errRate = float64(maxEffectiveError) / float64(n)
	}
	for offset := 0; offset < n; {
		length := MaxTileLength
		if remaining := n - offset; remaining < length {
			length = remaining
		} else if n-offset-length > 0 && n-offset-length < minTile {
			// Avoid leaving a tiny dangling remainder tile: shorten this
			// one so the final tile gets minTile characters.
			length = n - offset - minTile
		}
		tile := Tile{Offset: offset, Length: length}
		tile.Budget = ceilf(errRate * float64(length))
		for i := 0; i < length; i++ {
			tile.eq[key[offset+i]] |= 1 << uint(i)
		}
		p.Tiles = append(p.Tiles, tile)
		offset += length
	}
	return p
}

func ceilf(x float64) int {
	i := int(x)
	if float64(i) < x {
		i++
	}
	return i
}

// TileResult is the outcome of verifying one tile against a text
// window.
type TileResult struct {
	Distance    int // tile_distance
	MatchColumn int // column (offset into the text window) of best match
	Abandoned   bool
}

// verifyTile runs the Myers bit-vector recurrence for one tile against
// text, returning the minimum edit distance reached and the column at
// which it occurred. It abandons (TileResult.Abandoned=true) the
// moment the current score cannot possibly fall back within budget
// given the characters remaining in the window — spec.md §4.G's
// "quick abandon".
func verifyTile(tile *Tile, text []fmindex.Code, budget int) TileResult {
	m := tile.Length
	if m == 0 {
		return TileResult{Distance: 0, MatchColumn: 0}
	}
	var pv, mv uint64
	if m == 64 {
		pv = ^uint64(0)
	} else {
		pv = (uint64(1) << uint(m)) - 1
	}
	score := m
	mask := uint64(1) << uint(m-1)

	best := score
	bestCol := -1

	for j, c := range text {
		eq := tile.eq[c]
		xv := eq | mv
		xh := (((eq & pv) + pv) ^ pv) | eq
		ph := mv | ^(xh | pv)
		mh := pv & xh
		if ph&mask != 0 {
			score++
		} else if mh&mask != 0 {
			score--
		}
		ph <<= 1
		mh <<= 1
		pv = mh | ^(xv | ph)
		mv = ph & xv

		if score < best {
			best = score
			bestCol = j
		}
		remaining := len(text) - 1 - j
		if best-remaining > budget {
			return TileResult{Distance: best, MatchColumn: bestCol, Abandoned: true}
		}
	}
	return TileResult{Distance: best, MatchColumn: bestCol, Abandoned: best > budget}
}

// Result is the joint verification outcome across every tile (spec.md
// §4.F.5.c): an upper bound (the sum of tile distances plus an
// inter-tile link cost) and a lower bound (the sum of tile distances
// alone, without the link cost).
type Result struct {
	Distance       int // align_distance: upper bound
	MinBound       int // align_distance_min_bound: lower bound
	MatchEndColumn int // column of the last tile's best match
	Accepted       bool
}

// Verify runs every tile of p against the corresponding slice of text
// (the candidate text window, already expanded by the caller to
// accommodate indels) and combines the per-tile results. maxError is
// the effective error threshold (spec.md §4.F.5.d): a candidate whose
// MinBound exceeds it is rejected outright.
func Verify(p *Pattern, text []fmindex.Code, maxError int) Result {
	sumDistance := 0
	sumMinBound := 0
	lastCol := 0
	prevTextEnd := 0

	for i := range p.Tiles {
		tile := &p.Tiles[i]
		start, window := tileWindow(text, tile)
		res := verifyTile(tile, window, tile.Budget)
		absCol := start + res.MatchColumn

		sumMinBound += res.Distance
		linkCost := 0
		if i > 0 {
			expectedGap := tile.Offset - p.Tiles[i-1].Offset - p.Tiles[i-1].Length
			actualGap := absCol - prevTextEnd
			if d := actualGap - expectedGap; d > 0 {
				linkCost = d
			} else if d < 0 {
				linkCost = -d
			}
		}
		sumDistance += res.Distance + linkCost
		prevTextEnd = absCol
		lastCol = absCol

		if sumMinBound > maxError {
			return Result{Distance: sumDistance, MinBound: sumMinBound, MatchEndColumn: lastCol, Accepted: false}
		}
	}
	return Result{
		Distance:       sumDistance,
		MinBound:       sumMinBound,
		MatchEndColumn: lastCol,
		Accepted:       sumMinBound <= maxError,
	}
}

// tileWindow returns the start offset and the slice of text a tile
// should be verified against: the tile's own offset range within the
// overall candidate window, widened by the per-tile budget on both
// sides to tolerate indels shifting the match column.
func tileWindow(text []fmindex.Code, tile *Tile) (int, []fmindex.Code) {
	band := tile.Budget + 1
	start := tile.Offset - band
	if start < 0 {
		start = 0
	}
	end := tile.Offset + tile.Length + band
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		start = end
	}
	return start, text[start:end]
}
