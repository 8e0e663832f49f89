// Package indexio persists and loads the on-disk index bundle of
// spec.md §6: a set of files sharing a common prefix and extensions
// {text, bwt, fmi, rank, ssa, loc}, each beginning with a 64-bit
// little-endian model version number, a type tag, and a length field,
// then the raw data block padded to a 16-byte boundary.
//
// Grounded on encoding/pam/pamutil.ReadShardIndex/WriteShardIndex for
// the file.Open/file.Create + recordio single-block envelope idiom
// (magic/version check, reject on mismatch); the version+type+length
// envelope itself, and the 16-byte block alignment, come from
// original_source/include/system/mm.h's block convention and spec.md
// §6's own description, since recordio's own framing is opaque to this
// pack (no recordio source shipped in the examples) and spec.md is
// explicit about the header shape a reader must verify.
package indexio

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/gemmapper/fmindex"
	"github.com/grailbio/gemmapper/gemerrors"
)

// FormatVersion is the model version every index file must carry;
// ReadBundle rejects any file stamped with a different value.
const FormatVersion uint64 = 1

const blockAlignment = 16

type fileKind uint64

const (
	kindText fileKind = iota + 1
	kindBWT
	kindFMI
	kindRank
	kindSSA
	kindLoc
)

// Bundle holds everything needed to reconstruct an *fmindex.Index and
// *fmindex.Locator after a WriteBundle/ReadBundle round trip.
type Bundle struct {
	IndexedComplement bool
	SampleRate        int
	MinMatchingDepth  int
	Text              []fmindex.Code // nil if the bundle was built without WithText
	BWT               []fmindex.Code
	Sample            map[uint64]uint64
	SequenceNames     []string
	SequenceLengths   []uint64
}

// BuildLocator reconstructs the sequence locator from b.
func (b Bundle) BuildLocator() *fmindex.Locator {
	return fmindex.NewLocator(b.SequenceNames, b.SequenceLengths, b.IndexedComplement)
}

// BuildIndex reconstructs the read-only FM-index facade from b,
// attaching the plain-text component when present.
func (b Bundle) BuildIndex() *fmindex.Index {
	idx := fmindex.NewIndex(b.BWT, b.Sample, b.SampleRate, b.MinMatchingDepth, b.BuildLocator())
	if b.Text != nil {
		idx = idx.WithText(b.Text)
	}
	return idx
}

// WriteBundle persists b as the six files {prefix}.{text,bwt,fmi,rank,ssa,loc}.
func WriteBundle(ctx context.Context, prefix string, b Bundle) error {
	writes := []struct {
		ext     string
		kind    fileKind
		payload []byte
	}{
		{"text", kindText, codesToBytes(b.Text)},
		{"bwt", kindBWT, codesToBytes(b.BWT)},
		{"fmi", kindFMI, marshalHeader(b)},
		{"rank", kindRank, marshalUint64(uint64(b.MinMatchingDepth))},
		{"ssa", kindSSA, marshalSample(b.Sample)},
		{"loc", kindLoc, marshalLocator(b)},
	}
	for _, w := range writes {
		if err := writeFile(ctx, prefix+"."+w.ext, w.kind, w.payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadBundle loads and verifies all six files written by WriteBundle.
func ReadBundle(ctx context.Context, prefix string) (Bundle, error) {
	var b Bundle

	bwtBytes, err := readFile(ctx, prefix+".bwt", kindBWT)
	if err != nil {
		return b, err
	}
	b.BWT = bytesToCodes(bwtBytes)

	textBytes, err := readFile(ctx, prefix+".text", kindText)
	if err != nil {
		return b, err
	}
	if len(textBytes) > 0 {
		b.Text = bytesToCodes(textBytes)
	}

	fmiBytes, err := readFile(ctx, prefix+".fmi", kindFMI)
	if err != nil {
		return b, err
	}
	if err := unmarshalHeader(fmiBytes, &b); err != nil {
		return b, err
	}

	rankBytes, err := readFile(ctx, prefix+".rank", kindRank)
	if err != nil {
		return b, err
	}
	if len(rankBytes) < 8 {
		return b, errors.E(gemerrors.Index, prefix+".rank", "truncated rank block")
	}
	b.MinMatchingDepth = int(binary.LittleEndian.Uint64(rankBytes))

	ssaBytes, err := readFile(ctx, prefix+".ssa", kindSSA)
	if err != nil {
		return b, err
	}
	if b.Sample, err = unmarshalSample(ssaBytes); err != nil {
		return b, err
	}

	locBytes, err := readFile(ctx, prefix+".loc", kindLoc)
	if err != nil {
		return b, err
	}
	if err := unmarshalLocator(locBytes, &b); err != nil {
		return b, err
	}

	return b, nil
}

// writeFile wraps payload in the version+type+length envelope, pads it
// to a 16-byte boundary, and writes it as a single recordio block.
func writeFile(ctx context.Context, path string, kind fileKind, payload []byte) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, out, &err)

	envelope := encodeEnvelope(kind, payload)
	rio := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{})
	rio.Append(envelope)
	return rio.Finish()
}

// readFile reads path's single recordio block and verifies its
// version and type tag, returning the original (unpadded) payload.
func readFile(ctx context.Context, path string, wantKind fileKind) (payload []byte, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, path)
	}
	defer file.CloseAndReport(ctx, in, &err)

	rio := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	defer rio.Finish() // nolint: errcheck
	if !rio.Scan() {
		return nil, errors.E(gemerrors.Index, path, fmt.Sprintf("failed to read index block: %v", rio.Err()))
	}
	return decodeEnvelope(path, wantKind, rio.Get().([]byte))
}

// encodeEnvelope lays out [version(8) type(8) length(8) payload padded
// to blockAlignment].
func encodeEnvelope(kind fileKind, payload []byte) []byte {
	padded := pad(len(payload))
	buf := make([]byte, 24+padded)
	binary.LittleEndian.PutUint64(buf[0:8], FormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(kind))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(payload)))
	copy(buf[24:], payload)
	return buf
}

func decodeEnvelope(path string, wantKind fileKind, buf []byte) ([]byte, error) {
	if len(buf) < 24 {
		return nil, errors.E(gemerrors.Index, path, "truncated index block header")
	}
	version := binary.LittleEndian.Uint64(buf[0:8])
	if version != FormatVersion {
		return nil, errors.E(gemerrors.Index, path, fmt.Sprintf("index version mismatch: file has %d, reader expects %d", version, FormatVersion))
	}
	kind := fileKind(binary.LittleEndian.Uint64(buf[8:16]))
	if kind != wantKind {
		return nil, errors.E(gemerrors.Index, path, fmt.Sprintf("index file type mismatch: got %d, expected %d", kind, wantKind))
	}
	length := binary.LittleEndian.Uint64(buf[16:24])
	if 24+length > uint64(len(buf)) {
		return nil, errors.E(gemerrors.Index, path, "truncated index payload")
	}
	return buf[24 : 24+length], nil
}

func pad(n int) int {
	if rem := n % blockAlignment; rem != 0 {
		return n + (blockAlignment - rem)
	}
	return n
}

func codesToBytes(codes []fmindex.Code) []byte {
	if codes == nil {
		return nil
	}
	b := make([]byte, len(codes))
	for i, c := range codes {
		b[i] = byte(c)
	}
	return b
}

func bytesToCodes(b []byte) []fmindex.Code {
	codes := make([]fmindex.Code, len(b))
	for i, x := range b {
		codes[i] = fmindex.Code(x)
	}
	return codes
}

func marshalUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func marshalHeader(b Bundle) []byte {
	buf := make([]byte, 24)
	flag := uint64(0)
	if b.IndexedComplement {
		flag = 1
	}
	binary.LittleEndian.PutUint64(buf[0:8], flag)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(b.SampleRate))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(b.SequenceNames)))
	return buf
}

func unmarshalHeader(buf []byte, b *Bundle) error {
	if len(buf) < 24 {
		return errors.E(gemerrors.Index, "fmi", "truncated header block")
	}
	b.IndexedComplement = binary.LittleEndian.Uint64(buf[0:8]) != 0
	b.SampleRate = int(binary.LittleEndian.Uint64(buf[8:16]))
	return nil
}

func marshalSample(sample map[uint64]uint64) []byte {
	buf := make([]byte, 8+16*len(sample))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(sample)))
	off := 8
	for row, pos := range sample {
		binary.LittleEndian.PutUint64(buf[off:off+8], row)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], pos)
		off += 16
	}
	return buf
}

func unmarshalSample(buf []byte) (map[uint64]uint64, error) {
	if len(buf) < 8 {
		return nil, errors.E(gemerrors.Index, "ssa", "truncated sampled-SA block")
	}
	count := binary.LittleEndian.Uint64(buf[0:8])
	want := 8 + 16*count
	if uint64(len(buf)) < want {
		return nil, errors.E(gemerrors.Index, "ssa", "truncated sampled-SA entries")
	}
	sample := make(map[uint64]uint64, count)
	off := 8
	for i := uint64(0); i < count; i++ {
		row := binary.LittleEndian.Uint64(buf[off : off+8])
		pos := binary.LittleEndian.Uint64(buf[off+8 : off+16])
		sample[row] = pos
		off += 16
	}
	return sample, nil
}

func marshalLocator(b Bundle) []byte {
	size := 8
	for _, n := range b.SequenceNames {
		size += 8 + len(n) + 8
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(b.SequenceNames)))
	off := 8
	for i, n := range b.SequenceNames {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(len(n)))
		off += 8
		copy(buf[off:off+len(n)], n)
		off += len(n)
		binary.LittleEndian.PutUint64(buf[off:off+8], b.SequenceLengths[i])
		off += 8
	}
	return buf
}

func unmarshalLocator(buf []byte, b *Bundle) error {
	if len(buf) < 8 {
		return errors.E(gemerrors.Index, "loc", "truncated locator block")
	}
	count := binary.LittleEndian.Uint64(buf[0:8])
	off := 8
	names := make([]string, 0, count)
	lengths := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		if off+8 > len(buf) {
			return errors.E(gemerrors.Index, "loc", "truncated locator entry")
		}
		nameLen := binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
		if uint64(off)+nameLen+8 > uint64(len(buf)) {
			return errors.E(gemerrors.Index, "loc", "truncated locator entry")
		}
		names = append(names, string(buf[off:off+int(nameLen)]))
		off += int(nameLen)
		lengths = append(lengths, binary.LittleEndian.Uint64(buf[off:off+8]))
		off += 8
	}
	b.SequenceNames = names
	b.SequenceLengths = lengths
	return nil
}
