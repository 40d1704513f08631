package checkpoint

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/gibram-io/annidx/internal/annindex"
	"github.com/gibram-io/annidx/internal/quant"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/pkg/config"
)

var magic = [4]byte{'A', 'N', 'N', 'I'}

// FileHeader precedes the compressed body. NewReader checks Magic
// before decompressing; Checksum (a CRC32 of the uncompressed body) is
// patched in by Close and is not verified on read.
type FileHeader struct {
	Magic    [4]byte
	Version  uint32
	LSN      uint64
	Checksum uint32
}

// Identifiers are the host database's table/property/rel-table ids
// this checkpoint is bound to (§6.2 part 4).
type Identifiers struct {
	NodeTableID          uint64
	EmbeddingPropertyID  uint64
	CompressedPropertyID uint64
	CSRRelTableID        uint64
}

// PartitionSnapshot is one partition's entrypoint state and
// upper-layer graph (§6.2 part 2).
type PartitionSnapshot struct {
	EntrypointVID     vecid.VID
	EntrypointLevel   uint8
	ActualIDs         []vecid.VID // upper-layer local ids; PartitionSnapshotOf leaves their order undefined
	UpperNeighbors    []vecid.VID // len == len(ActualIDs) * maxNbrsUpper, INVALID_VID padded
	NumVectorsInUpper uint64
}

// Writer writes a checkpoint using the write-to-temp-then-rename
// pattern so a reader never observes a partially written file.
type Writer struct {
	file    *os.File
	gz      *gzip.Writer
	crc     uint32
	written int64
	path    string
	tmpPath string
}

// NewWriter opens path+".tmp" for writing and writes a file header
// (Magic, Version 1, lsn, zero Checksum) ahead of the compressed body.
func NewWriter(path string, lsn uint64) (*Writer, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: create temp snapshot: %w", err)
	}

	placeholder := FileHeader{Magic: magic, Version: 1, LSN: lsn}
	if err := binary.Write(f, binary.LittleEndian, placeholder); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("checkpoint: write file header: %w", err)
	}

	return &Writer{file: f, gz: gzip.NewWriter(f), path: path, tmpPath: tmpPath}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.gz.Write(p)
	w.written += int64(n)
	w.crc = crc32.Update(w.crc, crc32.IEEETable, p[:n])
	return n, err
}

// WriteIndexHeader serializes §6.2 part 1: dim, numVectors, and the
// full VectorIndexConfig.
func (w *Writer) WriteIndexHeader(dim int, numVectors uint64, cfg config.VectorIndexConfig) error {
	return writeAll(w,
		int32(dim), numVectors,
		int32(cfg.MaxNbrsUpper), int32(cfg.MaxNbrsLower), cfg.SamplingProbability,
		int32(cfg.EfConstruction), int32(cfg.EfSearch), cfg.Alpha,
		int32(cfg.NumVectorsPerPartition), cfg.SQEnabled, int32(cfg.DistanceFunc),
	)
}

// WritePartition serializes §6.2 part 2 for one partition.
func (w *Writer) WritePartition(p PartitionSnapshot) error {
	if err := writeAll(w, uint64(p.EntrypointVID), p.EntrypointLevel, uint64(len(p.ActualIDs))); err != nil {
		return err
	}
	for _, id := range p.ActualIDs {
		if err := binary.Write(w, binary.LittleEndian, uint64(id)); err != nil {
			return err
		}
	}
	for _, id := range p.UpperNeighbors {
		if err := binary.Write(w, binary.LittleEndian, uint64(id)); err != nil {
			return err
		}
	}
	return writeAll(w, p.NumVectorsInUpper)
}

// WriteQuantizer serializes §6.2 part 3: dim followed by the six
// per-dimension parameter arrays in vmin, vdiff, alpha, beta,
// alpha2, beta2 order.
func (w *Writer) WriteQuantizer(q *quant.Quantizer) error {
	if err := writeAll(w, int32(q.Dim)); err != nil {
		return err
	}
	for _, arr := range [][]float32{q.VMin, q.VDiff, q.Alpha, q.Beta, q.Alpha2, q.Beta2} {
		for _, v := range arr {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteIdentifiers serializes §6.2 part 4.
func (w *Writer) WriteIdentifiers(ids Identifiers) error {
	return writeAll(w, ids.NodeTableID, ids.EmbeddingPropertyID, ids.CompressedPropertyID, ids.CSRRelTableID)
}

func writeAll(w io.Writer, fields ...interface{}) error {
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// Close finalizes the gzip stream, patches the file header's
// checksum, and atomically renames the temp file into place.
func (w *Writer) Close() error {
	if err := w.gz.Close(); err != nil {
		_ = w.file.Close()
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("checkpoint: close gzip stream: %w", err)
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		_ = w.file.Close()
		return err
	}
	var hdr FileHeader
	if err := binary.Read(w.file, binary.LittleEndian, &hdr); err != nil {
		_ = w.file.Close()
		return err
	}
	hdr.Checksum = w.crc
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, hdr); err != nil {
		_ = w.file.Close()
		return err
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	return os.Rename(w.tmpPath, w.path)
}

// Reader reads back a checkpoint written by Writer.
type Reader struct {
	file *os.File
	gz   *gzip.Reader
	hdr  FileHeader
}

// NewReader opens path and validates its magic number.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var hdr FileHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		_ = f.Close()
		return nil, err
	}
	if hdr.Magic != magic {
		_ = f.Close()
		return nil, fmt.Errorf("checkpoint: bad magic in %s", path)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Reader{file: f, gz: gz, hdr: hdr}, nil
}

// Header returns the file header validated at open time.
func (r *Reader) Header() FileHeader { return r.hdr }

func (r *Reader) Read(p []byte) (int, error) { return r.gz.Read(p) }

// ReadIndexHeader deserializes §6.2 part 1.
func (r *Reader) ReadIndexHeader() (dim int, numVectors uint64, cfg config.VectorIndexConfig, err error) {
	var dim32 int32
	var maxU, maxL, efc, efs, nvp int32
	var samp, alpha float32
	var sq bool
	var dfn int32
	if err = readAll(r, &dim32, &numVectors, &maxU, &maxL, &samp, &efc, &efs, &alpha, &nvp, &sq, &dfn); err != nil {
		return
	}
	dim = int(dim32)
	cfg = config.VectorIndexConfig{
		MaxNbrsUpper: int(maxU), MaxNbrsLower: int(maxL), SamplingProbability: samp,
		EfConstruction: int(efc), EfSearch: int(efs), Alpha: alpha,
		NumVectorsPerPartition: int(nvp), SQEnabled: sq, DistanceFunc: config.DistanceFunc(dfn),
	}
	return
}

// ReadPartition deserializes §6.2 part 2, sized by maxNbrsUpper.
func (r *Reader) ReadPartition(maxNbrsUpper int) (PartitionSnapshot, error) {
	var p PartitionSnapshot
	var entry, numUpper uint64
	var level uint8
	if err := readAll(r, &entry, &level, &numUpper); err != nil {
		return p, err
	}
	p.EntrypointVID = vecid.VID(entry)
	p.EntrypointLevel = level

	p.ActualIDs = make([]vecid.VID, numUpper)
	for i := range p.ActualIDs {
		var v uint64
		if err := readAll(r, &v); err != nil {
			return p, err
		}
		p.ActualIDs[i] = vecid.VID(v)
	}

	p.UpperNeighbors = make([]vecid.VID, int(numUpper)*maxNbrsUpper)
	for i := range p.UpperNeighbors {
		var v uint64
		if err := readAll(r, &v); err != nil {
			return p, err
		}
		p.UpperNeighbors[i] = vecid.VID(v)
	}

	if err := readAll(r, &p.NumVectorsInUpper); err != nil {
		return p, err
	}
	return p, nil
}

// ReadQuantizer deserializes §6.2 part 3.
func (r *Reader) ReadQuantizer() (*quant.Quantizer, error) {
	var dim32 int32
	if err := readAll(r, &dim32); err != nil {
		return nil, err
	}
	dim := int(dim32)
	q := &quant.Quantizer{Dim: dim}
	arrays := []*[]float32{&q.VMin, &q.VDiff, &q.Alpha, &q.Beta, &q.Alpha2, &q.Beta2}
	for _, arr := range arrays {
		*arr = make([]float32, dim)
		for i := range *arr {
			if err := readAll(r, &(*arr)[i]); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

// ReadIdentifiers deserializes §6.2 part 4.
func (r *Reader) ReadIdentifiers() (Identifiers, error) {
	var ids Identifiers
	err := readAll(r, &ids.NodeTableID, &ids.EmbeddingPropertyID, &ids.CompressedPropertyID, &ids.CSRRelTableID)
	return ids, err
}

func readAll(r io.Reader, fields ...interface{}) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the gzip stream and underlying file.
func (r *Reader) Close() error {
	if err := r.gz.Close(); err != nil {
		_ = r.file.Close()
		return err
	}
	return r.file.Close()
}

// PartitionSnapshotOf builds a PartitionSnapshot from a live
// annindex.Partition, projecting its upper-layer membership into the
// ActualIDs/UpperNeighbors layout §6.2 expects.
func PartitionSnapshotOf(p *annindex.Partition, maxNbrsUpper int) PartitionSnapshot {
	entry, _ := p.Header.EntrypointLocal()
	level := uint8(0)
	if p.Header.HasUpperEntrypoint() {
		level = 1
	}

	var actualIDs []vecid.VID
	for local, isUpper := range p.Header.UpperMember {
		if isUpper {
			actualIDs = append(actualIDs, vecid.VID(local))
		}
	}

	neighbors := make([]vecid.VID, len(actualIDs)*maxNbrsUpper)
	for i := range neighbors {
		neighbors[i] = vecid.Invalid
	}
	for i, id := range actualIDs {
		nbrs := p.Upper.Neighbors(int(id))
		copy(neighbors[i*maxNbrsUpper:(i+1)*maxNbrsUpper], nbrs)
	}

	return PartitionSnapshot{
		EntrypointVID:     entry,
		EntrypointLevel:   level,
		ActualIDs:         actualIDs,
		UpperNeighbors:    neighbors,
		NumVectorsInUpper: uint64(len(actualIDs)),
	}
}
