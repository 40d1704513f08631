// Package checkpoint persists partition headers and their quantizer
// blocks: a write-ahead log records insert-batch, partition-publish
// and checkpoint-marker entries, an atomic-rename snapshot writer materializes
// the full persisted layout, and a two-phase-commit coordinator ties
// the two together so a crash mid-snapshot never leaves a partition
// torn.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// SyncMode controls when Append forces data to stable storage.
type SyncMode int

const (
	SyncEveryWrite SyncMode = iota
	SyncPeriodic
	SyncNever
)

// EntryType distinguishes the kinds of operation a WAL entry records.
type EntryType uint8

const (
	EntryInsertBatch EntryType = iota + 1
	EntryPublishPartition
	EntryCheckpoint
)

// Entry is a single WAL record: an insert batch, a partition publish,
// or a checkpoint marker.
type Entry struct {
	LSN       uint64
	Timestamp int64
	Type      EntryType
	Partition uint32
	Data      []byte
	Checksum  uint64
}

// WAL is an append-only log of index mutations, segmented by size and
// checksummed with xxHash64 per entry.
type WAL struct {
	dir  string
	file *os.File
	mu   sync.Mutex

	currentLSN uint64
	flushedLSN uint64
	segmentNum int

	maxSegmentSize int64
	syncMode       SyncMode
}

// NewWAL opens or creates a WAL rooted at dir.
func NewWAL(dir string, syncMode SyncMode) (*WAL, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("checkpoint: create wal dir: %w", err)
	}
	w := &WAL{dir: dir, maxSegmentSize: 64 * 1024 * 1024, syncMode: syncMode}
	if err := w.openSegment(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WAL) openSegment(num int) error {
	path := filepath.Join(w.dir, fmt.Sprintf("wal_%08d.log", num))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if w.file != nil {
		if cerr := w.file.Close(); cerr != nil {
			return cerr
		}
	}
	w.file = f
	w.segmentNum = num
	return nil
}

// Append records one entry, assigning it the next LSN.
func (w *WAL) Append(entryType EntryType, partition uint32, data []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.currentLSN++
	e := &Entry{LSN: w.currentLSN, Timestamp: time.Now().UnixNano(), Type: entryType, Partition: partition, Data: data}
	e.Checksum = checksumEntry(e)

	if err := w.writeEntry(e); err != nil {
		return 0, err
	}
	if w.syncMode == SyncEveryWrite {
		if err := w.file.Sync(); err != nil {
			return 0, err
		}
		w.flushedLSN = w.currentLSN
	}

	if info, err := w.file.Stat(); err == nil && info.Size() > w.maxSegmentSize {
		if err := w.openSegment(w.segmentNum + 1); err != nil {
			return 0, err
		}
	}
	return e.LSN, nil
}

// writeEntry format: [8 LSN][8 timestamp][1 type][4 partition][4 data_len][data][8 checksum]
func (w *WAL) writeEntry(e *Entry) error {
	total := 8 + 8 + 1 + 4 + 4 + len(e.Data) + 8
	buf := make([]byte, total)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], e.LSN)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(e.Timestamp))
	off += 8
	buf[off] = byte(e.Type)
	off++
	binary.LittleEndian.PutUint32(buf[off:], e.Partition)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.Data)))
	off += 4
	copy(buf[off:], e.Data)
	off += len(e.Data)
	binary.LittleEndian.PutUint64(buf[off:], e.Checksum)
	_, err := w.file.Write(buf)
	return err
}

func checksumEntry(e *Entry) uint64 {
	h := xxhash.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], e.LSN)
	h.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(e.Timestamp))
	h.Write(tmp[:])
	h.Write([]byte{byte(e.Type)})
	binary.LittleEndian.PutUint32(tmp[:4], e.Partition)
	h.Write(tmp[:4])
	h.Write(e.Data)
	return h.Sum64()
}

// Sync flushes the current segment to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.flushedLSN = w.currentLSN
	return nil
}

// Flush is an alias for Sync, matching Coordinator's expectations.
func (w *WAL) Flush() error { return w.Sync() }

// CurrentLSN returns the most recently assigned LSN.
func (w *WAL) CurrentLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentLSN
}

// Close syncs and closes the active segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}
