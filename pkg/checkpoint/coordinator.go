package checkpoint

import (
	"fmt"
	"sync"
)

// State is the two-phase-commit state of a checkpoint in progress.
type State int

const (
	StateIdle State = iota
	StatePrepared
	StateCommitted
	StateAborted
)

// Coordinator runs a checkpoint as two-phase commit against a WAL and
// a snapshot path: Prepare flushes the WAL and fixes the consistency
// point's LSN, Commit writes the snapshot at that LSN.
type Coordinator struct {
	wal          *WAL
	snapshotPath string

	mu          sync.Mutex
	state       State
	preparedLSN uint64
}

// NewCoordinator binds a coordinator to wal and the path its
// snapshots are written to.
func NewCoordinator(wal *WAL, snapshotPath string) *Coordinator {
	return &Coordinator{wal: wal, snapshotPath: snapshotPath, state: StateIdle}
}

// Prepare flushes the WAL and records its current LSN as the
// checkpoint's consistency point.
func (c *Coordinator) Prepare() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return 0, fmt.Errorf("checkpoint: already in progress (state %d)", c.state)
	}
	if err := c.wal.Flush(); err != nil {
		return 0, fmt.Errorf("checkpoint: flush wal: %w", err)
	}
	c.preparedLSN = c.wal.CurrentLSN()
	c.state = StatePrepared
	return c.preparedLSN, nil
}

// Commit writes the snapshot via writeFunc at the prepared LSN.
func (c *Coordinator) Commit(writeFunc func(w *Writer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePrepared {
		return fmt.Errorf("checkpoint: not prepared (state %d)", c.state)
	}

	w, err := NewWriter(c.snapshotPath, c.preparedLSN)
	if err != nil {
		c.state = StateAborted
		return err
	}
	if err := writeFunc(w); err != nil {
		_ = w.Close()
		c.state = StateAborted
		return fmt.Errorf("checkpoint: write snapshot body: %w", err)
	}
	if err := w.Close(); err != nil {
		c.state = StateAborted
		return fmt.Errorf("checkpoint: finalize snapshot: %w", err)
	}

	if _, err := c.wal.Append(EntryCheckpoint, 0, nil); err != nil {
		c.state = StateAborted
		return fmt.Errorf("checkpoint: record checkpoint marker: %w", err)
	}

	c.state = StateCommitted
	return nil
}

// Abort discards an in-progress checkpoint.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAborted
}

// Reset returns the coordinator to Idle so another checkpoint can
// begin.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.preparedLSN = 0
}

// ExecuteCheckpoint runs Prepare/Commit/Reset as a single call for
// callers that do not need to interleave other work between phases.
func (c *Coordinator) ExecuteCheckpoint(writeFunc func(w *Writer) error) error {
	if _, err := c.Prepare(); err != nil {
		return err
	}
	if err := c.Commit(writeFunc); err != nil {
		return err
	}
	c.Reset()
	return nil
}
