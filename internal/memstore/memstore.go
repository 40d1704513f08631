// Package memstore is an in-memory reference implementation of the
// internal/hooks interfaces, used by tests, examples, and cmd/annctl
// in place of a real embedding database.
package memstore

import (
	"fmt"
	"sync"

	"github.com/gibram-io/annidx/internal/hooks"
	"github.com/gibram-io/annidx/internal/vecid"
)

// Store implements hooks.EmbeddingFetcher, hooks.CodeStore, and
// hooks.PartitionAppender over plain in-memory maps.
type Store struct {
	mu         sync.RWMutex
	embeddings map[vecid.VID][]float32
	codes      map[vecid.VID][]byte
	lastCoded  map[int]vecid.VID // partitionIdx -> last stored vid; StoreCode neither reads nor updates it
	triples    map[int][]hooks.Triple
	seed       uint64
}

// New creates an empty Store seeded with seed for reproducible tests.
func New(seed uint64) *Store {
	return &Store{
		embeddings: make(map[vecid.VID][]float32),
		codes:      make(map[vecid.VID][]byte),
		lastCoded:  make(map[int]vecid.VID),
		triples:    make(map[int][]hooks.Triple),
		seed:       seed,
	}
}

// PutEmbedding registers the raw embedding for id.
func (s *Store) PutEmbedding(id vecid.VID, v []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[id] = v
}

func (s *Store) Fetch(id vecid.VID) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddings[id]
}

func (s *Store) StoreCode(id vecid.VID, code []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[id] = append([]byte(nil), code...)
	return nil
}

// Code returns the previously stored code for id, if any.
func (s *Store) Code(id vecid.VID) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codes[id]
}

func (s *Store) Append(partitionIdx int, t hooks.Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.triples[partitionIdx]
	if len(rows) > 0 && t.RelIdx <= rows[len(rows)-1].RelIdx {
		return fmt.Errorf("memstore: relIdx %d not monotonic after %d", t.RelIdx, rows[len(rows)-1].RelIdx)
	}
	s.triples[partitionIdx] = append(rows, t)
	return nil
}

// Triples returns the accumulated CSR triples for a partition, in
// append order.
func (s *Store) Triples(partitionIdx int) []hooks.Triple {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]hooks.Triple(nil), s.triples[partitionIdx]...)
}

func (s *Store) Seed() uint64 { return s.seed }
