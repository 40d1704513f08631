package memstore

import (
	"testing"

	"github.com/gibram-io/annidx/internal/hooks"
	"github.com/gibram-io/annidx/internal/vecid"
)

func TestPutAndFetchEmbedding(t *testing.T) {
	s := New(42)
	s.PutEmbedding(1, []float32{1, 2, 3})
	got := s.Fetch(1)
	if len(got) != 3 || got[0] != 1 {
		t.Errorf("unexpected fetched embedding: %v", got)
	}
	if got := s.Fetch(999); got != nil {
		t.Errorf("expected nil for unknown id, got %v", got)
	}
}

func TestStoreAndFetchCode(t *testing.T) {
	s := New(1)
	if err := s.StoreCode(1, []byte{9, 8, 7}); err != nil {
		t.Fatalf("StoreCode: %v", err)
	}
	got := s.Code(1)
	if len(got) != 3 || got[0] != 9 {
		t.Errorf("unexpected code: %v", got)
	}
}

func TestStoreCodeCopiesInput(t *testing.T) {
	s := New(1)
	buf := []byte{1, 2, 3}
	s.StoreCode(1, buf)
	buf[0] = 99
	if got := s.Code(1); got[0] == 99 {
		t.Error("expected StoreCode to copy its input, mutation leaked through")
	}
}

func TestAppendEnforcesMonotonicRelIdx(t *testing.T) {
	s := New(1)
	if err := s.Append(0, hooks.Triple{Src: 0, Dst: 1, RelIdx: 0}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append(0, hooks.Triple{Src: 1, Dst: 2, RelIdx: 1}); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if err := s.Append(0, hooks.Triple{Src: 2, Dst: 3, RelIdx: 1}); err == nil {
		t.Error("expected non-increasing relIdx to be rejected")
	}

	triples := s.Triples(0)
	if len(triples) != 2 {
		t.Fatalf("expected 2 accepted triples, got %d", len(triples))
	}
}

func TestTriplesIsolatedPerPartition(t *testing.T) {
	s := New(1)
	s.Append(0, hooks.Triple{Src: 0, Dst: 1, RelIdx: 0})
	s.Append(1, hooks.Triple{Src: 10, Dst: 11, RelIdx: 0})

	if len(s.Triples(0)) != 1 || len(s.Triples(1)) != 1 {
		t.Fatalf("expected each partition to track its own triples independently")
	}
}

func TestTriplesReturnsCopy(t *testing.T) {
	s := New(1)
	s.Append(0, hooks.Triple{Src: 0, Dst: 1, RelIdx: 0})
	got := s.Triples(0)
	got[0].Dst = vecid.VID(999)
	if fresh := s.Triples(0); fresh[0].Dst == vecid.VID(999) {
		t.Error("expected Triples to return a defensive copy")
	}
}

func TestSeed(t *testing.T) {
	s := New(777)
	if s.Seed() != 777 {
		t.Errorf("Seed() = %d, want 777", s.Seed())
	}
}
