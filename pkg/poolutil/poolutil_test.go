package poolutil

import "testing"

func TestVectorArenaGetReturnsZeroedSlice(t *testing.T) {
	a := NewVectorArena()
	v := a.Get(8)
	if len(v) != 8 {
		t.Fatalf("expected length 8, got %d", len(v))
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected a freshly allocated slice to be zeroed, got %v", v)
		}
	}
}

func TestVectorArenaRecyclesAndClears(t *testing.T) {
	a := NewVectorArena()
	v := a.Get(4)
	v[0], v[1] = 1, 2
	a.Put(v)

	v2 := a.Get(4)
	for _, x := range v2 {
		if x != 0 {
			t.Errorf("expected recycled slice to be cleared, got %v", v2)
		}
	}
}

func TestVectorArenaDistinctDimensionsIndependent(t *testing.T) {
	a := NewVectorArena()
	v4 := a.Get(4)
	v8 := a.Get(8)
	if len(v4) != 4 || len(v8) != 8 {
		t.Fatalf("expected independently sized pools, got %d and %d", len(v4), len(v8))
	}
}

func TestBufferArenaGetRoundsUpToTier(t *testing.T) {
	a := NewBufferArena()
	b := a.Get(100)
	if len(b) != 100 {
		t.Fatalf("expected returned slice length to equal requested size, got %d", len(b))
	}
	if cap(b) < tierSmall {
		t.Errorf("expected underlying capacity to be at least the small tier, got %d", cap(b))
	}
}

func TestBufferArenaGetBeyondLargestTierAllocatesFresh(t *testing.T) {
	a := NewBufferArena()
	size := tierLarge + 1
	b := a.Get(size)
	if len(b) != size {
		t.Fatalf("expected exact-size allocation beyond largest tier, got %d", len(b))
	}
}

func TestBufferArenaPutAndReuse(t *testing.T) {
	a := NewBufferArena()
	b := a.Get(tierSmall)
	a.Put(b)
	b2 := a.Get(tierSmall)
	if len(b2) != tierSmall {
		t.Fatalf("expected reused buffer length %d, got %d", tierSmall, len(b2))
	}
}

func TestBufferArenaPutOutsideTiersIsDropped(t *testing.T) {
	a := NewBufferArena()
	// A buffer whose capacity matches none of the three tiers should
	// simply be dropped, not panic.
	odd := make([]byte, 123)
	a.Put(odd)
}
