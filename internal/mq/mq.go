// Package mq implements the bounded binary heap used as a candidate
// frontier during single-threaded search, and a lock-sharded
// multi-queue built on top of it for the parallel search engine's
// k-LSM-style global frontier: pushes land on a pseudo-randomly
// chosen shard, pops scan a handful of shards and take the best.
package mq

import (
	"sync"

	"github.com/gibram-io/annidx/internal/vecid"
)

// Item is one candidate in a queue: a vid at a distance from the
// query that owns the queue.
type Item struct {
	ID   vecid.VID
	Dist float32
}

// Heap is a capacity-bounded binary min-heap over Dist, backed by a
// 1-indexed array. PushBounded evicts the current maximum once the
// heap holds max items (used for bounded candidate lists); Push never
// evicts, so a heap filled through Push grows unbounded, as the
// explore frontier does.
type Heap struct {
	items []Item // items[0] unused, heap lives in items[1:]
	max   int    // 0 means unbounded
}

// NewHeap creates a heap bounded at capacity max items. max <= 0
// means unbounded.
func NewHeap(max int) *Heap {
	return &Heap{items: make([]Item, 1, max+1), max: max}
}

// Len returns the number of items currently stored.
func (h *Heap) Len() int { return len(h.items) - 1 }

// Push inserts it, maintaining the min-heap property.
func (h *Heap) Push(it Item) {
	h.items = append(h.items, it)
	h.up(len(h.items) - 1)
}

// Min returns the smallest item without removing it.
func (h *Heap) Min() (Item, bool) {
	if h.Len() == 0 {
		return Item{}, false
	}
	return h.items[1], true
}

// PopMin removes and returns the smallest item.
func (h *Heap) PopMin() (Item, bool) {
	n := h.Len()
	if n == 0 {
		return Item{}, false
	}
	min := h.items[1]
	last := h.items[n]
	h.items = h.items[:n]
	if n > 1 {
		h.items[1] = last
		h.down(1)
	}
	return min, true
}

// Max scans for the current maximum in O(n); used only by bounded
// candidate lists on the builder's insert path, which are small
// (efConstruction-sized).
func (h *Heap) Max() (int, Item, bool) {
	n := h.Len()
	if n == 0 {
		return 0, Item{}, false
	}
	maxIdx := 1
	for i := 2; i <= n; i++ {
		if h.items[i].Dist > h.items[maxIdx].Dist {
			maxIdx = i
		}
	}
	return maxIdx, h.items[maxIdx], true
}

// PushBounded inserts it if the heap has room, or if it beats the
// current maximum when full, evicting that maximum. Reports whether
// it was inserted.
func (h *Heap) PushBounded(it Item) bool {
	if h.max <= 0 || h.Len() < h.max {
		h.Push(it)
		return true
	}
	idx, worst, ok := h.Max()
	if !ok || it.Dist >= worst.Dist {
		return false
	}
	h.items[idx] = it
	h.fixAt(idx)
	return true
}

func (h *Heap) fixAt(i int) {
	h.down(i)
	h.up(i)
}

func (h *Heap) up(i int) {
	for i > 1 {
		parent := i / 2
		if h.items[parent].Dist <= h.items[i].Dist {
			break
		}
		h.items[parent], h.items[i] = h.items[i], h.items[parent]
		i = parent
	}
}

func (h *Heap) down(i int) {
	n := h.Len()
	for {
		left, right := 2*i, 2*i+1
		smallest := i
		if left <= n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right <= n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// Items returns the stored items in arbitrary (heap) order.
func (h *Heap) Items() []Item {
	return append([]Item(nil), h.items[1:]...)
}

// dummyIter bounds how many shards a MultiQueue pop probes before
// giving up and returning whatever it found, matching the k-LSM
// approach of tolerating slight unfairness for lock-free throughput.
const dummyIter = 5

// shard is one lock-striped partition of a MultiQueue.
type shard struct {
	mu   sync.Mutex
	heap *Heap
}

// MultiQueue is a sharded priority queue: concurrent search workers
// push candidates onto a pseudo-randomly chosen shard and pop the
// global minimum by probing a bounded number of shards, trading exact
// ordering for low contention.
type MultiQueue struct {
	shards []*shard
}

// NewMultiQueue creates a MultiQueue with numShards independent,
// unbounded heaps.
func NewMultiQueue(numShards int) *MultiQueue {
	if numShards < 1 {
		numShards = 1
	}
	mq := &MultiQueue{shards: make([]*shard, numShards)}
	for i := range mq.shards {
		mq.shards[i] = &shard{heap: NewHeap(0)}
	}
	return mq
}

// Push inserts it onto the shard selected by pick (typically
// rng.Source.Intn(numShards)).
func (mq *MultiQueue) Push(pick int, it Item) {
	s := mq.shards[pick%len(mq.shards)]
	s.mu.Lock()
	s.heap.Push(it)
	s.mu.Unlock()
}

// PopMin probes up to dummyIter shards starting at pick and returns
// the best minimum found among them, removing it from its shard. It
// is not guaranteed to be the true global minimum across all shards,
// only among the probed subset. If every probed shard is empty, the
// remaining shards are checked in turn and the first non-empty one is
// popped, so false means no shard held an item (or another goroutine
// emptied the chosen shard first).
func (mq *MultiQueue) PopMin(pick int) (Item, bool) {
	n := len(mq.shards)
	tries := dummyIter
	if tries > n {
		tries = n
	}

	bestShard := -1
	var best Item
	found := false

	for t := 0; t < tries; t++ {
		idx := (pick + t) % n
		s := mq.shards[idx]
		s.mu.Lock()
		it, ok := s.heap.Min()
		s.mu.Unlock()
		if ok && (!found || it.Dist < best.Dist) {
			best = it
			bestShard = idx
			found = true
		}
	}
	for t := tries; t < n && !found; t++ {
		idx := (pick + t) % n
		s := mq.shards[idx]
		s.mu.Lock()
		_, ok := s.heap.Min()
		s.mu.Unlock()
		if ok {
			bestShard, found = idx, true
		}
	}
	if !found {
		return Item{}, false
	}

	s := mq.shards[bestShard]
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under lock: another goroutine may have popped ahead
	// of us between the scan above and acquiring this lock.
	it, ok := s.heap.PopMin()
	if !ok {
		return Item{}, false
	}
	return it, true
}

// Peek reports the best minimum found among a bounded probe of
// shards, without removing it, matching the relaxed "load
// min_element" read §4.8 describes for non-mutating top checks.
func (mq *MultiQueue) Peek(pick int) (Item, bool) {
	n := len(mq.shards)
	tries := dummyIter
	if tries > n {
		tries = n
	}
	var best Item
	found := false
	for t := 0; t < tries; t++ {
		idx := (pick + t) % n
		s := mq.shards[idx]
		s.mu.Lock()
		it, ok := s.heap.Min()
		s.mu.Unlock()
		if ok && (!found || it.Dist < best.Dist) {
			best = it
			found = true
		}
	}
	return best, found
}

// Len returns the total number of queued items across all shards.
func (mq *MultiQueue) Len() int {
	total := 0
	for _, s := range mq.shards {
		s.mu.Lock()
		total += s.heap.Len()
		s.mu.Unlock()
	}
	return total
}
