// Package search implements VectorSearchTask: one instance per
// (partition, thread slot), cooperatively sharing a per-partition
// multi-queue frontier with its sibling tasks, and the filter-
// selectivity heuristic that decides between skipping, post-
// filtering, or in-filter bounded BFS.
package search

import (
	"github.com/gibram-io/annidx/internal/annindex"
	"github.com/gibram-io/annidx/internal/distance"
	"github.com/gibram-io/annidx/internal/mq"
	"github.com/gibram-io/annidx/internal/rng"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/internal/visited"
)

// FilterMode is the strategy a task picks based on filter selectivity.
type FilterMode int

const (
	// FilterSkip tells the caller to brute-force exact distances
	// instead of running a graph search at all.
	FilterSkip FilterMode = iota
	FilterPost
	FilterIn
)

// ChooseFilterMode implements the selectivity thresholds: <=0.005
// skip, <=0.3 post-filter, >0.3 in-filter.
func ChooseFilterMode(selected, total int) FilterMode {
	if total == 0 {
		return FilterSkip
	}
	sel := float64(selected) / float64(total)
	switch {
	case sel <= 0.005:
		return FilterSkip
	case sel <= 0.3:
		return FilterPost
	default:
		return FilterIn
	}
}

// MaxK implements the §6.3 step function mapping selectivity to a BFS
// probe budget.
func MaxK(selected, total int) int {
	if total == 0 {
		return 0
	}
	sel := float64(selected) / float64(total)
	switch {
	case sel < 0.005:
		return 0
	case sel < 0.1:
		return 20
	case sel < 0.4:
		return 30
	default:
		return 40
	}
}

// Mask is a filter predicate over local ids within a partition.
type Mask interface {
	Allowed(local int) bool
	Selected() int
	Total() int
}

// syncAfterIter is how often the local frontier flushes into the
// shared per-partition multi-queue.
const syncAfterIter = 3

// Task runs one (partition, thread-slot) search: it walks the
// partition's lower-layer graph from the shared entrypoint, honoring
// an optional filter mask, and periodically bulk-pushes its local
// results into the partition-wide MultiQueue so sibling tasks observe
// a converging global frontier.
type Task struct {
	Partition *annindex.Partition
	Cmp       distance.Computer
	MQ        *mq.MultiQueue
	Vis       visited.Table
	RNG       *rng.Source
	EfPerTask int

	// MaxNeighboursCheck bounds in-filter BFS probes; defaults to
	// EfPerTask when zero.
	MaxNeighboursCheck int

	// Cancelled is polled between iterations only; there is no hard
	// preemption mid-iteration.
	Cancelled func() bool
}

// Run executes the search from entry and returns up to k results
// ordered by ascending distance. mask may be nil for an unfiltered
// search.
func (t *Task) Run(entry vecid.VID, entryDist float32, k int, mask Mask) []mq.Item {
	maxCheck := t.MaxNeighboursCheck
	if maxCheck == 0 {
		maxCheck = t.EfPerTask
	}

	mode := FilterPost
	if mask != nil {
		mode = ChooseFilterMode(mask.Selected(), mask.Total())
		if mode == FilterSkip {
			return nil
		}
	}

	candidates := mq.NewHeap(0)
	localResults := mq.NewHeap(t.EfPerTask)
	candidates.Push(mq.Item{ID: entry, Dist: entryDist})
	t.Vis.Set(uint64(entry))

	iter := 0
	probes := 0
	for {
		if candidates.Len() == 0 {
			seed, ok := t.seedRandomMasked(mode, mask, localResults.Len(), k)
			if !ok {
				break
			}
			t.Vis.Set(uint64(seed))
			candidates.Push(mq.Item{ID: seed, Dist: t.Cmp.Distance(seed)})
		}

		if t.Cancelled != nil && t.Cancelled() {
			break
		}

		cur, _ := candidates.PopMin()
		if top, ok := t.MQ.Peek(t.RNG.Intn(1 << 30)); ok {
			if cur.Dist > top.Dist && localResults.Len() >= t.EfPerTask {
				break
			}
		}

		admit := mask == nil || mask.Allowed(int(cur.ID))
		if admit {
			localResults.PushBounded(cur)
		}

		if mode == FilterIn && probes >= maxCheck {
			continue
		}

		for _, nb := range t.Partition.Lower.Neighbors(int(cur.ID)) {
			if nb == vecid.Invalid || t.Vis.Get(uint64(nb)) {
				continue
			}
			if mode == FilterIn && mask != nil && !mask.Allowed(int(nb)) {
				continue
			}
			t.Vis.Set(uint64(nb))
			d := t.Cmp.Distance(nb)
			candidates.Push(mq.Item{ID: nb, Dist: d})
			probes++
		}

		iter++
		if iter%syncAfterIter == 0 {
			t.flush(localResults)
		}
	}
	t.flush(localResults)

	items := localResults.Items()
	sortByDist(items)
	if len(items) > k {
		items = items[:k]
	}
	return items
}

// seedRandomMasked implements the in-filter restart: once the BFS
// frontier collapses (candidates exhausted) before k admitted results
// are found, it picks a random unvisited masked node to resume
// expansion from instead of returning early. Unfiltered and
// post-filter searches never restart; their frontier collapsing means
// the graph itself is exhausted.
func (t *Task) seedRandomMasked(mode FilterMode, mask Mask, admitted, k int) (vecid.VID, bool) {
	if mode != FilterIn || mask == nil || admitted >= k {
		return 0, false
	}
	total := mask.Total()
	if total == 0 {
		return 0, false
	}
	const maxAttempts = 8
	for i := 0; i < maxAttempts; i++ {
		cand := vecid.VID(t.RNG.Intn(total))
		if t.Vis.Get(uint64(cand)) || !mask.Allowed(int(cand)) {
			continue
		}
		return cand, true
	}
	return 0, false
}

func (t *Task) flush(local *mq.Heap) {
	for _, it := range local.Items() {
		t.MQ.Push(t.RNG.Intn(1<<30), it)
	}
}

func sortByDist(items []mq.Item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Dist < items[j-1].Dist; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
