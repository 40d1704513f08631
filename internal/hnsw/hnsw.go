// Package hnsw is the concurrent builder: per-node mutexes, upper-
// layer entrypoint resolution, best-first lower-layer search, ACORN-
// style neighbor shrink, and back-edge repair. It operates on one
// annindex.Partition at a time and is safe to call concurrently for
// disjoint id ranges within that partition.
package hnsw

import (
	"sync"

	"github.com/gibram-io/annidx/internal/annindex"
	"github.com/gibram-io/annidx/internal/distance"
	"github.com/gibram-io/annidx/internal/graphstore"
	"github.com/gibram-io/annidx/internal/mq"
	"github.com/gibram-io/annidx/internal/rng"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/internal/visited"
	"github.com/gibram-io/annidx/pkg/config"
)

// maxNbrsBeta is the look-ahead budget ACORN admits before requiring
// diversity against the neigh-of-neigh set.
const maxNbrsBeta = 8

// Builder inserts vectors into one partition. It owns a striped lock
// set covering the partition's full local id space so concurrent
// inserts of disjoint ids never race on the same node.
type Builder struct {
	partition *annindex.Partition
	cfg       config.VectorIndexConfig
	locks     []sync.Mutex
}

// NewBuilder creates a Builder for partition, with capacity local ids
// worth of per-node locks.
func NewBuilder(partition *annindex.Partition, cfg config.VectorIndexConfig, capacity int) *Builder {
	return &Builder{partition: partition, cfg: cfg, locks: make([]sync.Mutex, capacity)}
}

func (b *Builder) lock(local int)   { b.locks[local].Lock() }
func (b *Builder) unlock(local int) { b.locks[local].Unlock() }

// BatchInsert inserts every (id, vector) pair. ids are local offsets
// within the partition. It may be called concurrently by multiple
// goroutines for disjoint id ranges.
func (b *Builder) BatchInsert(ids []int, vectors [][]float32, cmp distance.Computer, r *rng.Source) {
	for i, local := range ids {
		b.partition.Rows[local] = vectors[i]
		b.partition.Header.EnsureEntrypoint(local)
		promoted := b.partition.Header.MaybePromote(local, r, b.cfg)
		b.insertLower(local, cmp)
		if promoted {
			b.insertUpper(local, cmp)
		}
	}
}

// searchNNUpper greedily walks the upper layer from start, always
// stepping to the best-improving neighbor, until no neighbor improves
// on the current node.
func (b *Builder) searchNNUpper(start vecid.VID, startDist float32, cmp distance.Computer) (vecid.VID, float32) {
	best, bestDist := start, startDist
	for {
		improved := false
		for _, nb := range b.partition.Upper.Neighbors(int(best)) {
			if nb == vecid.Invalid {
				continue
			}
			d := cmp.Distance(nb)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
		if !improved {
			return best, bestDist
		}
	}
}

// searchANN is the standard HNSW best-first search: a min-heap
// frontier of candidates to expand, and an ef-bounded max-heap of
// results.
func (b *Builder) searchANN(store *graphstore.Store, entry vecid.VID, entryDist float32, ef int, cmp distance.Computer, vis visited.Table) *mq.Heap {
	candidates := mq.NewHeap(0)
	results := mq.NewHeap(ef)

	candidates.Push(mq.Item{ID: entry, Dist: entryDist})
	results.PushBounded(mq.Item{ID: entry, Dist: entryDist})
	vis.Set(uint64(entry))

	for candidates.Len() > 0 {
		cur, _ := candidates.PopMin()
		if _, worst, ok := results.Max(); ok && results.Len() >= ef && cur.Dist > worst.Dist {
			break
		}
		for _, nb := range store.Neighbors(int(cur.ID)) {
			if nb == vecid.Invalid || vis.Get(uint64(nb)) {
				continue
			}
			vis.Set(uint64(nb))
			d := cmp.Distance(nb)
			_, worst, full := results.Max()
			if !full || results.Len() < ef || d < worst.Dist {
				candidates.Push(mq.Item{ID: nb, Dist: d})
				results.PushBounded(mq.Item{ID: nb, Dist: d})
			}
		}
	}
	return results
}

// shrinkNeighborsACORN reduces results to at most maxSize entries
// using RNG-style diversity pruning with beta look-ahead: a candidate
// is admitted while under the beta budget, or afterward only if it is
// not already reachable through a previously admitted neighbor's
// neighbor set.
func shrinkNeighborsACORN(results []mq.Item, maxSize int, store *graphstore.Store) []vecid.VID {
	sortByDist(results)

	admitted := make([]vecid.VID, 0, maxSize)
	neighOfNeigh := make(map[vecid.VID]bool)

	for _, cand := range results {
		if len(admitted) >= maxSize || len(neighOfNeigh) >= maxSize {
			break
		}
		if len(admitted) < maxNbrsBeta || !neighOfNeigh[cand.ID] {
			admitted = append(admitted, cand.ID)
			if len(admitted) > maxNbrsBeta {
				for _, nb := range store.Neighbors(int(cand.ID)) {
					if nb != vecid.Invalid {
						neighOfNeigh[nb] = true
					}
				}
			}
		}
	}
	return admitted
}

func sortByDist(items []mq.Item) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Dist < items[j-1].Dist; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// makeConnection appends dst to src's neighbor block if a free slot
// exists; otherwise it recomputes the shrunken neighbor set from
// src's current neighbors plus dst.
func makeConnection(store *graphstore.Store, src, dst vecid.VID, dist float32, maxNbrs int, cmp distance.Computer) {
	if full := store.AppendNeighbor(int(src), dst); !full {
		return
	}

	existing := store.Neighbors(int(src))
	items := make([]mq.Item, 0, len(existing)+1)
	for _, nb := range existing {
		if nb == vecid.Invalid || nb == dst {
			continue
		}
		items = append(items, mq.Item{ID: nb, Dist: cmp.DistanceBetween(src, nb)})
	}
	items = append(items, mq.Item{ID: dst, Dist: dist})

	shrunk := shrinkNeighborsACORN(items, maxNbrs, store)
	store.SetNeighbors(int(src), shrunk)
}

// insertNode searches from entry with ef = efConstruction, shrinks
// the result set to maxNbrs, installs it as node id's own neighbor
// block, and returns the final set to be repaired as back-edges. id
// itself is excluded from candidates: self-seeded search (entry == id)
// otherwise returns id as its own nearest neighbor.
func (b *Builder) insertNode(store *graphstore.Store, id, entry vecid.VID, entryDist float32, maxNbrs int, cmp distance.Computer, vis visited.Table) []vecid.VID {
	results := b.searchANN(store, entry, entryDist, b.cfg.EfConstruction, cmp, vis)
	vis.Reset()

	items := results.Items()
	filtered := items[:0]
	for _, it := range items {
		if it.ID != id {
			filtered = append(filtered, it)
		}
	}

	backNbrs := shrinkNeighborsACORN(filtered, maxNbrs, store)
	store.SetNeighbors(int(id), backNbrs)
	return backNbrs
}

func gammaScaled(base int, gamma float32) int {
	n := int(float32(base) * gamma)
	if n < 1 {
		n = 1
	}
	return n
}

// insertUpper inserts local as an upper-layer node: it resolves the
// entrypoint (the partition's L0 entrypoint walks to nothing the first
// time since it has no upper neighbors yet, which amounts to
// self-seeding), inserts against the upper store, then repairs
// back-edges.
func (b *Builder) insertUpper(local int, cmp distance.Computer) {
	id := vecid.VID(local)
	cmp.SetQuery(b.partition.Rows[local])

	b.lock(local)
	entry, hasEntry := b.partition.Header.EntrypointLocal()

	var entryDist float32
	if hasEntry {
		entry, entryDist = b.searchNNUpper(entry, cmp.Distance(entry), cmp)
	} else {
		entry, entryDist = id, 0
	}

	maxNbrs := gammaScaled(b.cfg.MaxNbrsUpper, b.cfg.Gamma)
	vis := visited.NewGeneration(len(b.locks))
	backNbrs := b.insertNode(b.partition.Upper, id, entry, entryDist, maxNbrs, cmp, vis)
	b.unlock(local)

	for _, nb := range backNbrs {
		if nb == id {
			continue
		}
		b.lock(int(nb))
		makeConnection(b.partition.Upper, nb, id, cmp.DistanceBetween(nb, id), maxNbrs, cmp)
		b.unlock(int(nb))
	}
}

// insertLower inserts local as a lower-layer node: it finds an
// entrypoint by greedy-walking the upper layer from the partition's
// entrypoint (the L0 entrypoint before any node is promoted, an actual
// upper-layer node afterward), then runs the standard insert/shrink/
// repair sequence against the lower store.
func (b *Builder) insertLower(local int, cmp distance.Computer) {
	id := vecid.VID(local)
	cmp.SetQuery(b.partition.Rows[local])

	b.lock(local)
	entry, hasEntry := b.partition.Header.EntrypointLocal()
	var entryDist float32
	if hasEntry {
		entry, entryDist = b.searchNNUpper(entry, cmp.Distance(entry), cmp)
	} else {
		entry, entryDist = id, 0
	}

	maxNbrs := gammaScaled(b.cfg.MaxNbrsLower, b.cfg.Gamma) * 2
	vis := visited.NewGeneration(len(b.locks))
	backNbrs := b.insertNode(b.partition.Lower, id, entry, entryDist, maxNbrs, cmp, vis)
	b.unlock(local)

	for _, nb := range backNbrs {
		if nb == id {
			continue
		}
		b.lock(int(nb))
		makeConnection(b.partition.Lower, nb, id, cmp.DistanceBetween(nb, id), maxNbrs, cmp)
		b.unlock(int(nb))
	}
}
