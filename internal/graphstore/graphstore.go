// Package graphstore implements the fixed-stride, partitioned
// adjacency storage the lower HNSW layer is built on: each partition
// holds up to numVectorsPerPartition vectors, and every vector's
// neighbor list occupies a fixed-size, contiguous block sized for
// maxDegree slots so growth never reallocates or moves a node's
// neighbors.
package graphstore

import (
	"sync"

	"github.com/gibram-io/annidx/internal/vecid"
)

// Store is one partition's adjacency table: a flat []vecid.VID
// array sliced into fixed-stride per-node blocks, plus a live-degree
// counter per node. Unused neighbor slots hold vecid.Invalid.
type Store struct {
	maxDegree int
	adj       []vecid.VID
	degree    []int32
	mu        []sync.Mutex // one stripe per node, guards that node's block + degree
}

// New allocates a partition-local adjacency store for n nodes, each
// with room for up to maxDegree neighbors.
func New(n, maxDegree int) *Store {
	s := &Store{
		maxDegree: maxDegree,
		adj:       make([]vecid.VID, n*maxDegree),
		degree:    make([]int32, n),
		mu:        make([]sync.Mutex, n),
	}
	for i := range s.adj {
		s.adj[i] = vecid.Invalid
	}
	return s
}

// MaxDegree returns the fixed neighbor-slot count per node.
func (s *Store) MaxDegree() int { return s.maxDegree }

// Neighbors returns the live neighbor local-ids of local node i. The
// returned slice is a copy taken under i's lock; later mutations of i
// do not change it.
func (s *Store) Neighbors(i int) []vecid.VID {
	s.mu[i].Lock()
	defer s.mu[i].Unlock()
	d := s.degree[i]
	base := i * s.maxDegree
	out := make([]vecid.VID, d)
	copy(out, s.adj[base:base+int(d)])
	return out
}

// Degree returns the live neighbor count of local node i.
func (s *Store) Degree(i int) int {
	s.mu[i].Lock()
	defer s.mu[i].Unlock()
	return int(s.degree[i])
}

// SetNeighbors overwrites local node i's neighbor block with ids,
// truncating to maxDegree. Used by neighbor-shrink after pruning.
func (s *Store) SetNeighbors(i int, ids []vecid.VID) {
	s.mu[i].Lock()
	defer s.mu[i].Unlock()
	n := len(ids)
	if n > s.maxDegree {
		n = s.maxDegree
	}
	base := i * s.maxDegree
	copy(s.adj[base:base+n], ids[:n])
	for j := n; j < s.maxDegree; j++ {
		s.adj[base+j] = vecid.Invalid
	}
	s.degree[i] = int32(n)
}

// PopulatePartitionBuffer drains a single partition's adjacency into
// emit, one (src, dst, relIdx) triple per live edge, skipping
// Invalid slots. Iteration is partition-major, node-major, slot-
// major, so relIdx is globally monotonically increasing across
// calls that share a running counter.
func (s *Store) PopulatePartitionBuffer(base vecid.VID, nextRelIdx *uint64, emit func(src, dst vecid.VID, relIdx uint64)) {
	n := len(s.degree)
	for i := 0; i < n; i++ {
		d := int(s.degree[i])
		off := i * s.maxDegree
		for slot := 0; slot < d; slot++ {
			dst := s.adj[off+slot]
			if dst == vecid.Invalid {
				continue
			}
			emit(base+vecid.VID(i), base+dst, *nextRelIdx)
			*nextRelIdx++
		}
	}
}

// AppendNeighbor adds id to node i's block if there is a free slot
// and id is not already present, reporting whether the block is now
// full (degree == maxDegree).
func (s *Store) AppendNeighbor(i int, id vecid.VID) (full bool) {
	s.mu[i].Lock()
	defer s.mu[i].Unlock()
	base := i * s.maxDegree
	d := int(s.degree[i])
	for j := 0; j < d; j++ {
		if s.adj[base+j] == id {
			return d == s.maxDegree
		}
	}
	if d < s.maxDegree {
		s.adj[base+d] = id
		s.degree[i] = int32(d + 1)
		d++
	}
	return d == s.maxDegree
}

// PartitionOf returns the partition index a global vid belongs to and
// its local offset, given a fixed partition size. Kept here as the
// single source of truth for the vid->(partition,local) mapping that
// internal/annindex.Index also applies when allocating partitions.
func PartitionOf(id vecid.VID, numVectorsPerPartition int) (partition, local int) {
	return int(id) / numVectorsPerPartition, int(id) % numVectorsPerPartition
}
