// Package annindex owns the index header: partition bookkeeping, the
// upper-layer entrypoint state machine, and reservoir sampling for
// upper-layer membership. It ties together graphstore, quant, and
// distance into the per-partition unit the builder and search engine
// operate on.
package annindex

import (
	"sync"

	"github.com/gibram-io/annidx/internal/graphstore"
	"github.com/gibram-io/annidx/internal/hooks"
	"github.com/gibram-io/annidx/internal/quant"
	"github.com/gibram-io/annidx/internal/rng"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/pkg/config"
)

// EntrypointPhase is the entrypoint state machine: a partition starts
// with no entrypoint, moves to PhaseL0 the moment its first vector
// lands (a lower-layer-only entrypoint, so search and insert never
// have to self-seed past the first vector), and graduates to
// PhaseHasEntrypoint once a node is sampled into the upper layer,
// after which every upper search starts from that node instead.
type EntrypointPhase int

const (
	PhaseNone EntrypointPhase = iota
	PhaseL0
	PhaseHasEntrypoint
)

// PartitionHeader is the per-partition metadata persisted alongside
// its graphstore blocks: entrypoint state, vector count, and the
// upper-layer membership bitmap.
type PartitionHeader struct {
	mu          sync.RWMutex
	Phase       EntrypointPhase
	Entrypoint  vecid.VID
	NumVectors  int
	UpperMember map[int]bool // local offset -> is-upper-layer
}

// NewPartitionHeader returns an empty header.
func NewPartitionHeader() *PartitionHeader {
	return &PartitionHeader{Phase: PhaseNone, Entrypoint: vecid.Invalid, UpperMember: make(map[int]bool)}
}

// EnsureEntrypoint installs local as the partition's L0 entrypoint if
// none exists yet. It must be called on every insert, ahead of
// MaybePromote, so the very first vector in a partition is always
// reachable even when it is never sampled into the upper layer.
func (h *PartitionHeader) EnsureEntrypoint(local int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Phase == PhaseNone {
		h.Entrypoint = vecid.VID(local)
		h.Phase = PhaseL0
	}
}

// MaybePromote samples local node for upper-layer membership with
// probability cfg.SamplingProbability, and if it is the partition's
// first upper-layer node, installs it as the entrypoint, superseding
// any L0-only entrypoint. Returns whether local was promoted.
func (h *PartitionHeader) MaybePromote(local int, r *rng.Source, cfg config.VectorIndexConfig) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	promoted := r.Float64() < float64(cfg.SamplingProbability)
	if promoted {
		h.UpperMember[local] = true
		if h.Phase != PhaseHasEntrypoint {
			h.Entrypoint = vecid.VID(local)
			h.Phase = PhaseHasEntrypoint
		}
	}
	return promoted
}

// IsUpper reports whether local is an upper-layer member.
func (h *PartitionHeader) IsUpper(local int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.UpperMember[local]
}

// EntrypointLocal returns the current entrypoint's local offset and
// whether one exists yet, true from PhaseL0 onward so a lone
// unpromoted vector is still reachable.
func (h *PartitionHeader) EntrypointLocal() (vecid.VID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Entrypoint, h.Phase != PhaseNone
}

// HasUpperEntrypoint reports whether the entrypoint has graduated into
// the upper layer, i.e. whether an upper-layer walk from it can find
// any neighbors at all.
func (h *PartitionHeader) HasUpperEntrypoint() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Phase == PhaseHasEntrypoint
}

// Partition bundles one partition's upper and lower adjacency stores,
// its header, and its quantized codes, so the builder and search
// engine can address a partition as a single unit.
type Partition struct {
	Header *PartitionHeader
	Upper  *graphstore.Store // keyed by the same local offsets as Lower, sparse
	Lower  *graphstore.Store
	Codes  [][]byte // local offset -> SQ8 code, nil entry if unquantized
	Rows   [][]float32
}

// NewPartition allocates a partition sized for capacity vectors under
// cfg.
func NewPartition(capacity int, cfg config.VectorIndexConfig) *Partition {
	return &Partition{
		Header: NewPartitionHeader(),
		Upper:  graphstore.New(capacity, cfg.MaxNbrsUpper),
		Lower:  graphstore.New(capacity, cfg.MaxNbrsLower),
		Codes:  make([][]byte, capacity),
		Rows:   make([][]float32, capacity),
	}
}

// Row implements distance.RowSource.
func (p *Partition) Row(id vecid.VID) []float32 { return p.Rows[id] }

// Code implements distance.CodeSource.
func (p *Partition) Code(id vecid.VID) []byte { return p.Codes[id] }

// Index is the top-level handle the public package hands back from
// Create/Update: the trained quantizer (if SQ8 is enabled), the
// partition list, and the config it was built under.
type Index struct {
	mu         sync.RWMutex
	Config     config.VectorIndexConfig
	Dim        int
	Quantizer  *quant.Quantizer
	Partitions []*Partition
}

// New creates an empty index for dim-dimensional vectors under cfg.
func New(dim int, cfg config.VectorIndexConfig) *Index {
	return &Index{Config: cfg, Dim: dim}
}

// PartitionFor returns the partition a global vid belongs to,
// allocating it (and any partitions before it) if needed.
func (ix *Index) PartitionFor(id vecid.VID) (*Partition, int) {
	n := ix.Config.NumVectorsPerPartition
	partIdx, local := graphstore.PartitionOf(id, n)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for len(ix.Partitions) <= partIdx {
		ix.Partitions = append(ix.Partitions, NewPartition(n, ix.Config))
	}
	return ix.Partitions[partIdx], local
}

// NumPartitions returns the number of partitions allocated so far.
func (ix *Index) NumPartitions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.Partitions)
}

// PublishPartition drains partIdx's lower-layer adjacency into
// appender via graphstore's populate_partition_buffer contract. It
// must only be called once that partition's inserts have completed;
// readers must treat the adjacency as unstable before this call
// returns.
func (ix *Index) PublishPartition(partIdx int, appender hooks.PartitionAppender) error {
	ix.mu.RLock()
	p := ix.Partitions[partIdx]
	ix.mu.RUnlock()

	base := vecid.VID(partIdx * ix.Config.NumVectorsPerPartition)
	var relIdx uint64
	var firstErr error
	p.Lower.PopulatePartitionBuffer(base, &relIdx, func(src, dst vecid.VID, idx uint64) {
		if firstErr != nil {
			return
		}
		firstErr = appender.Append(partIdx, hooks.Triple{Src: src, Dst: dst, RelIdx: idx})
	})
	return firstErr
}
