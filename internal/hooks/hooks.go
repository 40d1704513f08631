// Package hooks defines the external interfaces the core needs from
// its host: fetching embeddings, persisting quantized codes,
// appending CSR adjacency triples, and supplying a reproducible RNG
// seed. A real embedding database binds these to its own storage
// engine; internal/memstore provides an in-memory reference
// implementation for tests and the CLI harness.
package hooks

import "github.com/gibram-io/annidx/internal/vecid"

// EmbeddingFetcher resolves a vid to its raw float32 embedding. The
// returned slice is only guaranteed valid until the next Fetch call
// made through the same fetcher instance.
type EmbeddingFetcher interface {
	Fetch(id vecid.VID) []float32
}

// CodeStore persists a quantized code for a vid. Writes within a
// partition must be monotonic in vid order.
type CodeStore interface {
	StoreCode(id vecid.VID, code []byte) error
}

// Triple is one (src, dst, relIdx) adjacency row destined for the
// persisted CSR rel-table.
type Triple struct {
	Src, Dst vecid.VID
	RelIdx   uint64
}

// PartitionAppender receives the CSR triples produced by
// populate_partition_buffer for one partition.
type PartitionAppender interface {
	Append(partitionIdx int, t Triple) error
}

// RNGSeedProvider supplies the seed the builder and search engine
// derive all their per-thread randomness from, so a host can pin it
// for reproducible tests.
type RNGSeedProvider interface {
	Seed() uint64
}
