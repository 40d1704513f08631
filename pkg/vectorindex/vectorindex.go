// Package vectorindex is the public entry point: CreateVectorIndex
// registers a header from a Cypher-style WITH option bag,
// UpdateVectorIndex scans an embedding source and builds the graph
// partition by partition, and Search runs a parallel multi-task
// query against one partition. It wires together every internal
// package into the surface a host database's query planner calls.
package vectorindex

import (
	"fmt"
	"sync"

	"github.com/gibram-io/annidx/internal/annindex"
	"github.com/gibram-io/annidx/internal/distance"
	"github.com/gibram-io/annidx/internal/hnsw"
	"github.com/gibram-io/annidx/internal/hooks"
	"github.com/gibram-io/annidx/internal/mq"
	"github.com/gibram-io/annidx/internal/quant"
	"github.com/gibram-io/annidx/internal/rng"
	"github.com/gibram-io/annidx/internal/search"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/internal/visited"
	"github.com/gibram-io/annidx/pkg/config"
	"github.com/gibram-io/annidx/pkg/logging"
	"github.com/gibram-io/annidx/pkg/metrics"
)

// Index is the handle CreateVectorIndex returns; every later
// UPDATE/search call is a method on it.
type Index struct {
	core    *annindex.Index
	fetcher hooks.EmbeddingFetcher
	codes   hooks.CodeStore
	seeds   hooks.RNGSeedProvider
	log     *logging.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	builders map[int]*hnsw.Builder
}

// CreateVectorIndex registers a header for dim-dimensional vectors
// under the options parsed from opts (the Cypher WITH bag), binding
// it to fetcher/codes/seeds for the embedding and code storage this
// index will use on UPDATE.
func CreateVectorIndex(dim int, opts map[string]string, fetcher hooks.EmbeddingFetcher, codes hooks.CodeStore, seeds hooks.RNGSeedProvider, log *logging.Logger, mc *metrics.Collector) (*Index, error) {
	cfg, err := config.ParseOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(dim); err != nil {
		return nil, err
	}

	return &Index{
		core:     annindex.New(dim, cfg),
		fetcher:  fetcher,
		codes:    codes,
		seeds:    seeds,
		log:      log,
		metrics:  mc,
		builders: make(map[int]*hnsw.Builder),
	}, nil
}

// distanceComputer picks the quantized code path when SQ8 training has
// completed and the index is configured to use it, falling back to
// exact raw-row distances otherwise.
func (ix *Index) distanceComputer(partition *annindex.Partition) distance.Computer {
	metric := metricOf(ix.core.Config.DistanceFunc)
	if ix.core.Config.SQEnabled && ix.core.Quantizer != nil {
		return distance.NewQuantized(partition, ix.core.Quantizer, metric)
	}
	return distance.NewRawMemory(partition, metric)
}

func (ix *Index) builderFor(partIdx int, partition *annindex.Partition) *hnsw.Builder {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	b, ok := ix.builders[partIdx]
	if !ok {
		b = hnsw.NewBuilder(partition, ix.core.Config, ix.core.Config.NumVectorsPerPartition)
		ix.builders[partIdx] = b
	}
	return b
}

// metricOf maps the configured DistanceFunc to the internal
// distance.Metric it corresponds to.
func metricOf(df config.DistanceFunc) distance.Metric {
	switch df {
	case config.L2:
		return distance.L2
	case config.IP:
		return distance.IP
	default:
		return distance.Cosine
	}
}

// UpdateVectorIndex scans ids, fetching each vid's embedding through
// the bound fetcher, trains the quantizer if this is the first batch
// and SQEnabled is set, and inserts every vector into its owning
// partition's graph. It is the plan-operator equivalent of "one call
// per partition" §6.1 describes; callers partition ids themselves if
// they want concurrent per-partition execution.
func (ix *Index) UpdateVectorIndex(ids []vecid.VID) error {
	if len(ids) == 0 {
		return nil
	}

	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		v := ix.fetcher.Fetch(id)
		if v == nil {
			return fmt.Errorf("vectorindex: no embedding for vid %d", id)
		}
		vectors[i] = v
	}

	if ix.core.Config.SQEnabled && ix.core.Quantizer == nil {
		if err := ix.trainQuantizer(vectors); err != nil {
			return fmt.Errorf("vectorindex: train quantizer: %w", err)
		}
	}

	n := ix.core.Config.NumVectorsPerPartition
	type batch struct {
		locals  []int
		vectors [][]float32
		globals []vecid.VID
	}
	byPartition := make(map[int]*batch)
	for i, id := range ids {
		partIdx, local := int(id)/n, int(id)%n
		b, ok := byPartition[partIdx]
		if !ok {
			b = &batch{}
			byPartition[partIdx] = b
		}
		b.locals = append(b.locals, local)
		b.vectors = append(b.vectors, vectors[i])
		b.globals = append(b.globals, id)
	}

	seed := rng.NextThreadSeed(ix.seeds.Seed())
	r := rng.New(seed)

	for partIdx, b := range byPartition {
		partition, _ := ix.core.PartitionFor(vecid.VID(partIdx * n))
		builder := ix.builderFor(partIdx, partition)

		if ix.core.Quantizer != nil {
			for i, local := range b.locals {
				code := ix.core.Quantizer.Encode(b.vectors[i])
				partition.Codes[local] = code
				if ix.codes != nil {
					if err := ix.codes.StoreCode(b.globals[i], code); err != nil {
						return fmt.Errorf("vectorindex: store code: %w", err)
					}
				}
			}
		}

		cmp := ix.distanceComputer(partition)
		builder.BatchInsert(b.locals, b.vectors, cmp, r)

		if ix.log != nil {
			ix.log.WithPartition(partIdx).Info("inserted batch of %d vectors", len(b.locals))
		}
	}
	return nil
}

func (ix *Index) trainQuantizer(vectors [][]float32) error {
	t, err := quant.NewTrainer(ix.core.Dim)
	if err != nil {
		return err
	}
	if err := t.BatchTrain(vectors); err != nil {
		return err
	}
	q, err := t.FinalizeTrain()
	if err != nil {
		return err
	}
	ix.core.Quantizer = q
	return nil
}

// Publish drains partIdx's lower-layer adjacency into appender,
// marking the partition stable for readers.
func (ix *Index) Publish(partIdx int, appender hooks.PartitionAppender) error {
	return ix.core.PublishPartition(partIdx, appender)
}

// Search runs a k-nearest-neighbor query against partIdx using
// numTasks parallel VectorSearchTasks sharing one multi-queue
// frontier, matching §4.9's maxNumThreads/ef_per_thread split. mask
// may be nil for an unfiltered search.
func (ix *Index) Search(partIdx int, query []float32, k, numTasks int, mask search.Mask) ([]mq.Item, error) {
	if numTasks < 1 {
		numTasks = 1
	}
	if partIdx < 0 || partIdx >= ix.core.NumPartitions() {
		return nil, fmt.Errorf("vectorindex: partition %d has not been created", partIdx)
	}
	partition := ix.core.Partitions[partIdx]

	entry, hasEntry := partition.Header.EntrypointLocal()
	if !hasEntry {
		return nil, nil
	}

	sharedMQ := mq.NewMultiQueue(numTasks)
	efPerTask := ix.core.Config.EfSearch * 12 / (10 * numTasks)
	if efPerTask < 1 {
		efPerTask = 1
	}

	var wg sync.WaitGroup
	results := make([][]mq.Item, numTasks)
	seed := rng.NextThreadSeed(ix.seeds.Seed())

	for slot := 0; slot < numTasks; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			cmp := ix.distanceComputer(partition)
			cmp.SetQuery(query)
			entryDist := cmp.Distance(entry)

			task := &search.Task{
				Partition: partition,
				Cmp:       cmp,
				MQ:        sharedMQ,
				Vis:       visited.NewBitset(ix.core.Config.NumVectorsPerPartition),
				RNG:       rng.New(seed + uint64(slot)),
				EfPerTask: efPerTask,
			}
			results[slot] = task.Run(entry, entryDist, k, mask)
		}(slot)
	}
	wg.Wait()

	merged := mergeResults(results, k)
	if ix.metrics != nil {
		ix.metrics.RecordSearch(partIdx, 0, len(merged))
	}
	return merged, nil
}

func mergeResults(perTask [][]mq.Item, k int) []mq.Item {
	all := make([]mq.Item, 0, k*len(perTask))
	for _, r := range perTask {
		all = append(all, r...)
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Dist < all[j-1].Dist; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > k {
		all = all[:k]
	}
	return all
}
