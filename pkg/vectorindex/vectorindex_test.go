package vectorindex

import (
	"math/rand"
	"testing"

	"github.com/gibram-io/annidx/internal/memstore"
	"github.com/gibram-io/annidx/internal/vecid"
	"github.com/gibram-io/annidx/pkg/logging"
	"github.com/gibram-io/annidx/pkg/metrics"
)

func newTestIndex(t *testing.T, dim int, opts map[string]string) (*Index, *memstore.Store) {
	t.Helper()
	store := memstore.New(1)
	log, err := logging.New(logging.Config{Level: "error", Format: "text", Output: "stdout"})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	mc := metrics.NewCollector()

	ix, err := CreateVectorIndex(dim, opts, store, store, store, log, mc)
	if err != nil {
		t.Fatalf("CreateVectorIndex: %v", err)
	}
	return ix, store
}

func randVec(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestCreateVectorIndexRejectsBadOptions(t *testing.T) {
	store := memstore.New(1)
	log, err := logging.New(logging.Config{Level: "error", Format: "text", Output: "stdout"})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	mc := metrics.NewCollector()

	_, err = CreateVectorIndex(8, map[string]string{"maxNbrsAtUpperLevel": "not-a-number"}, store, store, store, log, mc)
	if err == nil {
		t.Error("expected CreateVectorIndex to reject a malformed option value")
	}
}

func TestUpdateAndSearchFindsExactNearestNeighbor(t *testing.T) {
	dim := 8
	ix, store := newTestIndex(t, dim, map[string]string{
		"sqEnabled":              "false",
		"numVectorsPerPartition": "1000",
		"efConstruction":         "64",
		"efSearch":               "64",
		"maxNbrsAtUpperLevel":    "8",
		"maxNbrsAtLowerLevel":    "16",
		"samplingProbability":    "0.3",
	})

	r := rand.New(rand.NewSource(1))
	n := 50
	ids := make([]vecid.VID, n)
	for i := 0; i < n; i++ {
		id := vecid.VID(i)
		store.PutEmbedding(id, randVec(r, dim))
		ids[i] = id
	}

	target := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	store.PutEmbedding(vecid.VID(n), target)
	ids = append(ids, vecid.VID(n))

	if err := ix.UpdateVectorIndex(ids); err != nil {
		t.Fatalf("UpdateVectorIndex: %v", err)
	}

	results, err := ix.Search(0, target, 1, 4, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one search result")
	}
	if results[0].ID != vecid.VID(n) {
		t.Errorf("expected exact match vid %d as the top result, got %d (dist=%f)", n, results[0].ID, results[0].Dist)
	}
}

func TestSearchSingleVectorPartitionReturnsIt(t *testing.T) {
	dim := 4
	ix, store := newTestIndex(t, dim, map[string]string{
		"sqEnabled":              "false",
		"numVectorsPerPartition": "1000",
		"samplingProbability":    "0.3",
	})

	v := []float32{1, 2, 3, 4}
	store.PutEmbedding(vecid.VID(0), v)
	if err := ix.UpdateVectorIndex([]vecid.VID{0}); err != nil {
		t.Fatalf("UpdateVectorIndex: %v", err)
	}

	results, err := ix.Search(0, v, 1, 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != vecid.VID(0) {
		t.Fatalf("expected the lone vector to be returned, got %v", results)
	}
}

func TestSearchWithSQEnabledFindsApproximateNearestNeighbor(t *testing.T) {
	dim := 8
	ix, store := newTestIndex(t, dim, map[string]string{
		"sqEnabled":              "true",
		"numVectorsPerPartition": "1000",
		"efConstruction":         "64",
		"efSearch":               "64",
		"samplingProbability":    "0.3",
	})

	r := rand.New(rand.NewSource(3))
	n := 50
	ids := make([]vecid.VID, n)
	for i := 0; i < n; i++ {
		id := vecid.VID(i)
		store.PutEmbedding(id, randVec(r, dim))
		ids[i] = id
	}
	target := []float32{2, 2, 2, 2, 2, 2, 2, 2}
	store.PutEmbedding(vecid.VID(n), target)
	ids = append(ids, vecid.VID(n))

	if err := ix.UpdateVectorIndex(ids); err != nil {
		t.Fatalf("UpdateVectorIndex: %v", err)
	}
	if ix.core.Quantizer == nil {
		t.Fatal("expected a trained quantizer with sqEnabled")
	}

	results, err := ix.Search(0, target, 3, 4, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected quantized search to return results")
	}
}

func TestSearchOnUncreatedPartitionReturnsError(t *testing.T) {
	ix, _ := newTestIndex(t, 4, map[string]string{"numVectorsPerPartition": "100"})
	if _, err := ix.Search(3, []float32{0, 0, 0, 0}, 1, 1, nil); err == nil {
		t.Error("expected an error searching a partition that was never populated")
	}
}

func TestUpdateVectorIndexMissingEmbeddingErrors(t *testing.T) {
	ix, _ := newTestIndex(t, 4, map[string]string{"numVectorsPerPartition": "100"})
	err := ix.UpdateVectorIndex([]vecid.VID{0})
	if err == nil {
		t.Error("expected an error when the fetcher has no embedding for an id")
	}
}

func TestUpdateVectorIndexEmptyIsNoop(t *testing.T) {
	ix, _ := newTestIndex(t, 4, map[string]string{"numVectorsPerPartition": "100"})
	if err := ix.UpdateVectorIndex(nil); err != nil {
		t.Errorf("expected UpdateVectorIndex(nil) to be a no-op, got %v", err)
	}
}

func TestUpdateVectorIndexTrainsQuantizerOnce(t *testing.T) {
	dim := 4
	ix, store := newTestIndex(t, dim, map[string]string{
		"sqEnabled":              "true",
		"numVectorsPerPartition": "1000",
	})

	r := rand.New(rand.NewSource(2))
	batch1 := []vecid.VID{0, 1, 2}
	for _, id := range batch1 {
		store.PutEmbedding(id, randVec(r, dim))
	}
	if err := ix.UpdateVectorIndex(batch1); err != nil {
		t.Fatalf("first UpdateVectorIndex: %v", err)
	}
	q1 := ix.core.Quantizer
	if q1 == nil {
		t.Fatal("expected quantizer to be trained after first batch with sqEnabled")
	}

	batch2 := []vecid.VID{3, 4}
	for _, id := range batch2 {
		store.PutEmbedding(id, randVec(r, dim))
	}
	if err := ix.UpdateVectorIndex(batch2); err != nil {
		t.Fatalf("second UpdateVectorIndex: %v", err)
	}
	if ix.core.Quantizer != q1 {
		t.Error("expected the quantizer trained on the first batch to persist across later updates")
	}
}
