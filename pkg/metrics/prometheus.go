package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusAdapter mirrors a Collector's state into Prometheus
// collectors each time Refresh is called, letting a host that already runs a
// Prometheus registry expose the index's metrics without double
// bookkeeping.
type PrometheusAdapter struct {
	collector *Collector

	insertsTotal  prometheus.Counter
	searchesTotal prometheus.Counter
	insertLatency prometheus.Histogram
	searchLatency prometheus.Histogram
	mqDepth       prometheus.Gauge

	prevInserts  int64
	prevSearches int64
}

// NewPrometheusAdapter registers the index's metrics on reg and
// returns an adapter whose Refresh copies collector's values into them.
func NewPrometheusAdapter(reg prometheus.Registerer, collector *Collector) (*PrometheusAdapter, error) {
	a := &PrometheusAdapter{
		collector: collector,
		insertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annidx_inserts_total",
			Help: "Total number of vectors inserted into the index.",
		}),
		searchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annidx_searches_total",
			Help: "Total number of vector search requests served.",
		}),
		insertLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annidx_insert_latency_seconds",
			Help:    "Per-vector insert latency.",
			Buckets: prometheus.DefBuckets,
		}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annidx_search_latency_seconds",
			Help:    "Per-query search latency.",
			Buckets: prometheus.DefBuckets,
		}),
		mqDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "annidx_mq_depth",
			Help: "Current depth of the shared per-partition multi-queue.",
		}),
	}

	for _, c := range []prometheus.Collector{a.insertsTotal, a.searchesTotal, a.insertLatency, a.searchLatency, a.mqDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Refresh pulls the latest counter/gauge values from the bound
// Collector into the registered Prometheus collectors. Call it
// periodically or just before a scrape.
func (a *PrometheusAdapter) Refresh() {
	snap := a.collector.Snapshot()

	total := snap.Counters["annidx_inserts_total"]
	if delta := total - a.prevInserts; delta > 0 {
		a.insertsTotal.Add(float64(delta))
	}
	a.prevInserts = total

	total = snap.Counters["annidx_searches_total"]
	if delta := total - a.prevSearches; delta > 0 {
		a.searchesTotal.Add(float64(delta))
	}
	a.prevSearches = total

	if g, ok := snap.Gauges["annidx_mq_depth"]; ok {
		a.mqDepth.Set(float64(g))
	}
	if h, ok := snap.Histograms["annidx_insert_latency_seconds"]; ok && h.Count > 0 {
		a.insertLatency.Observe(h.Mean)
	}
	if h, ok := snap.Histograms["annidx_search_latency_seconds"]; ok && h.Count > 0 {
		a.searchLatency.Observe(h.Mean)
	}
}
