// Package distance provides the pluggable distance-computer façade
// every search and build path routes through: a small interface
// hiding whether the underlying vectors are raw float32 rows, rows
// reached through a node table, or SQ8-quantized codes. Callers bind
// a query once with SetQuery, then issue many Compute calls against
// candidate vids, matching the access pattern of search.
package distance

import (
	"github.com/gibram-io/annidx/internal/quant"
	"github.com/gibram-io/annidx/internal/simd"
	"github.com/gibram-io/annidx/internal/vecid"
)

// Metric selects which kernel a Computer applies to raw float32 rows.
type Metric int

const (
	L2 Metric = iota
	Cosine
	IP
)

func kernel(m Metric) func(x, y []float32) float32 {
	switch m {
	case L2:
		return simd.L2Sq
	case IP:
		return func(x, y []float32) float32 { return -simd.Dot(x, y) }
	default:
		return simd.Cosine
	}
}

// RowSource returns the raw float32 row stored for a vid. Implemented
// by whatever owns the vector table (internal/annindex, or a test
// fixture); its lifetime must outlive every Computer built on it.
type RowSource interface {
	Row(id vecid.VID) []float32
}

// Computer is the interface every search/build routine consumes. A
// Computer is not safe for concurrent use: each worker goroutine
// binds its own.
type Computer interface {
	// SetQuery binds the query vector; subsequent Distance calls are
	// relative to it.
	SetQuery(query []float32)
	// Distance returns the distance from the bound query to the
	// vector stored at id.
	Distance(id vecid.VID) float32
	// DistanceBetween returns the distance between two stored
	// vectors, ignoring the bound query.
	DistanceBetween(a, b vecid.VID) float32
}

// RawMemory computes distances directly against a RowSource of raw
// float32 vectors. This is the unquantized, exact path.
type RawMemory struct {
	rows   RowSource
	metric Metric
	fn     func(x, y []float32) float32
	query  []float32
}

// NewRawMemory builds an exact-distance Computer over rows under
// metric.
func NewRawMemory(rows RowSource, metric Metric) *RawMemory {
	return &RawMemory{rows: rows, metric: metric, fn: kernel(metric)}
}

func (c *RawMemory) SetQuery(query []float32) { c.query = query }

func (c *RawMemory) Distance(id vecid.VID) float32 {
	return c.fn(c.query, c.rows.Row(id))
}

func (c *RawMemory) DistanceBetween(a, b vecid.VID) float32 {
	return c.fn(c.rows.Row(a), c.rows.Row(b))
}

// CodeSource returns the SQ8 code stored for a vid.
type CodeSource interface {
	Code(id vecid.VID) []byte
}

// Quantized computes distances against SQ8-encoded rows: asymmetric
// (fp32 query vs u8 code) for Distance, code-vs-code for
// DistanceBetween (SymIP under IP, the metric's kernel over both
// decoded codes otherwise), matching the two hot paths a concurrent builder
// needs (query-to-candidate during search, candidate-to-candidate
// during neighbor pruning).
type Quantized struct {
	codes  CodeSource
	q      *quant.Quantizer
	metric Metric
	query  []float32
}

// NewQuantized builds a quantized-code Computer. metric selects
// between AsymL2sq and AsymCosine for the asymmetric path; IP uses
// SymIP for both paths since the quantizer has no asymmetric IP
// formula.
func NewQuantized(codes CodeSource, q *quant.Quantizer, metric Metric) *Quantized {
	return &Quantized{codes: codes, q: q, metric: metric}
}

func (c *Quantized) SetQuery(query []float32) { c.query = query }

func (c *Quantized) Distance(id vecid.VID) float32 {
	code := c.codes.Code(id)
	switch c.metric {
	case L2:
		return c.q.AsymL2sq(c.query, code)
	case IP:
		return -c.q.SymIP(c.q.Encode(c.query), code)
	default:
		return c.q.AsymCosine(c.query, code)
	}
}

func (c *Quantized) DistanceBetween(a, b vecid.VID) float32 {
	ca, cb := c.codes.Code(a), c.codes.Code(b)
	if c.metric == IP {
		return -c.q.SymIP(ca, cb)
	}
	return kernel(c.metric)(c.q.Decode(ca), c.q.Decode(cb))
}

// BatchDistance fills out[i] = cmp.Distance(ids[i]) for every id,
// giving callers a single entry point to later vectorize without
// touching call sites.
func BatchDistance(cmp Computer, ids []vecid.VID, out []float32) {
	for i, id := range ids {
		out[i] = cmp.Distance(id)
	}
}
