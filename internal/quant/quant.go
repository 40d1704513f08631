// Package quant implements the SQ8 scalar quantizer: per-dimension
// range training with 95%-mass histogram trimming, 8-bit encode/
// decode, and the three hot-path distance computers (asymmetric L2,
// asymmetric cosine, symmetric inner product) built on top of it.
package quant

import (
	"fmt"
	"math"
)

// histogramBins is the resolution used for outlier trimming during
// FinalizeTrain.
const histogramBins = 512

// trimMass is the minimum fraction of samples the trimmed window must
// retain.
const trimMass = 0.95

// codeTailBytes is the size of the precomputed fp32 tail appended to
// every encoded vector (Sum_j c_j*alpha_j*beta_j, used by SymIP).
const codeTailBytes = 4

// Quantizer holds trained per-dimension parameters. It is safe for
// concurrent read-only use once FinalizeTrain returns it; retraining
// requires building a new one.
type Quantizer struct {
	Dim    int
	VMin   []float32
	VDiff  []float32
	Alpha  []float32
	Beta   []float32
	Alpha2 []float32
	Beta2  []float32
}

// CodeSize returns the number of bytes one encoded vector occupies.
func (q *Quantizer) CodeSize() int { return q.Dim + codeTailBytes }

// Trainer accumulates per-dimension min/max across batches, then
// performs histogram-based outlier trimming in FinalizeTrain. It
// retains every vector handed to BatchTrain so the histogram pass can
// re-walk the exact training set.
type Trainer struct {
	dim     int
	vmin    []float32
	vmax    []float32
	samples [][]float32
}

// NewTrainer creates a trainer for dim-dimensional vectors. dim must
// be positive.
func NewTrainer(dim int) (*Trainer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("quant: invalid dimension %d", dim)
	}
	t := &Trainer{dim: dim}
	t.vmin = make([]float32, dim)
	t.vmax = make([]float32, dim)
	for i := range t.vmin {
		t.vmin[i] = float32(math.Inf(1))
		t.vmax[i] = float32(math.Inf(-1))
	}
	return t, nil
}

// BatchTrain folds a batch of vectors into the running per-dimension
// min/max and retains the batch for the histogram pass.
func (t *Trainer) BatchTrain(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != t.dim {
			return fmt.Errorf("quant: vector dimension mismatch: expected %d, got %d", t.dim, len(v))
		}
		for i, x := range v {
			if x < t.vmin[i] {
				t.vmin[i] = x
			}
			if x > t.vmax[i] {
				t.vmax[i] = x
			}
		}
	}
	t.samples = append(t.samples, vectors...)
	return nil
}

// FinalizeTrain computes vdiff, trims the window per dimension to the
// shortest 512-bin range covering >= 95% of the training mass, and
// derives alpha/beta/alpha^2/beta^2.
func (t *Trainer) FinalizeTrain() (*Quantizer, error) {
	if len(t.samples) == 0 {
		return nil, fmt.Errorf("quant: no training samples")
	}

	q := &Quantizer{
		Dim:    t.dim,
		VMin:   make([]float32, t.dim),
		VDiff:  make([]float32, t.dim),
		Alpha:  make([]float32, t.dim),
		Beta:   make([]float32, t.dim),
		Alpha2: make([]float32, t.dim),
		Beta2:  make([]float32, t.dim),
	}

	for dim := 0; dim < t.dim; dim++ {
		vmin, vmax := t.vmin[dim], t.vmax[dim]
		vdiff := vmax - vmin
		if vdiff <= 0 {
			// Degenerate (constant) dimension: use a unit-width window so
			// encode/decode stay well-defined.
			vdiff = 1
		}

		trimmedMin, trimmedDiff := trimHistogram(t.samples, dim, vmin, vdiff)

		q.VMin[dim] = trimmedMin
		q.VDiff[dim] = trimmedDiff
		q.Alpha[dim] = trimmedDiff / 255
		q.Beta[dim] = 0.5*q.Alpha[dim] + trimmedMin
		q.Alpha2[dim] = q.Alpha[dim] * q.Alpha[dim]
		q.Beta2[dim] = q.Beta[dim] * q.Beta[dim]
	}

	return q, nil
}

// trimHistogram builds a 512-bin histogram of samples[*][dim] over
// [vmin, vmin+vdiff) and returns the lower edge and width of the
// shortest contiguous bin window covering >= trimMass of the mass.
func trimHistogram(samples [][]float32, dim int, vmin, vdiff float32) (float32, float32) {
	var hist [histogramBins]int
	total := 0
	binWidth := vdiff / histogramBins

	for _, s := range samples {
		x := s[dim]
		bin := int((x - vmin) / binWidth)
		if bin < 0 {
			bin = 0
		}
		if bin >= histogramBins {
			bin = histogramBins - 1
		}
		hist[bin]++
		total++
	}

	if total == 0 {
		return vmin, vdiff
	}

	target := int(math.Ceil(trimMass * float64(total)))

	// Shortest window with sum >= target, via two pointers (all
	// counts are non-negative so the window only needs to grow or
	// shrink monotonically).
	bestLo, bestHi := 0, histogramBins-1
	bestWidth := histogramBins
	sum := 0
	lo := 0
	for hi := 0; hi < histogramBins; hi++ {
		sum += hist[hi]
		for sum-hist[lo] >= target && lo < hi {
			sum -= hist[lo]
			lo++
		}
		if sum >= target {
			width := hi - lo
			if width < bestWidth {
				bestWidth = width
				bestLo, bestHi = lo, hi
			}
		}
	}

	newMin := vmin + float32(bestLo)*binWidth
	newDiff := float32(bestHi-bestLo+1) * binWidth
	if newDiff <= 0 {
		newDiff = binWidth
		if newDiff <= 0 {
			newDiff = 1
		}
	}
	return newMin, newDiff
}

// Encode quantizes x into an 8-bit code plus the precomputed IP tail,
// saturating values outside the trained window.
func (q *Quantizer) Encode(x []float32) []byte {
	code := make([]byte, q.CodeSize())
	q.EncodeInto(x, code)
	return code
}

// EncodeInto writes the encoded form of x into code, which must be at
// least CodeSize() bytes.
func (q *Quantizer) EncodeInto(x []float32, code []byte) {
	var tail float32
	for j := 0; j < q.Dim; j++ {
		scaled := (x[j] - q.VMin[j]) / q.VDiff[j] * 255
		c := int32(math.Floor(float64(scaled)))
		if c < 0 {
			c = 0
		}
		if c > 255 {
			c = 255
		}
		code[j] = byte(c)
		tail += float32(c) * q.Alpha[j] * q.Beta[j]
	}
	putFloat32LE(code[q.Dim:], tail)
}

// Decode reconstructs an approximate vector from a code.
func (q *Quantizer) Decode(code []byte) []float32 {
	out := make([]float32, q.Dim)
	for j := 0; j < q.Dim; j++ {
		out[j] = q.Alpha[j]*float32(code[j]) + q.Beta[j]
	}
	return out
}

func putFloat32LE(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func getFloat32LE(b []byte) float32 {
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

// CodeTail returns the precomputed Sum_j c_j*alpha_j*beta_j stored at
// the end of an encoded block.
func (q *Quantizer) CodeTail(code []byte) float32 {
	return getFloat32LE(code[q.Dim:])
}

// AsymL2sq computes the squared L2 distance between a raw query and an
// encoded vector, decoding on the fly.
func (q *Quantizer) AsymL2sq(query []float32, code []byte) float32 {
	var sum float32
	for j := 0; j < q.Dim; j++ {
		xhat := q.Alpha[j]*float32(code[j]) + q.Beta[j]
		d := query[j] - xhat
		sum += d * d
	}
	return sum
}

// AsymCosine computes cosine distance (1 - cos_sim) between a raw
// query and an encoded vector.
func (q *Quantizer) AsymCosine(query []float32, code []byte) float32 {
	var ab, aa, bb float32
	for j := 0; j < q.Dim; j++ {
		xhat := q.Alpha[j]*float32(code[j]) + q.Beta[j]
		ab += query[j] * xhat
		aa += query[j] * query[j]
		bb += xhat * xhat
	}
	const eps = 1e-12
	denom := float32(math.Sqrt(float64(aa)*float64(bb))) + eps
	return 1 - ab/denom
}

// SymIP computes a symmetric inner-product-style distance between two
// encoded vectors using only their quantized codes: Sum_j
// c1_j*c2_j*alpha2_j + beta2_j, plus c1's precomputed tail.
func (q *Quantizer) SymIP(c1, c2 []byte) float32 {
	var sum float32
	for j := 0; j < q.Dim; j++ {
		sum += float32(c1[j])*float32(c2[j])*q.Alpha2[j] + q.Beta2[j]
	}
	return sum + q.CodeTail(c1)
}
