// Package simd provides the distance kernels the rest of the index
// calls into: squared L2, cosine distance, inner product, and
// in-place normalization. Kernel selection happens once at process
// init based on detected CPU features (golang.org/x/sys/cpu), never
// per call, matching the source's dispatch-once contract. The "wide"
// kernels below process 8 lanes per iteration with a scalar tail —
// the same shape an AVX-512/NEON intrinsic would take — without
// depending on hand-written, unverifiable assembly.
package simd

import (
	"math"

	"golang.org/x/sys/cpu"
)

type kernelSet struct {
	l2sq   func(x, y []float32) float32
	cosine func(x, y []float32) float32
	dot    func(x, y []float32) float32
}

var active kernelSet

func init() {
	active = selectKernels()
}

func selectKernels() kernelSet {
	if cpu.X86.HasAVX512F || cpu.ARM64.HasASIMD {
		return kernelSet{l2sq: l2sqWide, cosine: cosineWide, dot: dotWide}
	}
	return kernelSet{l2sq: l2sqScalar, cosine: cosineScalar, dot: dotScalar}
}

// L2Sq returns sum((x_i - y_i)^2) over the shared prefix of x and y.
func L2Sq(x, y []float32) float32 { return active.l2sq(x, y) }

// Cosine returns 1 - cos_sim(x, y). It returns 1 when either vector
// has zero norm, matching the source's zero-division guard.
func Cosine(x, y []float32) float32 { return active.cosine(x, y) }

// Dot returns the inner product of x and y.
func Dot(x, y []float32) float32 { return active.dot(x, y) }

// Normalize scales x in place to unit L2 norm. A zero vector is left
// unchanged.
func Normalize(x []float32) {
	var ss float32
	for i := range x {
		ss += x[i] * x[i]
	}
	if ss == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(ss)))
	for i := range x {
		x[i] *= inv
	}
}

func sharedLen(x, y []float32) int {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	return n
}

func l2sqScalar(x, y []float32) float32 {
	var sum float32
	for i, n := 0, sharedLen(x, y); i < n; i++ {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}

func dotScalar(x, y []float32) float32 {
	var sum float32
	for i, n := 0, sharedLen(x, y); i < n; i++ {
		sum += x[i] * y[i]
	}
	return sum
}

func cosineScalar(x, y []float32) float32 {
	var ab, aa, bb float32
	for i, n := 0, sharedLen(x, y); i < n; i++ {
		ab += x[i] * y[i]
		aa += x[i] * x[i]
		bb += y[i] * y[i]
	}
	return cosineFromSums(ab, aa, bb)
}

func cosineFromSums(ab, aa, bb float32) float32 {
	if aa == 0 || bb == 0 {
		return 1
	}
	return 1 - ab/float32(math.Sqrt(float64(aa)*float64(bb)))
}

const lanes = 8

func l2sqWide(x, y []float32) float32 {
	n := sharedLen(x, y)
	var acc [lanes]float32
	i := 0
	for ; i+lanes <= n; i += lanes {
		for l := 0; l < lanes; l++ {
			d := x[i+l] - y[i+l]
			acc[l] += d * d
		}
	}
	var sum float32
	for _, v := range acc {
		sum += v
	}
	for ; i < n; i++ {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}

func dotWide(x, y []float32) float32 {
	n := sharedLen(x, y)
	var acc [lanes]float32
	i := 0
	for ; i+lanes <= n; i += lanes {
		for l := 0; l < lanes; l++ {
			acc[l] += x[i+l] * y[i+l]
		}
	}
	var sum float32
	for _, v := range acc {
		sum += v
	}
	for ; i < n; i++ {
		sum += x[i] * y[i]
	}
	return sum
}

func cosineWide(x, y []float32) float32 {
	n := sharedLen(x, y)
	var accAB, accAA, accBB [lanes]float32
	i := 0
	for ; i+lanes <= n; i += lanes {
		for l := 0; l < lanes; l++ {
			xv, yv := x[i+l], y[i+l]
			accAB[l] += xv * yv
			accAA[l] += xv * xv
			accBB[l] += yv * yv
		}
	}
	var ab, aa, bb float32
	for l := 0; l < lanes; l++ {
		ab += accAB[l]
		aa += accAA[l]
		bb += accBB[l]
	}
	for ; i < n; i++ {
		ab += x[i] * y[i]
		aa += x[i] * x[i]
		bb += y[i] * y[i]
	}
	return cosineFromSums(ab, aa, bb)
}
