// Package vector provides similarity math over embedding vectors.
package vector

import "math"

// InnerProduct returns the dot product of a and b, or 0 when their lengths differ or are zero.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a, b) / (‖a‖‖b‖). A zero-norm operand, a length
// mismatch or a non-finite result yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := InnerProduct(a, b) / (na * nb)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	// Rounding can push parallel vectors slightly past ±1.
	return math.Max(-1, math.Min(1, sim))
}
