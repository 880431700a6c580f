package index

import "math"

// Normalize returns a unit-length copy of v. The zero vector has no direction
// and comes back as a fresh zero vector of the same length.
//
// All vectors are normalized before they reach the index, so cosine
// similarity reduces to a dot product.
func Normalize(v []float32) []float32 {
	result := make([]float32, len(v))
	copy(result, v)
	NormalizeInPlace(result)
	return result
}

// NormalizeInPlace scales v to unit length in place. Zero vectors are left
// untouched.
func NormalizeInPlace(v []float32) {
	var sumSquares float32
	for _, val := range v {
		sumSquares += val * val
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(math.Sqrt(float64(sumSquares)))
	for i := range v {
		v[i] /= norm
	}
}
