// Package feature holds the fixed-shape vector types and arithmetic shared
// by the extraction pipeline, the similarity index, and the playlist walks.
package feature

import (
	"gonum.org/v1/gonum/floats"
)

// Lerp returns (1-alpha)*a + alpha*b element-wise. a and b must have equal
// length; the result is freshly allocated.
func Lerp(a, b []float64, alpha float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	floats.Scale(1-alpha, out)
	floats.AddScaled(out, alpha, b)
	return out
}

// StepToward advances from cur toward dest by stepLen along the unit
// direction between them. When cur already equals dest (zero distance) the
// direction is the zero vector and a copy of cur is returned. The step may
// overshoot; callers bound the walk by step count, not by arrival.
func StepToward(cur, dest []float64, stepLen float64) []float64 {
	out := make([]float64, len(cur))
	copy(out, cur)

	dist := floats.Distance(cur, dest, 2)
	if dist == 0 || stepLen == 0 {
		return out
	}

	// out += (stepLen/dist) * (dest - cur)
	dir := make([]float64, len(cur))
	copy(dir, dest)
	floats.Sub(dir, cur)
	floats.AddScaled(out, stepLen/dist, dir)
	return out
}

// NormalizeDistribution scales v in place so its elements sum to 1.0.
// Returns false when the sum is not positive, leaving v untouched.
func NormalizeDistribution(v []float64) bool {
	sum := floats.Sum(v)
	if sum <= 0 {
		return false
	}
	floats.Scale(1/sum, v)
	return true
}
