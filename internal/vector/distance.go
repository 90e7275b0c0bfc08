package vector

import (
	"fmt"
	"math"
)

// CosineDistance returns 1 - cos(a, b). A zero-magnitude operand has no
// direction and is treated as orthogonal (distance 1).
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: different vector dimensions %d and %d", len(a), len(b))
	}
	ma, mb := maxAbs(a), maxAbs(b)
	if ma == 0 || mb == 0 {
		return 1, nil
	}
	// Each operand is scaled by its largest element so the sums of squares
	// stay finite for values near the float64 limit.
	var dot, na2, nb2 float64
	for i := range a {
		x, y := a[i]/ma, b[i]/mb
		dot += x * y
		na2 += x * x
		nb2 += y * y
	}
	cos := dot / (math.Sqrt(na2) * math.Sqrt(nb2))
	// Rounding can push |cos| slightly past 1.
	cos = math.Max(-1, math.Min(1, cos))
	return 1 - cos, nil
}

// L2Distance computes the Euclidean distance between a and b.
func L2Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: different vector dimensions %d and %d", len(a), len(b))
	}
	var scale float64
	for i := range a {
		scale = math.Max(scale, math.Abs(a[i]-b[i]))
	}
	if scale == 0 || math.IsInf(scale, 0) {
		return scale, nil
	}
	var sum float64
	for i := range a {
		d := (a[i] - b[i]) / scale
		sum += d * d
	}
	return scale * math.Sqrt(sum), nil
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
