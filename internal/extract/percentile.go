package extract

import (
	"math"
	"slices"
)

// Percentile returns the p-th percentile (0 ≤ p ≤ 100) of values, linearly
// interpolating between the two closest ranks at virtual index (n−1)·p/100.
// values is not modified. An empty slice yields NaN.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	h := float64(n-1) * p / 100
	lo := int(math.Floor(h))
	if lo < 0 {
		lo = 0
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	t := h - float64(lo)
	a, b := sorted[lo], sorted[lo+1]
	diff := b - a
	// Interpolate from the nearer end to keep the result monotone in t.
	if t >= 0.5 {
		return b - diff*(1-t)
	}
	return a + diff*t
}
