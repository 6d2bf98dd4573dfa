// Misc small helpers shared across packages.

package util

import (
	"math"
)

func Keys[K comparable, V any](xs map[K]V) []K {
	ys := make([]K, 0, len(xs))
	for k := range xs {
		ys = append(ys, k)
	}
	return ys
}

func Values[K comparable, V any](xs map[K]V) []V {
	ys := make([]V, 0, len(xs))
	for _, v := range xs {
		ys = append(ys, v)
	}
	return ys
}

// Json can't represent NaN or Infinity (only one of the ways it's broken) so clamp a
// floating point value.
//
// Infinity  -> MaxFloat64
// -Infinity -> -MaxFloat64
// NaN       -> 0

func CleanFloat64(f float64) float64 {
	if math.IsInf(f, 1) {
		return math.MaxFloat64
	}
	if math.IsInf(f, -1) {
		return -math.MaxFloat64
	}
	if math.IsNaN(f) {
		return 0
	}
	return f
}
