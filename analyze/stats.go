// Shared numeric helpers for the extractors: order statistics and tolerant division.

package analyze

import (
	"math"
	"slices"

	"sparkalyze/util"
)

type ValueSummary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Total  float64 `json:"total"`
	Count  int     `json:"count"`
}

// The p-th percentile of a sorted value list, linear interpolation between the bracketing order
// statistics.  Empty input yields 0.
func percentile(sortedVals []float64, pct float64) float64 {
	if len(sortedVals) == 0 {
		return 0
	}
	k := float64(len(sortedVals)-1) * (pct / 100)
	f := math.Floor(k)
	c := math.Ceil(k)
	if f == c {
		return sortedVals[int(k)]
	}
	return sortedVals[int(f)]*(c-k) + sortedVals[int(c)]*(k-f)
}

// Min/max/median/p95/total/count over a value list.  An empty list is a defined, all-zero
// summary, never an error.
func summarizeValues(values []float64) ValueSummary {
	if len(values) == 0 {
		return ValueSummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	var total float64
	for _, v := range sorted {
		total += v
	}
	return ValueSummary{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: roundTo(percentile(sorted, 50), 2),
		P95:    roundTo(percentile(sorted, 95), 2),
		Total:  total,
		Count:  len(sorted),
	}
}

// Division that treats a zero denominator as zero, rounded to 4 decimals.
func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return roundTo(a/b, 4)
}

// Rounded values end up in the JSON output, which cannot represent NaN or Infinity.
func roundTo(x float64, digits int) float64 {
	scale := math.Pow(10, float64(digits))
	return util.CleanFloat64(math.Round(x*scale) / scale)
}
