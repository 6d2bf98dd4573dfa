package analyze

import (
	"testing"
)

func TestSummarizeEmpty(t *testing.T) {
	s := summarizeValues(nil)
	if s.Min != 0 || s.Max != 0 || s.Median != 0 || s.P95 != 0 || s.Total != 0 || s.Count != 0 {
		t.Fatal("Empty summary must be all-zero ", s)
	}
}

func TestPercentileSingleElement(t *testing.T) {
	for _, pct := range []float64{0, 1, 37, 50, 95, 100} {
		if v := percentile([]float64{42}, pct); v != 42 {
			t.Fatalf("p%v of singleton: %v", pct, v)
		}
	}
}

func TestSummarizeFourTasks(t *testing.T) {
	s := summarizeValues([]float64{10, 20, 30, 40})
	if s.Min != 10 || s.Max != 40 {
		t.Fatal("min/max ", s)
	}
	if s.Median != 25 {
		t.Fatal("median ", s.Median)
	}
	if s.P95 != 38.5 {
		t.Fatal("p95 ", s.P95)
	}
	if s.Total != 100 || s.Count != 4 {
		t.Fatal("total/count ", s)
	}
}

func TestPercentileUnordered(t *testing.T) {
	// percentile itself requires sorted input; summarizeValues sorts.
	s := summarizeValues([]float64{40, 10, 30, 20})
	if s.P95 != 38.5 || s.Median != 25 {
		t.Fatal("summary of unordered input ", s)
	}
}

func TestSafeDiv(t *testing.T) {
	if v := safeDiv(1, 0); v != 0 {
		t.Fatal("div by zero ", v)
	}
	if v := safeDiv(1, 3); v != 0.3333 {
		t.Fatal("rounding ", v)
	}
}
