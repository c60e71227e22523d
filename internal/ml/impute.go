package ml

import (
	"math"
	"sort"
)

// MedianImputer replaces missing values with the training median of each
// column. Columns that are entirely missing at fit time are filled with 0.
type MedianImputer struct {
	Medians []float64
}

// Fit computes per-column medians ignoring NaN.
func (m *MedianImputer) Fit(X [][]float64) {
	if len(X) == 0 {
		m.Medians = nil
		return
	}
	width := len(X[0])
	m.Medians = make([]float64, width)
	buf := make([]float64, 0, len(X))
	for j := 0; j < width; j++ {
		buf = buf[:0]
		for _, row := range X {
			if !math.IsNaN(row[j]) {
				buf = append(buf, row[j])
			}
		}
		m.Medians[j] = median(buf)
	}
}

// Transform returns a copy of X with NaN replaced by the fitted medians.
func (m *MedianImputer) Transform(X [][]float64) [][]float64 {
	out := Clone(X)
	for _, row := range out {
		for j, x := range row {
			if math.IsNaN(x) && j < len(m.Medians) {
				row[j] = m.Medians[j]
			}
		}
	}
	return out
}

// FitTransform fits on X and returns its imputed copy.
func (m *MedianImputer) FitTransform(X [][]float64) [][]float64 {
	m.Fit(X)
	return m.Transform(X)
}

// median sorts values in place.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
