package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its mean and divides by its
// population standard deviation. A zero deviation is replaced by 1 so
// constant columns map to 0.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit learns column means and deviations from X.
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		s.Mean, s.Scale = nil, nil
		return
	}
	width := len(X[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	for j := 0; j < width; j++ {
		col := Column(X, j)
		mean, variance := stat.PopMeanVariance(col, nil)
		std := math.Sqrt(variance)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, x := range row {
			if j >= len(s.Mean) {
				scaled[j] = x
				continue
			}
			scaled[j] = (x - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out
}

// FitTransform fits on X and returns its standardized copy.
func (s *StandardScaler) FitTransform(X [][]float64) [][]float64 {
	s.Fit(X)
	return s.Transform(X)
}

// Fitted reports whether Fit has run.
func (s *StandardScaler) Fitted() bool { return s != nil && s.Mean != nil }
