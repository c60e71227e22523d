package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CrossValScore fits a fresh classifier on each fold's training rows and
// returns the accuracy on its test rows, one score per fold. Folds run on
// up to workers goroutines.
func CrossValScore(newModel func() Classifier, X [][]float64, y []int, folds []Fold, workers int) ([]float64, error) {
	scores := make([]float64, len(folds))
	err := parallelFor(len(folds), workers, func(f int) error {
		fold := folds[f]
		model := newModel()
		if err := model.Fit(Rows(X, fold.Train), gatherInts(y, fold.Train)); err != nil {
			return fmt.Errorf("fold %d: %w", f, err)
		}
		pred := PredictLabels(model.PredictProba(Rows(X, fold.Test)))
		scores[f] = Accuracy(gatherInts(y, fold.Test), pred)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// MeanStd returns the mean and population standard deviation of scores.
func MeanStd(scores []float64) (float64, float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(scores, nil)
	return mean, math.Sqrt(variance)
}
