package ml

import (
	"encoding/gob"
	"errors"
	"fmt"
)

// ErrNotFitted is returned when an estimator is used before Fit.
var ErrNotFitted = errors.New("estimator is not fitted")

// Classifier is a binary classifier over dense float features. Labels are 0/1.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	// PredictProba returns P(y=1) for every row.
	PredictProba(X [][]float64) []float64
}

// Regressor predicts a continuous target.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) []float64
}

// FeatureImporter is implemented by estimators that score input columns.
// Importances are non-negative and sum to 1 (or are all zero).
type FeatureImporter interface {
	FeatureImportances() []float64
}

// PredictLabels thresholds probabilities at 0.5; exactly 0.5 maps to class 0.
func PredictLabels(proba []float64) []int {
	out := make([]int, len(proba))
	for i, p := range proba {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out
}

func init() {
	gob.Register(&DecisionTree{})
	gob.Register(&RandomForestClassifier{})
	gob.Register(&RandomForestRegressor{})
	gob.Register(&GradientBoostingClassifier{})
	gob.Register(&XGBoostClassifier{})
	gob.Register(&LogisticRegression{})
	gob.Register(&NeuralNetwork{})
}

// checkXY validates a training matrix and returns its width.
func checkXY(X [][]float64, n int) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("empty training set")
	}
	if len(X) != n {
		return 0, fmt.Errorf("X has %d rows but y has %d", len(X), n)
	}
	width := len(X[0])
	if width == 0 {
		return 0, errors.New("training set has no feature columns")
	}
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	return width, nil
}

func checkLabels(y []int) error {
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("label %d at row %d is not binary", v, i)
		}
	}
	return nil
}

func labelsToFloat(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	out := make([]float64, len(v))
	if sum <= 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}
