// Package predictor trains, evaluates, persists and serves the churn
// classifier and the customer lifetime-value regressor over feature tables
// built by the features package.
package predictor

import (
	"fmt"
	"strings"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
)

// ModelType names a churn classification algorithm.
type ModelType string

const (
	RandomForest       ModelType = "random_forest"
	XGBoost            ModelType = "xgboost"
	LogisticRegression ModelType = "logistic_regression"
	GradientBoosting   ModelType = "gradient_boosting"
	NeuralNetwork      ModelType = "neural_network"
)

// ModelTypes lists every supported churn algorithm.
var ModelTypes = []ModelType{RandomForest, XGBoost, LogisticRegression, GradientBoosting, NeuralNetwork}

// ParseModelType validates a model type name. Unknown names fail with
// apperrors.ErrConfiguration naming the value.
func ParseModelType(s string) (ModelType, error) {
	kind := ModelType(strings.TrimSpace(s))
	for _, m := range ModelTypes {
		if kind == m {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported model type: %q", apperrors.ErrConfiguration, s)
}

// UsesScaler reports whether the algorithm is trained on standardized features.
func (m ModelType) UsesScaler() bool {
	return m == LogisticRegression || m == NeuralNetwork
}

// CrossValidated reports whether training computes k-fold accuracy.
func (m ModelType) CrossValidated() bool {
	return m != NeuralNetwork
}

func (m ModelType) String() string { return string(m) }
