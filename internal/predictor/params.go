package predictor

import (
	"encoding/json"
	"fmt"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/ml"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/validator"
)

// Hyperparameter sets per algorithm.
type (
	RandomForestParams     = ml.ForestConfig
	XGBoostParams          = ml.XGBoostConfig
	LogisticParams         = ml.LogisticConfig
	GradientBoostingParams = ml.BoostingConfig
	NeuralNetParams        = ml.NeuralNetConfig
)

// Hyperparameters holds the settings for every churn algorithm; only the
// entry of the selected type is used.
type Hyperparameters struct {
	RandomForest     RandomForestParams     `json:"random_forest"`
	XGBoost          XGBoostParams          `json:"xgboost"`
	Logistic         LogisticParams         `json:"logistic_regression"`
	GradientBoosting GradientBoostingParams `json:"gradient_boosting"`
	NeuralNet        NeuralNetParams        `json:"neural_network"`
}

// DefaultHyperparameters returns the production settings of each algorithm.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		RandomForest:     ml.DefaultForestClassifierConfig(),
		XGBoost:          ml.DefaultXGBoostConfig(),
		Logistic:         ml.DefaultLogisticConfig(),
		GradientBoosting: ml.DefaultBoostingConfig(),
		NeuralNet:        ml.DefaultNeuralNetConfig(),
	}
}

// Validate checks every parameter set.
func (h Hyperparameters) Validate() error {
	return validator.Validate(h)
}

// newEstimator returns an untrained classifier of the given type.
func newEstimator(kind ModelType, hp Hyperparameters, workers int, seed int64) (ml.Classifier, error) {
	switch kind {
	case RandomForest:
		cfg := hp.RandomForest
		cfg.Workers = workers
		cfg.Seed = seed
		return ml.NewRandomForestClassifier(cfg), nil
	case XGBoost:
		cfg := hp.XGBoost
		cfg.Seed = seed
		return ml.NewXGBoostClassifier(cfg), nil
	case LogisticRegression:
		return ml.NewLogisticRegression(hp.Logistic), nil
	case GradientBoosting:
		cfg := hp.GradientBoosting
		cfg.Seed = seed
		return ml.NewGradientBoostingClassifier(cfg), nil
	case NeuralNetwork:
		cfg := hp.NeuralNet
		cfg.Seed = seed
		return ml.NewNeuralNetwork(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported model type: %q", apperrors.ErrConfiguration, string(kind))
	}
}

// paramsFor flattens the selected parameter set for run tracking.
func paramsFor(kind ModelType, hp Hyperparameters) map[string]any {
	var src any
	switch kind {
	case RandomForest:
		src = hp.RandomForest
	case XGBoost:
		src = hp.XGBoost
	case LogisticRegression:
		src = hp.Logistic
	case GradientBoosting:
		src = hp.GradientBoosting
	case NeuralNetwork:
		src = hp.NeuralNet
	}
	out := map[string]any{}
	data, err := json.Marshal(src)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
