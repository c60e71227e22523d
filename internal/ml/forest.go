package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// ForestConfig contains bagging ensemble hyperparameters.
type ForestConfig struct {
	// NEstimators is the number of trees.
	// Default: 100
	NEstimators int `json:"n_estimators" validate:"gte=1"`

	// MaxDepth bounds each tree. Zero means unlimited.
	MaxDepth int `json:"max_depth" validate:"gte=0"`

	// MinSamplesSplit is the smallest node that may be split.
	// Default: 2
	MinSamplesSplit int `json:"min_samples_split" validate:"gte=0"`

	// MinSamplesLeaf is the smallest allowed leaf.
	// Default: 1
	MinSamplesLeaf int `json:"min_samples_leaf" validate:"gte=0"`

	// MaxFeatures is the candidate feature count per split. Zero picks
	// sqrt(n_features) for classification and all features for regression.
	MaxFeatures int `json:"max_features" validate:"gte=0"`

	// Bootstrap resamples rows with replacement for each tree.
	Bootstrap bool `json:"bootstrap"`

	// Workers bounds the number of trees fitted concurrently.
	// Default: 1
	Workers int `json:"workers" validate:"gte=0"`

	// Seed makes fits reproducible; tree i uses Seed+i.
	// Default: 42
	Seed int64 `json:"seed"`
}

// DefaultForestClassifierConfig returns the churn classifier defaults.
func DefaultForestClassifierConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     100,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Bootstrap:       true,
		Workers:         1,
		Seed:            42,
	}
}

// DefaultForestRegressorConfig returns the lifetime-value regressor defaults.
func DefaultForestRegressorConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		Workers:         1,
		Seed:            42,
	}
}

// Forest is the bagging core shared by the classifier and the regressor.
type Forest struct {
	Config ForestConfig
	Trees  []*DecisionTree
}

func (f *Forest) fit(X [][]float64, y []float64, criterion Criterion) error {
	width, err := checkXY(X, len(y))
	if err != nil {
		return err
	}
	cfg := f.Config
	if cfg.NEstimators < 1 {
		return fmt.Errorf("forest needs at least one estimator, got %d", cfg.NEstimators)
	}
	maxFeatures := cfg.MaxFeatures
	if maxFeatures <= 0 && criterion == Gini {
		maxFeatures = int(math.Max(1, math.Sqrt(float64(width))))
	}

	trees := make([]*DecisionTree, cfg.NEstimators)
	err = parallelFor(cfg.NEstimators, cfg.Workers, func(i int) error {
		seed := cfg.Seed + int64(i)
		rows := make([]int, len(X))
		if cfg.Bootstrap {
			rng := rand.New(rand.NewSource(seed))
			for k := range rows {
				rows[k] = rng.Intn(len(X))
			}
		} else {
			for k := range rows {
				rows[k] = k
			}
		}
		tree := NewDecisionTree(TreeConfig{
			Criterion:       criterion,
			MaxDepth:        cfg.MaxDepth,
			MinSamplesSplit: cfg.MinSamplesSplit,
			MinSamplesLeaf:  cfg.MinSamplesLeaf,
			MaxFeatures:     maxFeatures,
			Seed:            seed,
		})
		tree.fitIndices(X, y, rows)
		trees[i] = tree
		return nil
	})
	if err != nil {
		return err
	}
	f.Trees = trees
	return nil
}

func (f *Forest) average(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(f.Trees) == 0 {
		return out
	}
	for i, x := range X {
		var sum float64
		for _, t := range f.Trees {
			sum += t.PredictRow(x)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out
}

func (f *Forest) importances() []float64 {
	if len(f.Trees) == 0 {
		return nil
	}
	acc := make([]float64, f.Trees[0].NFeatures)
	for _, t := range f.Trees {
		for j, v := range t.Importances {
			acc[j] += v
		}
	}
	return normalize(acc)
}

// RandomForestClassifier averages class-1 probabilities over bagged gini
// trees.
type RandomForestClassifier struct {
	Forest
}

// NewRandomForestClassifier fills zero-valued settings from the defaults.
func NewRandomForestClassifier(cfg ForestConfig) *RandomForestClassifier {
	return &RandomForestClassifier{Forest{Config: withForestDefaults(cfg, DefaultForestClassifierConfig())}}
}

// Fit grows the ensemble.
func (m *RandomForestClassifier) Fit(X [][]float64, y []int) error {
	if err := checkLabels(y); err != nil {
		return err
	}
	return m.fit(X, labelsToFloat(y), Gini)
}

// PredictProba averages leaf probabilities.
func (m *RandomForestClassifier) PredictProba(X [][]float64) []float64 { return m.average(X) }

// FeatureImportances is the mean of the per-tree importances.
func (m *RandomForestClassifier) FeatureImportances() []float64 { return m.importances() }

// RandomForestRegressor averages bagged regression trees.
type RandomForestRegressor struct {
	Forest
}

// NewRandomForestRegressor fills zero-valued settings from the defaults.
func NewRandomForestRegressor(cfg ForestConfig) *RandomForestRegressor {
	return &RandomForestRegressor{Forest{Config: withForestDefaults(cfg, DefaultForestRegressorConfig())}}
}

// Fit grows the ensemble.
func (m *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	return m.fit(X, y, MSE)
}

// Predict averages tree outputs.
func (m *RandomForestRegressor) Predict(X [][]float64) []float64 { return m.average(X) }

// FeatureImportances is the mean of the per-tree importances.
func (m *RandomForestRegressor) FeatureImportances() []float64 { return m.importances() }

func withForestDefaults(cfg, def ForestConfig) ForestConfig {
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = def.NEstimators
	}
	if cfg.MinSamplesSplit <= 0 {
		cfg.MinSamplesSplit = def.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return cfg
}
