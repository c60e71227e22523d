package ml

import (
	"fmt"
	"math"
)

// BoostingConfig contains gradient boosting hyperparameters.
type BoostingConfig struct {
	// NEstimators is the number of boosting rounds.
	// Default: 100
	NEstimators int `json:"n_estimators" validate:"gte=1"`

	// LearningRate shrinks each round's contribution.
	// Default: 0.1
	LearningRate float64 `json:"learning_rate" validate:"gt=0,lte=1"`

	// MaxDepth bounds each regression tree.
	// Default: 6
	MaxDepth int `json:"max_depth" validate:"gte=1"`

	// MinSamplesSplit is the smallest node that may be split.
	// Default: 2
	MinSamplesSplit int `json:"min_samples_split" validate:"gte=0"`

	// MinSamplesLeaf is the smallest allowed leaf.
	// Default: 1
	MinSamplesLeaf int `json:"min_samples_leaf" validate:"gte=0"`

	// Seed drives tree feature sampling.
	// Default: 42
	Seed int64 `json:"seed"`
}

// DefaultBoostingConfig returns the churn gradient boosting defaults.
func DefaultBoostingConfig() BoostingConfig {
	return BoostingConfig{
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        6,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// GradientBoostingClassifier fits regression trees to the log-loss residuals
// and sets each leaf with a single Newton step.
type GradientBoostingClassifier struct {
	Config BoostingConfig
	Init   float64
	Trees  []*DecisionTree
}

// NewGradientBoostingClassifier fills zero-valued settings from the defaults.
func NewGradientBoostingClassifier(cfg BoostingConfig) *GradientBoostingClassifier {
	def := DefaultBoostingConfig()
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = def.NEstimators
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MinSamplesSplit <= 0 {
		cfg.MinSamplesSplit = def.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf <= 0 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	return &GradientBoostingClassifier{Config: cfg}
}

// Fit runs NEstimators boosting rounds.
func (m *GradientBoostingClassifier) Fit(X [][]float64, y []int) error {
	if _, err := checkXY(X, len(y)); err != nil {
		return err
	}
	if err := checkLabels(y); err != nil {
		return err
	}
	n := len(y)
	target := labelsToFloat(y)

	var pos float64
	for _, v := range target {
		pos += v
	}
	p := pos / float64(n)
	if p <= 0 || p >= 1 {
		return fmt.Errorf("gradient boosting needs both classes, got positive share %.3f", p)
	}
	m.Init = math.Log(p / (1 - p))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = m.Init
	}
	residual := make([]float64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	m.Trees = make([]*DecisionTree, 0, m.Config.NEstimators)
	for round := 0; round < m.Config.NEstimators; round++ {
		for i := range residual {
			residual[i] = target[i] - sigmoid(raw[i])
		}
		tree := NewDecisionTree(TreeConfig{
			Criterion:       MSE,
			MaxDepth:        m.Config.MaxDepth,
			MinSamplesSplit: m.Config.MinSamplesSplit,
			MinSamplesLeaf:  m.Config.MinSamplesLeaf,
			Seed:            m.Config.Seed + int64(round),
		})
		tree.fitIndices(X, residual, idx)

		num := make(map[int]float64)
		den := make(map[int]float64)
		leaves := make([]int, n)
		for i, x := range X {
			leaf := tree.Apply(x)
			leaves[i] = leaf
			prob := target[i] - residual[i]
			num[leaf] += residual[i]
			den[leaf] += prob * (1 - prob)
		}
		for leaf := range num {
			if math.Abs(den[leaf]) < 1e-150 {
				tree.Nodes[leaf].Value = 0
			} else {
				tree.Nodes[leaf].Value = num[leaf] / den[leaf]
			}
		}
		for i := range raw {
			raw[i] += m.Config.LearningRate * tree.Nodes[leaves[i]].Value
		}
		m.Trees = append(m.Trees, tree)
	}
	return nil
}

// PredictProba applies the sigmoid to the boosted log-odds.
func (m *GradientBoostingClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		raw := m.Init
		for _, t := range m.Trees {
			raw += m.Config.LearningRate * t.PredictRow(x)
		}
		out[i] = sigmoid(raw)
	}
	return out
}

// FeatureImportances averages the per-tree impurity importances.
func (m *GradientBoostingClassifier) FeatureImportances() []float64 {
	if len(m.Trees) == 0 {
		return nil
	}
	acc := make([]float64, m.Trees[0].NFeatures)
	for _, t := range m.Trees {
		for j, v := range t.Importances {
			acc[j] += v
		}
	}
	return normalize(acc)
}
