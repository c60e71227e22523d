package ml

import (
	"math"
	"math/rand"
	"sort"
)

// XGBoostConfig contains second-order boosting hyperparameters.
type XGBoostConfig struct {
	// NEstimators is the number of boosting rounds.
	// Default: 100
	NEstimators int `json:"n_estimators" validate:"gte=1"`

	// MaxDepth bounds each tree.
	// Default: 6
	MaxDepth int `json:"max_depth" validate:"gte=1"`

	// LearningRate (eta) shrinks leaf weights.
	// Default: 0.1
	LearningRate float64 `json:"learning_rate" validate:"gt=0,lte=1"`

	// Subsample is the row share drawn per round.
	// Default: 0.8
	Subsample float64 `json:"subsample" validate:"gt=0,lte=1"`

	// ColsampleByTree is the feature share drawn per round.
	// Default: 0.8
	ColsampleByTree float64 `json:"colsample_bytree" validate:"gt=0,lte=1"`

	// Lambda is the L2 penalty on leaf weights.
	// Default: 1
	Lambda float64 `json:"lambda" validate:"gte=0"`

	// Gamma is the minimum gain required to split.
	Gamma float64 `json:"gamma" validate:"gte=0"`

	// MinChildWeight is the minimum hessian sum per child.
	// Default: 1
	MinChildWeight float64 `json:"min_child_weight" validate:"gte=0"`

	// Seed drives row and column sampling.
	// Default: 42
	Seed int64 `json:"seed"`
}

// DefaultXGBoostConfig returns the churn XGBoost defaults.
func DefaultXGBoostConfig() XGBoostConfig {
	return XGBoostConfig{
		NEstimators:     100,
		MaxDepth:        6,
		LearningRate:    0.1,
		Subsample:       0.8,
		ColsampleByTree: 0.8,
		Lambda:          1,
		MinChildWeight:  1,
		Seed:            42,
	}
}

// XGBoostClassifier boosts trees grown on gradient and hessian statistics of
// the logistic loss, starting from a zero margin.
type XGBoostClassifier struct {
	Config    XGBoostConfig
	Trees     [][]TreeNode
	GainSum   []float64
	GainCount []float64
	NFeatures int
}

// NewXGBoostClassifier fills zero-valued settings from the defaults.
func NewXGBoostClassifier(cfg XGBoostConfig) *XGBoostClassifier {
	def := DefaultXGBoostConfig()
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = def.NEstimators
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Subsample <= 0 {
		cfg.Subsample = def.Subsample
	}
	if cfg.ColsampleByTree <= 0 {
		cfg.ColsampleByTree = def.ColsampleByTree
	}
	return &XGBoostClassifier{Config: cfg}
}

// Fit runs NEstimators rounds.
func (m *XGBoostClassifier) Fit(X [][]float64, y []int) error {
	width, err := checkXY(X, len(y))
	if err != nil {
		return err
	}
	if err := checkLabels(y); err != nil {
		return err
	}
	n := len(y)
	m.NFeatures = width
	m.GainSum = make([]float64, width)
	m.GainCount = make([]float64, width)
	m.Trees = make([][]TreeNode, 0, m.Config.NEstimators)

	rng := rand.New(rand.NewSource(m.Config.Seed))
	margin := make([]float64, n)
	g := make([]float64, n)
	h := make([]float64, n)

	nRows := int(math.Max(1, math.Round(m.Config.Subsample*float64(n))))
	nCols := int(math.Max(1, math.Round(m.Config.ColsampleByTree*float64(width))))

	for round := 0; round < m.Config.NEstimators; round++ {
		for i := range margin {
			p := sigmoid(margin[i])
			g[i] = p - float64(y[i])
			h[i] = math.Max(p*(1-p), 1e-16)
		}
		rows := rng.Perm(n)[:nRows]
		cols := rng.Perm(width)[:nCols]
		sort.Ints(cols)

		b := &gradTreeBuilder{model: m, X: X, g: g, h: h, cols: cols}
		b.grow(rows, 0)
		m.Trees = append(m.Trees, b.nodes)
		for i, x := range X {
			margin[i] += predictNodes(b.nodes, x)
		}
	}
	return nil
}

// PredictProba applies the sigmoid to the summed leaf weights.
func (m *XGBoostClassifier) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		var margin float64
		for _, nodes := range m.Trees {
			margin += predictNodes(nodes, x)
		}
		out[i] = sigmoid(margin)
	}
	return out
}

// FeatureImportances is the average split gain per feature, normalized.
func (m *XGBoostClassifier) FeatureImportances() []float64 {
	avg := make([]float64, m.NFeatures)
	for j := range avg {
		if m.GainCount[j] > 0 {
			avg[j] = m.GainSum[j] / m.GainCount[j]
		}
	}
	return normalize(avg)
}

func predictNodes(nodes []TreeNode, x []float64) float64 {
	node := 0
	for nodes[node].Feature >= 0 {
		if x[nodes[node].Feature] <= nodes[node].Threshold {
			node = nodes[node].Left
		} else {
			node = nodes[node].Right
		}
	}
	return nodes[node].Value
}

type gradTreeBuilder struct {
	model *XGBoostClassifier
	X     [][]float64
	g, h  []float64
	cols  []int
	nodes []TreeNode
}

func (b *gradTreeBuilder) score(G, H float64) float64 {
	return G * G / (H + b.model.Config.Lambda)
}

func (b *gradTreeBuilder) leaf(G, H float64, samples int) int {
	w := -G / (H + b.model.Config.Lambda) * b.model.Config.LearningRate
	b.nodes = append(b.nodes, TreeNode{Feature: -1, Value: w, Samples: samples})
	return len(b.nodes) - 1
}

func (b *gradTreeBuilder) grow(idx []int, depth int) int {
	var G, H float64
	for _, i := range idx {
		G += b.g[i]
		H += b.h[i]
	}
	cfg := b.model.Config
	if depth >= cfg.MaxDepth || len(idx) < 2 {
		return b.leaf(G, H, len(idx))
	}

	bestGain := 0.0
	bestFeature := -1
	var bestThreshold float64
	parentScore := b.score(G, H)
	sorted := make([]int, len(idx))
	for _, f := range b.cols {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })
		var GL, HL float64
		for k := 0; k < len(sorted)-1; k++ {
			GL += b.g[sorted[k]]
			HL += b.h[sorted[k]]
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if hi <= lo {
				continue
			}
			GR, HR := G-GL, H-HL
			if HL < cfg.MinChildWeight || HR < cfg.MinChildWeight {
				continue
			}
			gain := 0.5*(b.score(GL, HL)+b.score(GR, HR)-parentScore) - cfg.Gamma
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}
	if bestFeature < 0 {
		return b.leaf(G, H, len(idx))
	}

	b.model.GainSum[bestFeature] += bestGain
	b.model.GainCount[bestFeature]++

	var left, right []int
	for _, i := range idx {
		if b.X[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: bestFeature, Threshold: bestThreshold, Samples: len(idx)})
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self].Left = l
	b.nodes[self].Right = r
	return self
}
