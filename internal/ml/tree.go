package ml

import (
	"math"
	"math/rand"
	"sort"
)

// Criterion selects the impurity measure of a DecisionTree.
type Criterion int

const (
	// Gini impurity over binary labels; leaves hold P(y=1).
	Gini Criterion = iota
	// MSE (variance) over continuous targets; leaves hold the mean.
	MSE
)

// TreeConfig contains the growth limits of a CART tree.
type TreeConfig struct {
	// Criterion is the split quality measure.
	Criterion Criterion

	// MaxDepth bounds the tree depth. Zero means unlimited.
	MaxDepth int

	// MinSamplesSplit is the smallest node that may be split.
	// Default: 2
	MinSamplesSplit int

	// MinSamplesLeaf is the smallest allowed child.
	// Default: 1
	MinSamplesLeaf int

	// MaxFeatures is the number of candidate features drawn per split.
	// Zero means all features.
	MaxFeatures int

	// Seed drives feature sampling.
	Seed int64
}

// DefaultTreeConfig returns an unbounded classification tree.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		Criterion:       Gini,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// TreeNode is one node of a flattened tree. Leaves have Feature == -1.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
}

// DecisionTree is a binary CART tree. Rows with x[Feature] <= Threshold go
// left.
type DecisionTree struct {
	Config      TreeConfig
	Nodes       []TreeNode
	Importances []float64
	NFeatures   int
}

// NewDecisionTree builds an untrained tree, filling zero-valued limits.
func NewDecisionTree(cfg TreeConfig) *DecisionTree {
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return &DecisionTree{Config: cfg}
}

// Fit grows the tree on all rows of X. y holds 0/1 labels for Gini.
func (t *DecisionTree) Fit(X [][]float64, y []float64) error {
	if _, err := checkXY(X, len(y)); err != nil {
		return err
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.fitIndices(X, y, idx)
	return nil
}

// Fitted reports whether the tree has been grown.
func (t *DecisionTree) Fitted() bool { return len(t.Nodes) > 0 }

// fitIndices grows the tree on the rows at idx, which may repeat.
func (t *DecisionTree) fitIndices(X [][]float64, y []float64, idx []int) {
	t.NFeatures = len(X[0])
	t.Nodes = t.Nodes[:0]
	t.Importances = make([]float64, t.NFeatures)
	b := &treeBuilder{
		tree: t,
		X:    X,
		y:    y,
		rng:  rand.New(rand.NewSource(t.Config.Seed)),
	}
	b.grow(idx, 0)

	total := float64(len(idx))
	for j := range t.Importances {
		t.Importances[j] /= total
	}
	t.Importances = normalize(t.Importances)
}

// Apply returns the leaf index reached by x.
func (t *DecisionTree) Apply(x []float64) int {
	node := 0
	for t.Nodes[node].Feature >= 0 {
		n := t.Nodes[node]
		if x[n.Feature] <= n.Threshold {
			node = n.Left
		} else {
			node = n.Right
		}
	}
	return node
}

// PredictRow returns the leaf value for x.
func (t *DecisionTree) PredictRow(x []float64) float64 {
	return t.Nodes[t.Apply(x)].Value
}

// Predict returns leaf values for every row.
func (t *DecisionTree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = t.PredictRow(x)
	}
	return out
}

// FeatureImportances returns normalized impurity decrease per feature.
func (t *DecisionTree) FeatureImportances() []float64 {
	return append([]float64(nil), t.Importances...)
}

type treeBuilder struct {
	tree *DecisionTree
	X    [][]float64
	y    []float64
	rng  *rand.Rand
}

type nodeStats struct {
	n     float64
	sum   float64
	sumSq float64
}

func (s nodeStats) add(v float64) nodeStats {
	return nodeStats{n: s.n + 1, sum: s.sum + v, sumSq: s.sumSq + v*v}
}

func (s nodeStats) sub(o nodeStats) nodeStats {
	return nodeStats{n: s.n - o.n, sum: s.sum - o.sum, sumSq: s.sumSq - o.sumSq}
}

func (s nodeStats) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / s.n
}

func (s nodeStats) impurity(c Criterion) float64 {
	if s.n == 0 {
		return 0
	}
	m := s.sum / s.n
	if c == Gini {
		return 2 * m * (1 - m)
	}
	v := s.sumSq/s.n - m*m
	if v < 0 {
		return 0
	}
	return v
}

type candidate struct {
	feature   int
	threshold float64
	proxy     float64
	left      nodeStats
	right     nodeStats
}

func (b *treeBuilder) stats(idx []int) nodeStats {
	var s nodeStats
	for _, i := range idx {
		s = s.add(b.y[i])
	}
	return s
}

func (b *treeBuilder) leaf(s nodeStats) int {
	b.tree.Nodes = append(b.tree.Nodes, TreeNode{Feature: -1, Value: s.mean(), Samples: int(s.n)})
	return len(b.tree.Nodes) - 1
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	cfg := b.tree.Config
	s := b.stats(idx)
	imp := s.impurity(cfg.Criterion)

	if len(idx) < cfg.MinSamplesSplit ||
		len(idx) < 2*cfg.MinSamplesLeaf ||
		(cfg.MaxDepth > 0 && depth >= cfg.MaxDepth) ||
		imp <= 1e-12 {
		return b.leaf(s)
	}

	best, ok := b.bestSplit(idx, s)
	if !ok {
		return b.leaf(s)
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	decrease := s.n*imp - best.left.n*best.left.impurity(cfg.Criterion) - best.right.n*best.right.impurity(cfg.Criterion)
	if decrease > 0 {
		b.tree.Importances[best.feature] += decrease
	}

	self := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, TreeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Value:     s.mean(),
		Samples:   len(idx),
	})
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[self].Left = l
	b.tree.Nodes[self].Right = r
	return self
}

func (b *treeBuilder) featureCandidates() []int {
	nf := b.tree.NFeatures
	k := b.tree.Config.MaxFeatures
	if k <= 0 || k >= nf {
		all := make([]int, nf)
		for j := range all {
			all[j] = j
		}
		return all
	}
	return b.rng.Perm(nf)[:k]
}

// bestSplit scans midpoints between consecutive distinct values and keeps the
// split with the lowest weighted child impurity.
func (b *treeBuilder) bestSplit(idx []int, parent nodeStats) (candidate, bool) {
	cfg := b.tree.Config
	minLeaf := cfg.MinSamplesLeaf
	best := candidate{proxy: math.Inf(1)}
	found := false

	sorted := make([]int, len(idx))
	for _, f := range b.featureCandidates() {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		var left nodeStats
		for k := 0; k < len(sorted)-1; k++ {
			left = left.add(b.y[sorted[k]])
			if k+1 < minLeaf || len(sorted)-k-1 < minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if hi <= lo {
				continue
			}
			right := parent.sub(left)
			proxy := left.n*left.impurity(cfg.Criterion) + right.n*right.impurity(cfg.Criterion)
			if proxy < best.proxy {
				threshold := lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				best = candidate{feature: f, threshold: threshold, proxy: proxy, left: left, right: right}
				found = true
			}
		}
	}
	return best, found
}
