package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// NeuralNetConfig contains the feed-forward network settings.
type NeuralNetConfig struct {
	// Hidden lists the relu layer widths.
	// Default: [128, 64, 32]
	Hidden []int `json:"hidden" validate:"min=1,dive,gte=1"`

	// Dropout lists the drop rate after each hidden layer.
	// Default: [0.3, 0.3, 0.2]
	Dropout []float64 `json:"dropout" validate:"dive,gte=0,lt=1"`

	// LearningRate is the Adam step size.
	// Default: 0.001
	LearningRate float64 `json:"learning_rate" validate:"gt=0"`

	// Beta1, Beta2 and Epsilon are the Adam moment settings.
	Beta1   float64 `json:"beta_1" validate:"gt=0,lt=1"`
	Beta2   float64 `json:"beta_2" validate:"gt=0,lt=1"`
	Epsilon float64 `json:"epsilon" validate:"gt=0"`

	// Epochs is the number of passes over the training rows.
	// Default: 50
	Epochs int `json:"epochs" validate:"gte=1"`

	// BatchSize is the mini-batch size.
	// Default: 32
	BatchSize int `json:"batch_size" validate:"gte=1"`

	// ValidationSplit is the trailing share of rows held out to report
	// validation loss.
	// Default: 0.2
	ValidationSplit float64 `json:"validation_split" validate:"gte=0,lt=1"`

	// Seed drives initialization, shuffling and dropout.
	// Default: 42
	Seed int64 `json:"seed"`
}

// DefaultNeuralNetConfig returns the churn network defaults.
func DefaultNeuralNetConfig() NeuralNetConfig {
	return NeuralNetConfig{
		Hidden:          []int{128, 64, 32},
		Dropout:         []float64{0.3, 0.3, 0.2},
		LearningRate:    0.001,
		Beta1:           0.9,
		Beta2:           0.999,
		Epsilon:         1e-7,
		Epochs:          50,
		BatchSize:       32,
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

// DenseLayer is a fully connected layer; W is out x in.
type DenseLayer struct {
	W [][]float64
	B []float64
}

// EpochLoss records the mean binary cross-entropy of one epoch.
type EpochLoss struct {
	Loss    float64 `json:"loss"`
	ValLoss float64 `json:"val_loss"`
}

// NeuralNetwork is a relu MLP with a single sigmoid output trained with
// Adam on binary cross-entropy.
type NeuralNetwork struct {
	Config  NeuralNetConfig
	Layers  []DenseLayer
	History []EpochLoss
}

// NewNeuralNetwork fills zero-valued settings from the defaults.
func NewNeuralNetwork(cfg NeuralNetConfig) *NeuralNetwork {
	def := DefaultNeuralNetConfig()
	if len(cfg.Hidden) == 0 {
		cfg.Hidden = def.Hidden
		cfg.Dropout = def.Dropout
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Beta1 <= 0 {
		cfg.Beta1 = def.Beta1
	}
	if cfg.Beta2 <= 0 {
		cfg.Beta2 = def.Beta2
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &NeuralNetwork{Config: cfg}
}

const bceEpsilon = 1e-7

type adamState struct {
	mW, vW [][][]float64
	mB, vB [][]float64
	t      int
}

// Fit initializes the layers and trains for Config.Epochs epochs.
func (m *NeuralNetwork) Fit(X [][]float64, y []int) error {
	width, err := checkXY(X, len(y))
	if err != nil {
		return err
	}
	if err := checkLabels(y); err != nil {
		return err
	}
	cfg := m.Config
	rng := rand.New(rand.NewSource(cfg.Seed))

	sizes := append([]int{width}, cfg.Hidden...)
	sizes = append(sizes, 1)
	m.Layers = make([]DenseLayer, len(sizes)-1)
	for l := range m.Layers {
		m.Layers[l] = glorotLayer(sizes[l], sizes[l+1], rng)
	}

	nVal := int(float64(len(X)) * cfg.ValidationSplit)
	nTrain := len(X) - nVal
	if nTrain == 0 {
		return fmt.Errorf("validation split %.2f leaves no training rows", cfg.ValidationSplit)
	}
	target := labelsToFloat(y)

	opt := newAdamState(m.Layers)
	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}
	grads := zeroGrads(m.Layers)
	m.History = m.History[:0]

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		rng.Shuffle(nTrain, func(a, b int) { order[a], order[b] = order[b], order[a] })
		var epochLoss float64
		for start := 0; start < nTrain; start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > nTrain {
				end = nTrain
			}
			grads.reset()
			batch := float64(end - start)
			for _, i := range order[start:end] {
				epochLoss += m.backprop(X[i], target[i], 1/batch, grads, rng)
			}
			m.adamStep(opt, grads)
		}
		rec := EpochLoss{Loss: epochLoss / float64(nTrain)}
		if nVal > 0 {
			rec.ValLoss = m.loss(X[nTrain:], target[nTrain:])
		}
		m.History = append(m.History, rec)
	}
	return nil
}

// PredictProba runs a forward pass without dropout.
func (m *NeuralNetwork) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = m.forward(x)
	}
	return out
}

func (m *NeuralNetwork) forward(x []float64) float64 {
	a := x
	last := len(m.Layers) - 1
	for l, layer := range m.Layers {
		z := layer.apply(a)
		if l < last {
			for k := range z {
				z[k] = math.Max(0, z[k])
			}
		}
		a = z
	}
	return sigmoid(a[0])
}

func (m *NeuralNetwork) loss(X [][]float64, y []float64) float64 {
	var sum float64
	for i, x := range X {
		sum += bce(m.forward(x), y[i])
	}
	return sum / float64(len(X))
}

func bce(p, y float64) float64 {
	p = math.Min(math.Max(p, bceEpsilon), 1-bceEpsilon)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// backprop accumulates scale-weighted gradients for one sample with dropout
// active and returns its loss.
func (m *NeuralNetwork) backprop(x []float64, y, scale float64, grads layerGrads, rng *rand.Rand) float64 {
	last := len(m.Layers) - 1
	inputs := make([][]float64, len(m.Layers))
	pre := make([][]float64, len(m.Layers))
	masks := make([][]float64, len(m.Layers))

	a := x
	for l, layer := range m.Layers {
		inputs[l] = a
		z := layer.apply(a)
		pre[l] = z
		if l == last {
			a = z
			break
		}
		out := make([]float64, len(z))
		rate := 0.0
		if l < len(m.Config.Dropout) {
			rate = m.Config.Dropout[l]
		}
		mask := make([]float64, len(z))
		for k, v := range z {
			keep := 1.0
			if rate > 0 {
				if rng.Float64() < rate {
					keep = 0
				} else {
					keep = 1 / (1 - rate)
				}
			}
			mask[k] = keep
			out[k] = math.Max(0, v) * keep
		}
		masks[l] = mask
		a = out
	}

	p := sigmoid(a[0])
	delta := []float64{(p - y) * scale}
	for l := last; l >= 0; l-- {
		layer := m.Layers[l]
		in := inputs[l]
		for o, d := range delta {
			grads.b[l][o] += d
			row := grads.w[l][o]
			for k, v := range in {
				row[k] += d * v
			}
		}
		if l == 0 {
			break
		}
		prev := make([]float64, len(in))
		for o, d := range delta {
			for k, w := range layer.W[o] {
				prev[k] += w * d
			}
		}
		for k := range prev {
			if pre[l-1][k] <= 0 {
				prev[k] = 0
			} else {
				prev[k] *= masks[l-1][k]
			}
		}
		delta = prev
	}
	return bce(p, y)
}

func (m *NeuralNetwork) adamStep(opt *adamState, grads layerGrads) {
	cfg := m.Config
	opt.t++
	c1 := 1 - math.Pow(cfg.Beta1, float64(opt.t))
	c2 := 1 - math.Pow(cfg.Beta2, float64(opt.t))
	lr := cfg.LearningRate * math.Sqrt(c2) / c1

	update := func(param, g, mom, vel []float64) {
		for k := range param {
			mom[k] = cfg.Beta1*mom[k] + (1-cfg.Beta1)*g[k]
			vel[k] = cfg.Beta2*vel[k] + (1-cfg.Beta2)*g[k]*g[k]
			param[k] -= lr * mom[k] / (math.Sqrt(vel[k]) + cfg.Epsilon)
		}
	}
	for l := range m.Layers {
		for o := range m.Layers[l].W {
			update(m.Layers[l].W[o], grads.w[l][o], opt.mW[l][o], opt.vW[l][o])
		}
		update(m.Layers[l].B, grads.b[l], opt.mB[l], opt.vB[l])
	}
}

func (d DenseLayer) apply(a []float64) []float64 {
	z := make([]float64, len(d.W))
	for o, row := range d.W {
		s := d.B[o]
		for k, w := range row {
			s += w * a[k]
		}
		z[o] = s
	}
	return z
}

func glorotLayer(in, out int, rng *rand.Rand) DenseLayer {
	limit := math.Sqrt(6 / float64(in+out))
	layer := DenseLayer{W: make([][]float64, out), B: make([]float64, out)}
	for o := range layer.W {
		layer.W[o] = make([]float64, in)
		for k := range layer.W[o] {
			layer.W[o][k] = (rng.Float64()*2 - 1) * limit
		}
	}
	return layer
}

type layerGrads struct {
	w [][][]float64
	b [][]float64
}

func zeroGrads(layers []DenseLayer) layerGrads {
	g := layerGrads{w: make([][][]float64, len(layers)), b: make([][]float64, len(layers))}
	for l, layer := range layers {
		g.w[l] = make([][]float64, len(layer.W))
		for o := range layer.W {
			g.w[l][o] = make([]float64, len(layer.W[o]))
		}
		g.b[l] = make([]float64, len(layer.B))
	}
	return g
}

func (g layerGrads) reset() {
	for l := range g.w {
		for o := range g.w[l] {
			clear(g.w[l][o])
		}
		clear(g.b[l])
	}
}

func newAdamState(layers []DenseLayer) *adamState {
	m, v := zeroGrads(layers), zeroGrads(layers)
	return &adamState{mW: m.w, vW: v.w, mB: m.b, vB: v.b}
}
