package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticConfig contains L2-regularized logistic regression settings.
type LogisticConfig struct {
	// C is the inverse regularization strength.
	// Default: 1
	C float64 `json:"C" validate:"gt=0"`

	// MaxIter bounds the Newton iterations.
	// Default: 1000
	MaxIter int `json:"max_iter" validate:"gte=1"`

	// Tol stops iteration once the largest coefficient step is below it.
	// Default: 1e-4
	Tol float64 `json:"tol" validate:"gt=0"`
}

// DefaultLogisticConfig returns the churn logistic regression defaults.
func DefaultLogisticConfig() LogisticConfig {
	return LogisticConfig{C: 1, MaxIter: 1000, Tol: 1e-4}
}

// LogisticRegression fits weights by Newton's method on the penalized
// log-likelihood. The intercept is not penalized.
type LogisticRegression struct {
	Config    LogisticConfig
	Coef      []float64
	Intercept float64
	Iter      int
}

// NewLogisticRegression fills zero-valued settings from the defaults.
func NewLogisticRegression(cfg LogisticConfig) *LogisticRegression {
	def := DefaultLogisticConfig()
	if cfg.C <= 0 {
		cfg.C = def.C
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = def.MaxIter
	}
	if cfg.Tol <= 0 {
		cfg.Tol = def.Tol
	}
	return &LogisticRegression{Config: cfg}
}

// Fit solves for Coef and Intercept.
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	width, err := checkXY(X, len(y))
	if err != nil {
		return err
	}
	if err := checkLabels(y); err != nil {
		return err
	}
	d := width + 1 // last slot is the intercept
	w := make([]float64, d)
	grad := make([]float64, d)
	hess := mat.NewSymDense(d, nil)
	step := mat.NewVecDense(d, nil)
	penalty := 1 / m.Config.C

	for m.Iter = 1; m.Iter <= m.Config.MaxIter; m.Iter++ {
		for j := range grad {
			grad[j] = 0
		}
		hess.Zero()
		for i, x := range X {
			z := w[width]
			for j, v := range x {
				z += w[j] * v
			}
			p := sigmoid(z)
			r := p - float64(y[i])
			s := math.Max(p*(1-p), 1e-12)
			for j := 0; j < d; j++ {
				xj := 1.0
				if j < width {
					xj = x[j]
				}
				grad[j] += r * xj
				for k := j; k < d; k++ {
					xk := 1.0
					if k < width {
						xk = x[k]
					}
					hess.SetSym(j, k, hess.At(j, k)+s*xj*xk)
				}
			}
		}
		for j := 0; j < width; j++ {
			grad[j] += penalty * w[j]
			hess.SetSym(j, j, hess.At(j, j)+penalty)
		}

		if err := solveNewtonStep(hess, grad, step); err != nil {
			return fmt.Errorf("logistic regression iteration %d: %w", m.Iter, err)
		}
		maxStep := 0.0
		for j := 0; j < d; j++ {
			delta := step.AtVec(j)
			w[j] -= delta
			maxStep = math.Max(maxStep, math.Abs(delta))
		}
		if maxStep < m.Config.Tol {
			break
		}
	}
	if m.Iter > m.Config.MaxIter {
		m.Iter = m.Config.MaxIter
	}
	m.Coef = w[:width]
	m.Intercept = w[width]
	return nil
}

// solveNewtonStep solves H step = g by Cholesky, falling back to a general
// solve when H is not numerically positive definite.
func solveNewtonStep(hess *mat.SymDense, grad []float64, step *mat.VecDense) error {
	g := mat.NewVecDense(len(grad), grad)
	var chol mat.Cholesky
	if chol.Factorize(hess) {
		return chol.SolveVecTo(step, g)
	}
	return step.SolveVec(hess, g)
}

// PredictProba returns sigmoid(x . Coef + Intercept).
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		z := m.Intercept
		for j, v := range x {
			if j < len(m.Coef) {
				z += m.Coef[j] * v
			}
		}
		out[i] = sigmoid(z)
	}
	return out
}
