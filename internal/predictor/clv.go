package predictor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/ml"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

const clvModelType = "random_forest_regressor"

var clvExcluded = map[string]bool{
	features.ColCustomerID:   true,
	features.ColCustomerCode: true,
	features.ColChurned:      true,
	features.ColChurnDate:    true,
	features.ColChurnReason:  true,
	features.ColSignupDate:   true,
	features.ColTotalCharges: true,
}

// CLVMetrics are the R² scores of a lifetime-value training run.
type CLVMetrics struct {
	TrainR2 float64 `json:"train_r2"`
	TestR2  float64 `json:"test_r2"`
}

// LifetimeValuePredictor regresses total_charges on the remaining features
// with a random forest over standardized inputs.
type LifetimeValuePredictor struct {
	opts options

	mu             sync.RWMutex
	model          ml.Regressor
	scaler         *ml.StandardScaler
	featureColumns []string
	trainedAt      time.Time
	trained        bool
}

// NewLifetimeValuePredictor creates an untrained predictor.
func NewLifetimeValuePredictor(opts ...Option) *LifetimeValuePredictor {
	return &LifetimeValuePredictor{opts: newOptions(opts)}
}

// IsTrained reports whether Predict can be called.
func (p *LifetimeValuePredictor) IsTrained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trained
}

// TrainedAt returns when the current model was fitted.
func (p *LifetimeValuePredictor) TrainedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trainedAt
}

// FeatureColumns returns the ordered model inputs of the current model.
func (p *LifetimeValuePredictor) FeatureColumns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.featureColumns...)
}

// PrepareFeatures selects the inputs with missing values set to 0 and returns
// the total_charges target (nil when the column is absent).
func (p *LifetimeValuePredictor) PrepareFeatures(table *features.Table) ([][]float64, []float64, []string) {
	cols := featureColumns(table, clvExcluded)
	X := table.Select(cols, 0)
	y := table.Column(features.ColTotalCharges)
	for i, v := range y {
		if math.IsNaN(v) {
			y[i] = 0
		}
	}
	return X, y, cols
}

// Train fits the regressor on a random 80/20 split and scores both halves.
func (p *LifetimeValuePredictor) Train(ctx context.Context, table *features.Table) (*CLVMetrics, error) {
	log := logger.FromContext(ctx).With(zap.String("model", kindCLV))
	log.Info("Training CLV prediction model")

	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: empty feature table", apperrors.ErrValidation)
	}
	started := p.opts.now()

	X, y, cols := p.PrepareFeatures(table)
	if y == nil {
		return nil, fmt.Errorf("%w: target variable %q not found", apperrors.ErrConfiguration, features.ColTotalCharges)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no feature columns in dataset", apperrors.ErrConfiguration)
	}

	split, err := ml.TrainTestSplit(len(X), defaultTestSize, p.opts.seed)
	if err != nil {
		return nil, fmt.Errorf("%w: split: %v", apperrors.ErrValidation, err)
	}
	scaler := &ml.StandardScaler{}
	Xtr := scaler.FitTransform(ml.Rows(X, split.Train))
	Xte := scaler.Transform(ml.Rows(X, split.Test))
	ytr, yte := gatherTargets(y, split.Train), gatherTargets(y, split.Test)

	cfg := ml.DefaultForestRegressorConfig()
	cfg.Workers = p.opts.workers
	cfg.Seed = p.opts.seed
	model := ml.NewRandomForestRegressor(cfg)
	if err := model.Fit(Xtr, ytr); err != nil {
		return nil, fmt.Errorf("%w: fit clv model: %v", apperrors.ErrValidation, err)
	}

	metrics := &CLVMetrics{
		TrainR2: ml.R2Score(ytr, model.Predict(Xtr)),
		TestR2:  ml.R2Score(yte, model.Predict(Xte)),
	}

	p.mu.Lock()
	p.model = model
	p.scaler = scaler
	p.featureColumns = cols
	p.trainedAt = started
	p.trained = true
	p.mu.Unlock()

	duration := p.opts.now().Sub(started)
	scalar := map[string]float64{"train_r2": metrics.TrainR2, "test_r2": metrics.TestR2}
	observer.ObserveTraining(kindCLV, clvModelType, duration, scalar)

	importance := make(map[string]float64, len(cols))
	for j, v := range model.FeatureImportances() {
		importance[cols[j]] = v
	}
	params := paramsFromForest(cfg)
	params["n_features"] = len(cols)
	params["n_samples"] = len(X)
	trackRun(ctx, log, p.opts.tracker, tracking.Run{
		Model:             kindCLV,
		ModelType:         clvModelType,
		StartedAt:         started,
		Duration:          duration,
		Rows:              len(X),
		Params:            params,
		Metrics:           scalar,
		FeatureImportance: topFeatures(importance),
	})

	log.Info("CLV model training completed",
		zap.Float64("train_r2", metrics.TrainR2),
		zap.Float64("test_r2", metrics.TestR2),
	)
	return metrics, nil
}

// Predict returns a lifetime-value estimate per row.
func (p *LifetimeValuePredictor) Predict(table *features.Table) ([]float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.trained {
		return nil, fmt.Errorf("%w: clv model must be trained before making predictions", apperrors.ErrNotTrained)
	}
	if table == nil || table.Len() == 0 {
		return []float64{}, nil
	}
	X := p.scaler.Transform(table.Select(p.featureColumns, 0))
	out := p.model.Predict(X)
	observer.AddPredictions(kindCLV, len(out))
	return out, nil
}

// SaveModel writes the fitted state to path.
func (p *LifetimeValuePredictor) SaveModel(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.trained {
		return fmt.Errorf("%w: clv model must be trained before saving", apperrors.ErrNotTrained)
	}
	meta := ArtifactMetadata{Kind: kindCLV, ModelType: clvModelType, TrainedAt: p.trainedAt}
	b := bundle{Regressor: p.model, Scaler: p.scaler, FeatureColumns: p.featureColumns}
	size, err := writeArtifact(path, meta, b)
	if err != nil {
		return err
	}
	logger.Log.Info("Model saved",
		zap.String("model", kindCLV),
		zap.String("path", path),
		zap.String("size", utils.ByteCountSI(size)))
	return nil
}

// LoadModel replaces the current state with the model stored at path.
func (p *LifetimeValuePredictor) LoadModel(path string) error {
	meta, b, err := readArtifact(path, kindCLV)
	if err != nil {
		return err
	}
	if b.Regressor == nil || !b.Scaler.Fitted() || len(b.FeatureColumns) == 0 {
		return fmt.Errorf("%w: %s has no fitted regressor", apperrors.ErrArtifact, path)
	}

	p.mu.Lock()
	p.model = b.Regressor
	p.scaler = b.Scaler
	p.featureColumns = b.FeatureColumns
	p.trainedAt = meta.TrainedAt
	p.trained = true
	p.mu.Unlock()

	logger.Log.Info("Model loaded", zap.String("model", kindCLV), zap.String("path", path))
	return nil
}

func paramsFromForest(cfg ml.ForestConfig) map[string]any {
	return map[string]any{
		"n_estimators":      cfg.NEstimators,
		"max_depth":         cfg.MaxDepth,
		"min_samples_split": cfg.MinSamplesSplit,
		"min_samples_leaf":  cfg.MinSamplesLeaf,
		"bootstrap":         cfg.Bootstrap,
		"seed":              cfg.Seed,
	}
}

func gatherTargets(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = y[k]
	}
	return out
}
