package predictor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/ml"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// churnExcluded are never model inputs.
var churnExcluded = map[string]bool{
	features.ColCustomerID:   true,
	features.ColCustomerCode: true,
	features.ColChurned:      true,
	features.ColChurnDate:    true,
	features.ColChurnReason:  true,
	features.ColSignupDate:   true,
}

// ChurnMetrics is the evaluation of a churn training run on its held-out split.
type ChurnMetrics struct {
	Accuracy             float64            `json:"accuracy"`
	AUCScore             float64            `json:"auc_score"`
	CVMean               float64            `json:"cv_mean"`
	CVStd                float64            `json:"cv_std"`
	FeatureImportance    map[string]float64 `json:"feature_importance"`
	ClassificationReport string             `json:"classification_report"`
	ConfusionMatrix      [][]int            `json:"confusion_matrix"`
	NFeatures            int                `json:"n_features"`
	NSamples             int                `json:"n_samples"`
}

// ChurnPredictor trains one churn classifier and serves churn probabilities.
// Predict may run concurrently with Train; it sees either the previous or the
// new model, never a mix.
type ChurnPredictor struct {
	opts options

	mu             sync.RWMutex
	modelType      ModelType
	model          ml.Classifier
	scaler         *ml.StandardScaler
	featureColumns []string
	trainedAt      time.Time
	trained        bool
}

// NewChurnPredictor creates an untrained predictor for the named algorithm.
func NewChurnPredictor(modelType string, opts ...Option) (*ChurnPredictor, error) {
	kind, err := ParseModelType(modelType)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	if err := o.params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}
	return &ChurnPredictor{opts: o, modelType: kind}, nil
}

// ModelType returns the algorithm in use.
func (p *ChurnPredictor) ModelType() ModelType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modelType
}

// IsTrained reports whether Predict can be called.
func (p *ChurnPredictor) IsTrained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trained
}

// TrainedAt returns when the current model was fitted.
func (p *ChurnPredictor) TrainedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trainedAt
}

// FeatureColumns returns the ordered model inputs of the current model.
func (p *ChurnPredictor) FeatureColumns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.featureColumns...)
}

// PrepareFeatures selects every numeric column except identifiers and the
// target, fills missing values with the column median and returns the
// matrix, the churned labels (nil when the table has no churned column) and
// the column order.
func (p *ChurnPredictor) PrepareFeatures(ctx context.Context, table *features.Table) ([][]float64, []int, []string) {
	cols := featureColumns(table, churnExcluded)
	var imp ml.MedianImputer
	X := imp.FitTransform(table.Matrix(cols))

	var y []int
	if target := table.Column(features.ColChurned); target != nil {
		y = make([]int, len(target))
		for i, v := range target {
			if !math.IsNaN(v) && v >= 0.5 {
				y[i] = 1
			}
		}
	}
	logger.FromContext(ctx).Info("Prepared features", zap.Int("features", len(cols)), zap.Int("rows", len(X)))
	return X, y, cols
}

// Train fits the classifier on a stratified split of table and evaluates it.
// testSize <= 0 uses 0.2.
func (p *ChurnPredictor) Train(ctx context.Context, table *features.Table, testSize float64) (*ChurnMetrics, error) {
	kind := p.ModelType()
	log := logger.FromContext(ctx).With(zap.String("model", kindChurn), zap.String("model_type", kind.String()))
	log.Info("Training model")

	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: empty feature table", apperrors.ErrValidation)
	}
	if testSize <= 0 {
		testSize = defaultTestSize
	}
	started := p.opts.now()

	X, y, cols := p.PrepareFeatures(ctx, table)
	if y == nil {
		return nil, fmt.Errorf("%w: target variable %q not found in dataset", apperrors.ErrConfiguration, features.ColChurned)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no feature columns in dataset", apperrors.ErrConfiguration)
	}

	split, err := ml.StratifiedTrainTestSplit(y, testSize, p.opts.seed)
	if err != nil {
		return nil, fmt.Errorf("%w: split: %v", apperrors.ErrValidation, err)
	}
	Xtr, ytr := ml.Rows(X, split.Train), gatherLabels(y, split.Train)
	Xte, yte := ml.Rows(X, split.Test), gatherLabels(y, split.Test)

	var scaler *ml.StandardScaler
	if kind.UsesScaler() {
		scaler = &ml.StandardScaler{}
		Xtr = scaler.FitTransform(Xtr)
		Xte = scaler.Transform(Xte)
	}

	model, err := newEstimator(kind, p.opts.params, p.opts.workers, p.opts.seed)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(Xtr, ytr); err != nil {
		return nil, fmt.Errorf("%w: fit %s: %v", apperrors.ErrValidation, kind, err)
	}

	proba := model.PredictProba(Xte)
	pred := ml.PredictLabels(proba)
	auc, err := ml.ROCAUC(yte, proba)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate: %v", apperrors.ErrValidation, err)
	}
	metrics := &ChurnMetrics{
		Accuracy:             ml.Accuracy(yte, pred),
		AUCScore:             auc,
		ClassificationReport: ml.ClassificationReport(yte, pred),
		ConfusionMatrix:      ml.ConfusionMatrix(yte, pred),
		NFeatures:            len(cols),
		NSamples:             len(X),
	}

	if kind.CrossValidated() {
		folds, err := ml.StratifiedKFold(ytr, cvFolds)
		if err != nil {
			return nil, fmt.Errorf("%w: cross-validation: %v", apperrors.ErrValidation, err)
		}
		scores, err := ml.CrossValScore(func() ml.Classifier {
			m, _ := newEstimator(kind, p.opts.params, 1, p.opts.seed)
			return m
		}, Xtr, ytr, folds, p.opts.workers)
		if err != nil {
			return nil, fmt.Errorf("cross-validation: %w", err)
		}
		metrics.CVMean, metrics.CVStd = ml.MeanStd(scores)
	}

	if fi, ok := model.(ml.FeatureImporter); ok {
		scores := fi.FeatureImportances()
		metrics.FeatureImportance = make(map[string]float64, len(cols))
		for j, c := range cols {
			if j < len(scores) {
				metrics.FeatureImportance[c] = scores[j]
			}
		}
	}

	p.mu.Lock()
	p.model = model
	p.scaler = scaler
	p.featureColumns = cols
	p.trainedAt = started
	p.trained = true
	p.mu.Unlock()

	duration := p.opts.now().Sub(started)
	scalar := map[string]float64{
		"accuracy":  metrics.Accuracy,
		"auc_score": metrics.AUCScore,
		"cv_mean":   metrics.CVMean,
		"cv_std":    metrics.CVStd,
	}
	observer.ObserveTraining(kindChurn, kind.String(), duration, scalar)

	params := paramsFor(kind, p.opts.params)
	params["model_type"] = kind.String()
	params["test_size"] = testSize
	params["n_features"] = len(cols)
	params["n_samples"] = len(X)
	p.track(ctx, log, tracking.Run{
		Model:             kindChurn,
		ModelType:         kind.String(),
		StartedAt:         started,
		Duration:          duration,
		Rows:              len(X),
		Params:            params,
		Metrics:           scalar,
		FeatureImportance: topFeatures(metrics.FeatureImportance),
	})

	log.Info("Model training completed",
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("auc", metrics.AUCScore),
		zap.Duration("duration", duration),
	)
	return metrics, nil
}

// Predict returns the churn probability of every row. Columns are matched to
// the training order; missing values and missing columns become 0.
func (p *ChurnPredictor) Predict(table *features.Table) ([]float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.trained {
		return nil, fmt.Errorf("%w: churn model must be trained before making predictions", apperrors.ErrNotTrained)
	}
	if table == nil || table.Len() == 0 {
		return []float64{}, nil
	}
	X := table.Select(p.featureColumns, 0)
	if p.scaler != nil {
		X = p.scaler.Transform(X)
	}
	proba := p.model.PredictProba(X)
	observer.AddPredictions(kindChurn, len(proba))
	return proba, nil
}

// SaveModel writes the fitted state to path.
func (p *ChurnPredictor) SaveModel(path string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.trained {
		return fmt.Errorf("%w: churn model must be trained before saving", apperrors.ErrNotTrained)
	}
	meta := ArtifactMetadata{Kind: kindChurn, ModelType: p.modelType.String(), TrainedAt: p.trainedAt}
	b := bundle{
		Classifier:     p.model,
		Scaler:         p.scaler,
		FeatureColumns: p.featureColumns,
		ModelType:      p.modelType,
	}
	size, err := writeArtifact(path, meta, b)
	if err != nil {
		return err
	}
	logger.Log.Info("Model saved",
		zap.String("model", kindChurn),
		zap.String("path", path),
		zap.String("size", utils.ByteCountSI(size)))
	return nil
}

// LoadModel replaces the current state with the model stored at path,
// including its model type.
func (p *ChurnPredictor) LoadModel(path string) error {
	meta, b, err := readArtifact(path, kindChurn)
	if err != nil {
		return err
	}
	kind, err := ParseModelType(string(b.ModelType))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrArtifact, err)
	}
	if b.Classifier == nil || len(b.FeatureColumns) == 0 {
		return fmt.Errorf("%w: %s has no fitted classifier", apperrors.ErrArtifact, path)
	}
	if kind.UsesScaler() && !b.Scaler.Fitted() {
		return fmt.Errorf("%w: %s is missing its feature scaler", apperrors.ErrArtifact, path)
	}

	p.mu.Lock()
	p.modelType = kind
	p.model = b.Classifier
	p.scaler = b.Scaler
	p.featureColumns = b.FeatureColumns
	p.trainedAt = meta.TrainedAt
	p.trained = true
	p.mu.Unlock()

	logger.Log.Info("Model loaded", zap.String("model", kindChurn), zap.String("model_type", kind.String()), zap.String("path", path))
	return nil
}

func (p *ChurnPredictor) track(ctx context.Context, log *zap.Logger, run tracking.Run) {
	trackRun(ctx, log, p.opts.tracker, run)
}

// trackRun logs run and swallows tracker failures.
func trackRun(ctx context.Context, log *zap.Logger, tracker tracking.Tracker, run tracking.Run) {
	run.RunID = uuid.NewString()
	if parent := logger.RunIDFromContext(ctx); parent != "" {
		if run.Params == nil {
			run.Params = map[string]any{}
		}
		run.Params["pipeline_run_id"] = parent
	}
	if err := tracker.LogRun(ctx, run); err != nil {
		observer.IncTrackingFailure(run.Model)
		log.Warn("Failed to record training run",
			zap.String("tracking_run_id", run.RunID),
			zap.Bool("nats_unavailable", apperrors.IsNATSError(err)),
			zap.Error(err),
		)
	}
}

// featureColumns keeps table columns in order minus the excluded names.
func featureColumns(table *features.Table, excluded map[string]bool) []string {
	var cols []string
	for _, c := range table.Columns() {
		if !excluded[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

func topFeatures(importance map[string]float64) map[string]float64 {
	if importance == nil {
		return nil
	}
	top := tracking.TopFeatures(importance, topFeatureCount)
	out := make(map[string]float64, len(top))
	for _, f := range top {
		out[f.Feature] = f.Score
	}
	return out
}

func gatherLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, k := range idx {
		out[i] = y[k]
	}
	return out
}
