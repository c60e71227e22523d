package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/pipeline"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/validator"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// TrainResult is what a training request returns.
type TrainResult struct {
	RunID            string                  `json:"run_id"`
	RecordsProcessed int                     `json:"records_processed"`
	ChurnModel       *predictor.ChurnMetrics `json:"churn_model,omitempty"`
	CLVModel         *predictor.CLVMetrics   `json:"clv_model,omitempty"`
	CompletedAt      string                  `json:"timestamp"`
}

// ETLResult is what a manual ETL trigger returns.
type ETLResult struct {
	RunID            string `json:"run_id"`
	FeatureDate      string `json:"feature_date"`
	RecordsProcessed int    `json:"records_processed"`
	CompletedAt      string `json:"timestamp"`
}

// RunETL refreshes today's feature-store snapshot.
func (s *AnalyticsService) RunETL(ctx context.Context) (*ETLResult, error) {
	result, err := s.etl.RunETLPipeline(ctx)
	if err != nil {
		return nil, err
	}
	return &ETLResult{
		RunID:            result.RunID,
		FeatureDate:      result.FeatureDate.Format(utils.DateLayout),
		RecordsProcessed: result.RowsLoaded,
		CompletedAt:      utils.FormatISO8601(s.now()),
	}, nil
}

// TrainModels runs the ETL pipeline, trains a fresh churn model and, when
// the features carry total_charges, a fresh lifetime-value model. Each model
// is swapped into the registry only after it was trained and saved, so a
// failed model keeps its previous version serving. Concurrent calls are
// serialized.
func (s *AnalyticsService) TrainModels(ctx context.Context) (*TrainResult, error) {
	select {
	case s.train <- struct{}{}:
		defer func() { <-s.train }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	runID := logger.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	if err := validator.ValidateVar(s.training.TestSize, "gte=0,lt=1"); err != nil {
		return nil, fmt.Errorf("%w: test size %v must be in [0, 1)", apperrors.ErrConfiguration, s.training.TestSize)
	}

	etl, err := s.etl.RunETLPipeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh features: %w", err)
	}
	if etl.Features == nil {
		etl.Features = features.NewTable(nil)
	}

	out := &TrainResult{RunID: runID, RecordsProcessed: etl.Features.Len()}

	churn, metrics, err := s.trainChurn(ctx, etl)
	if err != nil {
		return nil, err
	}
	s.registry.SetChurn(churn)
	out.ChurnModel = metrics

	if etl.Features.Has(features.ColTotalCharges) {
		clv, clvMetrics, err := s.trainCLV(ctx, etl)
		if err != nil {
			return nil, err
		}
		s.registry.SetCLV(clv)
		out.CLVModel = clvMetrics
	} else {
		log.Warn("Skipping clv model: features have no total_charges column")
	}

	out.CompletedAt = utils.FormatISO8601(s.now())
	log.Info("Models trained successfully", zap.Duration("duration", time.Since(start)))
	return out, nil
}

func (s *AnalyticsService) trainChurn(ctx context.Context, etl *pipeline.Result) (*predictor.ChurnPredictor, *predictor.ChurnMetrics, error) {
	p, err := predictor.NewChurnPredictor(s.training.ChurnModelType, s.training.Options...)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := p.Train(ctx, etl.Features, s.training.TestSize)
	if err != nil {
		return nil, nil, fmt.Errorf("train churn model: %w", err)
	}
	if err := p.SaveModel(s.registry.ChurnPath()); err != nil {
		return nil, nil, fmt.Errorf("save churn model: %w", err)
	}
	return p, metrics, nil
}

func (s *AnalyticsService) trainCLV(ctx context.Context, etl *pipeline.Result) (*predictor.LifetimeValuePredictor, *predictor.CLVMetrics, error) {
	p := predictor.NewLifetimeValuePredictor(s.training.Options...)
	metrics, err := p.Train(ctx, etl.Features)
	if err != nil {
		return nil, nil, fmt.Errorf("train clv model: %w", err)
	}
	if err := p.SaveModel(s.registry.CLVPath()); err != nil {
		return nil, nil, fmt.Errorf("save clv model: %w", err)
	}
	return p, metrics, nil
}
