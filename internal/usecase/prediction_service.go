package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/validator"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// PredictRequest selects the rows to score: stored customers by id, or
// feature records supplied by the caller. Ids win when both are given.
type PredictRequest struct {
	CustomerIDs []int64          `json:"customer_ids" validate:"omitempty,dive,gt=0"`
	Features    []map[string]any `json:"features"`
}

// ChurnPrediction is the churn score of one customer.
type ChurnPrediction struct {
	CustomerID       int64   `json:"customer_id"`
	ChurnProbability float64 `json:"churn_probability"`
	RiskLevel        string  `json:"risk_level"`
}

// CLVPrediction is the lifetime-value estimate of one customer.
type CLVPrediction struct {
	CustomerID   int64   `json:"customer_id"`
	PredictedCLV float64 `json:"predicted_clv"`
	CLVSegment   string  `json:"clv_segment"`
}

// ChurnPredictions is the response of PredictChurn.
type ChurnPredictions struct {
	Predictions []ChurnPrediction `json:"predictions"`
	Timestamp   string            `json:"timestamp"`
}

// CLVPredictions is the response of PredictCLV.
type CLVPredictions struct {
	Predictions []CLVPrediction `json:"predictions"`
	Timestamp   string          `json:"timestamp"`
}

// PredictChurn scores the requested customers with the serving churn model.
func (s *AnalyticsService) PredictChurn(ctx context.Context, req PredictRequest) (*ChurnPredictions, error) {
	model := s.registry.Churn()
	if model == nil || !model.IsTrained() {
		return nil, fmt.Errorf("%w: churn model not trained, please train the model first", apperrors.ErrNotTrained)
	}
	table, err := s.requestFeatures(ctx, req)
	if err != nil {
		return nil, err
	}

	proba, err := model.Predict(table)
	if err != nil {
		return nil, err
	}
	out := make([]ChurnPrediction, len(proba))
	for i, p := range proba {
		out[i] = ChurnPrediction{
			CustomerID:       table.Identity(i).CustomerID,
			ChurnProbability: p,
			RiskLevel:        predictor.RiskLevel(p),
		}
	}
	logger.FromContext(ctx).Debug("Scored churn", zap.Int("rows", len(out)))
	return &ChurnPredictions{Predictions: out, Timestamp: utils.FormatISO8601(s.now())}, nil
}

// PredictCLV estimates lifetime value for the requested customers.
func (s *AnalyticsService) PredictCLV(ctx context.Context, req PredictRequest) (*CLVPredictions, error) {
	model := s.registry.CLV()
	if model == nil || !model.IsTrained() {
		return nil, fmt.Errorf("%w: clv model not trained, please train the model first", apperrors.ErrNotTrained)
	}
	table, err := s.requestFeatures(ctx, req)
	if err != nil {
		return nil, err
	}

	values, err := model.Predict(table)
	if err != nil {
		return nil, err
	}
	out := make([]CLVPrediction, len(values))
	for i, v := range values {
		out[i] = CLVPrediction{
			CustomerID:   table.Identity(i).CustomerID,
			PredictedCLV: v,
			CLVSegment:   predictor.CLVSegment(v),
		}
	}
	logger.FromContext(ctx).Debug("Scored clv", zap.Int("rows", len(out)))
	return &CLVPredictions{Predictions: out, Timestamp: utils.FormatISO8601(s.now())}, nil
}

// requestFeatures builds the feature rows a prediction request refers to.
func (s *AnalyticsService) requestFeatures(ctx context.Context, req PredictRequest) (*features.Table, error) {
	if len(req.CustomerIDs) == 0 && len(req.Features) == 0 {
		return nil, fmt.Errorf("%w: either customer_ids or features must be provided", apperrors.ErrBadRequest)
	}
	if err := validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err)
	}

	if len(req.CustomerIDs) > 0 {
		return s.etl.FeaturesForCustomers(ctx, req.CustomerIDs)
	}
	table, err := features.TableFromRecords(req.Features)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err)
	}
	return table, nil
}
