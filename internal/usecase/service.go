package usecase

import (
	"context"
	"time"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/pipeline"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
)

// ETLRunner runs the feature pipeline
type ETLRunner interface {
	RunETLPipeline(ctx context.Context) (*pipeline.Result, error)
	FeaturesForCustomers(ctx context.Context, ids []int64) (*features.Table, error)
}

// CustomerSource reads customers with their churn status
type CustomerSource interface {
	ExtractCustomerData(ctx context.Context, start, end *time.Time) ([]model.CustomerRecord, error)
}

// TrainingConfig selects the churn algorithm and how predictors are built
type TrainingConfig struct {
	ChurnModelType string
	TestSize       float64
	Options        []predictor.Option
}

// AnalyticsService is the entry point for the operations the API layer
// exposes: ETL runs, training, predictions and customer analytics.
type AnalyticsService struct {
	etl       ETLRunner
	customers CustomerSource
	registry  *predictor.Registry
	training  TrainingConfig
	now       func() time.Time

	// train serializes TrainModels; predictions keep using the registry's
	// current models while a retrain is in flight.
	train chan struct{}
}

// NewAnalyticsService creates the service
func NewAnalyticsService(etl ETLRunner, customers CustomerSource, registry *predictor.Registry, training TrainingConfig) *AnalyticsService {
	if training.ChurnModelType == "" {
		training.ChurnModelType = predictor.RandomForest.String()
	}
	return &AnalyticsService{
		etl:       etl,
		customers: customers,
		registry:  registry,
		training:  training,
		now:       time.Now,
		train:     make(chan struct{}, 1),
	}
}

// Registry returns the model registry the service serves from.
func (s *AnalyticsService) Registry() *predictor.Registry {
	return s.registry
}
