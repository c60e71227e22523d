package usecase

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/pipeline"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/predictor"
)

// --- mocks ---

type etlRunnerMock struct {
	mock.Mock
}

func (m *etlRunnerMock) RunETLPipeline(ctx context.Context) (*pipeline.Result, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.Result), args.Error(1)
}

func (m *etlRunnerMock) FeaturesForCustomers(ctx context.Context, ids []int64) (*features.Table, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*features.Table), args.Error(1)
}

type customerSourceMock struct {
	mock.Mock
}

func (m *customerSourceMock) ExtractCustomerData(ctx context.Context, start, end *time.Time) ([]model.CustomerRecord, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CustomerRecord), args.Error(1)
}

// --- helpers ---

// featureTable runs the real transform over n fake customers, every third
// of them churned.
func featureTable(t *testing.T, n int) *features.Table {
	t.Helper()
	customers := make([]model.CustomerRecord, 0, n)
	var usage []model.UsageMetric
	for i := 1; i <= n; i++ {
		id := int64(i)
		customers = append(customers, *model.NewCustomerRecord(id, i%3 == 0))
		usage = append(usage, model.NewUsageSeries(id, 4)...)
	}
	table, err := features.Transform(customers, usage, time.Now())
	require.NoError(t, err)
	require.Equal(t, n, table.Len())
	return table
}

func fastOptions() []predictor.Option {
	hp := predictor.DefaultHyperparameters()
	hp.RandomForest.NEstimators = 15
	return []predictor.Option{predictor.WithHyperparameters(hp), predictor.WithSeed(7)}
}

func newTestService(t *testing.T, etl ETLRunner, customers CustomerSource, modelType string) *AnalyticsService {
	t.Helper()
	registry := predictor.NewRegistry(t.TempDir(), "churn_model.bin", "clv_model.bin")
	return NewAnalyticsService(etl, customers, registry, TrainingConfig{
		ChurnModelType: modelType,
		TestSize:       0.2,
		Options:        fastOptions(),
	})
}

func etlResult(table *features.Table) *pipeline.Result {
	return &pipeline.Result{
		RunID:       "run-1",
		FeatureDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Customers:   table.Len(),
		RowsLoaded:  table.Len(),
		Features:    table,
	}
}

// --- training ---

func TestTrainModels_TrainsSavesAndServes(t *testing.T) {
	table := featureTable(t, 90)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "random_forest")
	res, err := svc.TrainModels(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 90, res.RecordsProcessed)
	require.NotNil(t, res.ChurnModel)
	assert.GreaterOrEqual(t, res.ChurnModel.Accuracy, 0.0)
	assert.LessOrEqual(t, res.ChurnModel.Accuracy, 1.0)
	require.NotNil(t, res.CLVModel)

	_, err = os.Stat(svc.Registry().ChurnPath())
	assert.NoError(t, err)
	_, err = os.Stat(svc.Registry().CLVPath())
	assert.NoError(t, err)

	status := svc.Registry().Status()
	assert.True(t, status.ChurnModel.Loaded)
	assert.True(t, status.CLVModel.Loaded)

	// The saved artifacts reload into an equivalent registry.
	reloaded := predictor.NewRegistry(svc.Registry().Dir(), "churn_model.bin", "clv_model.bin")
	require.NoError(t, reloaded.LoadFromDir("random_forest"))
	want, err := svc.Registry().Churn().Predict(table)
	require.NoError(t, err)
	got, err := reloaded.Churn().Predict(table)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	etl.AssertExpectations(t)
}

func TestTrainModels_ETLFailureKeepsServingModels(t *testing.T) {
	table := featureTable(t, 60)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()
	etl.On("RunETLPipeline", mock.Anything).Return(nil, apperrors.ErrDatabase).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "logistic_regression")
	_, err := svc.TrainModels(context.Background())
	require.NoError(t, err)
	before := svc.Registry().Churn()

	_, err = svc.TrainModels(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsDatabaseError(err))
	assert.Same(t, before, svc.Registry().Churn())
}

func TestTrainModels_UnknownModelType(t *testing.T) {
	table := featureTable(t, 30)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "svm")
	_, err := svc.TrainModels(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "svm")
	assert.Nil(t, svc.Registry().Churn())
}

func TestTrainModels_MissingTargetIsConfigurationError(t *testing.T) {
	table := features.NewTable([]string{features.ColAge, features.ColTotalCharges})
	for i := 1; i <= 10; i++ {
		require.NoError(t, table.AppendRow(features.Identity{CustomerID: int64(i)}, []float64{float64(20 + i), float64(100 * i)}))
	}
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "random_forest")
	_, err := svc.TrainModels(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigurationError(err))
}

func TestTrainModels_InvalidTestSizeFailsBeforeETL(t *testing.T) {
	for _, size := range []float64{-0.1, 1, 1.5} {
		etl := new(etlRunnerMock)
		svc := newTestService(t, etl, new(customerSourceMock), "random_forest")
		svc.training.TestSize = size

		_, err := svc.TrainModels(context.Background())
		require.Error(t, err, size)
		assert.True(t, apperrors.IsConfigurationError(err), size)
		etl.AssertNotCalled(t, "RunETLPipeline", mock.Anything)
	}
}

func TestTrainModels_CancelledWhileAnotherRunHoldsTheLock(t *testing.T) {
	svc := newTestService(t, new(etlRunnerMock), new(customerSourceMock), "random_forest")
	svc.train <- struct{}{}
	defer func() { <-svc.train }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.TrainModels(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// --- ETL ---

func TestRunETL_ReportsRows(t *testing.T) {
	table := featureTable(t, 5)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "")
	res, err := svc.RunETL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "2024-06-01", res.FeatureDate)
	assert.Equal(t, 5, res.RecordsProcessed)
	assert.NotEmpty(t, res.CompletedAt)
}

func TestRunETL_PropagatesError(t *testing.T) {
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(nil, apperrors.ErrDatabase).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "")
	_, err := svc.RunETL(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}

// --- predictions ---

func TestPredictChurn_BeforeTrainingFails(t *testing.T) {
	svc := newTestService(t, new(etlRunnerMock), new(customerSourceMock), "random_forest")

	_, err := svc.PredictChurn(context.Background(), PredictRequest{CustomerIDs: []int64{1}})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotTrainedError(err))
	assert.True(t, apperrors.IsConfigurationError(err))

	_, err = svc.PredictCLV(context.Background(), PredictRequest{CustomerIDs: []int64{1}})
	assert.True(t, apperrors.IsNotTrainedError(err))
}

func TestPredict_ByIDsAndByFeatures(t *testing.T) {
	table := featureTable(t, 90)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()

	svc := newTestService(t, etl, new(customerSourceMock), "random_forest")
	_, err := svc.TrainModels(context.Background())
	require.NoError(t, err)

	ids := []int64{3, 4, 5}
	etl.On("FeaturesForCustomers", mock.Anything, ids).Return(table.FilterCustomers(ids), nil)

	churn, err := svc.PredictChurn(context.Background(), PredictRequest{CustomerIDs: ids})
	require.NoError(t, err)
	require.Len(t, churn.Predictions, 3)
	for i, p := range churn.Predictions {
		assert.Equal(t, ids[i], p.CustomerID)
		assert.GreaterOrEqual(t, p.ChurnProbability, 0.0)
		assert.LessOrEqual(t, p.ChurnProbability, 1.0)
		assert.Equal(t, predictor.RiskLevel(p.ChurnProbability), p.RiskLevel)
	}

	clv, err := svc.PredictCLV(context.Background(), PredictRequest{CustomerIDs: ids})
	require.NoError(t, err)
	require.Len(t, clv.Predictions, 3)
	for _, p := range clv.Predictions {
		assert.Equal(t, predictor.CLVSegment(p.PredictedCLV), p.CLVSegment)
	}

	// Caller-supplied records with only a few columns: the rest become 0.
	records := []map[string]any{
		{"customer_id": 501, "age": 40, "monthly_charges": 80.5, "tenure_days": 30},
		{"customer_id": 502, "age": 25},
	}
	byFeatures, err := svc.PredictChurn(context.Background(), PredictRequest{Features: records})
	require.NoError(t, err)
	require.Len(t, byFeatures.Predictions, 2)
	assert.Equal(t, int64(501), byFeatures.Predictions[0].CustomerID)
	assert.Equal(t, int64(502), byFeatures.Predictions[1].CustomerID)
}

func TestPredict_RequestValidation(t *testing.T) {
	table := featureTable(t, 60)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()
	svc := newTestService(t, etl, new(customerSourceMock), "logistic_regression")
	_, err := svc.TrainModels(context.Background())
	require.NoError(t, err)

	_, err = svc.PredictChurn(context.Background(), PredictRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))
	assert.Contains(t, err.Error(), "customer_ids or features")

	_, err = svc.PredictChurn(context.Background(), PredictRequest{CustomerIDs: []int64{-4}})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))

	_, err = svc.PredictChurn(context.Background(), PredictRequest{Features: []map[string]any{{"customer_id": "abc"}}})
	require.Error(t, err)
	assert.True(t, apperrors.IsBadRequestError(err))

	etl.AssertNotCalled(t, "FeaturesForCustomers", mock.Anything, mock.Anything)
}

func TestPredict_ExtractErrorPropagates(t *testing.T) {
	table := featureTable(t, 60)
	etl := new(etlRunnerMock)
	etl.On("RunETLPipeline", mock.Anything).Return(etlResult(table), nil).Once()
	etl.On("FeaturesForCustomers", mock.Anything, []int64{1}).Return(nil, apperrors.ErrDatabase)
	svc := newTestService(t, etl, new(customerSourceMock), "logistic_regression")
	_, err := svc.TrainModels(context.Background())
	require.NoError(t, err)

	_, err = svc.PredictChurn(context.Background(), PredictRequest{CustomerIDs: []int64{1}})
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}

// --- analytics ---

func TestSummarize(t *testing.T) {
	charges := func(v float64) *float64 { return &v }
	customers := []model.CustomerRecord{
		{Customer: model.Customer{SubscriptionType: "Basic", TotalCharges: charges(100)}, Churned: true},
		{Customer: model.Customer{SubscriptionType: "Basic", TotalCharges: charges(300)}},
		{Customer: model.Customer{SubscriptionType: "Premium", TotalCharges: charges(800)}},
		{Customer: model.Customer{SubscriptionType: "Premium"}, Churned: true},
	}

	d := Summarize(customers)
	assert.Equal(t, 4, d.Metrics.TotalCustomers)
	assert.Equal(t, 2, d.Metrics.ChurnedCustomers)
	assert.InDelta(t, 0.5, d.Metrics.ChurnRate, 1e-12)
	assert.InDelta(t, 1200.0, d.Metrics.TotalRevenue, 1e-9)
	assert.InDelta(t, 400.0, d.Metrics.AvgRevenuePerCustomer, 1e-9, "missing charges are skipped")
	assert.Equal(t, map[string]int{"Basic": 2, "Premium": 2}, d.Distributions.SubscriptionTypes)
	assert.Equal(t, SubscriptionChurn{Count: 2, Churned: 1}, d.Distributions.ChurnBySubscription["Basic"])
	assert.Equal(t, SubscriptionChurn{Count: 2, Churned: 1}, d.Distributions.ChurnBySubscription["Premium"])
}

func TestSummarize_Empty(t *testing.T) {
	d := Summarize(nil)
	assert.Equal(t, 0, d.Metrics.TotalCustomers)
	assert.Equal(t, 0.0, d.Metrics.ChurnRate)
	assert.Equal(t, 0.0, d.Metrics.AvgRevenuePerCustomer)
	assert.Empty(t, d.Distributions.SubscriptionTypes)
}

func TestDashboardAndListCustomers(t *testing.T) {
	customers := []model.CustomerRecord{*model.NewCustomerRecord(1, true), *model.NewCustomerRecord(2, false)}
	source := new(customerSourceMock)
	source.On("ExtractCustomerData", mock.Anything, (*time.Time)(nil), (*time.Time)(nil)).Return(customers, nil)

	svc := newTestService(t, new(etlRunnerMock), source, "")

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Metrics.TotalCustomers)
	assert.Equal(t, 1, d.Metrics.ChurnedCustomers)
	assert.NotEmpty(t, d.Timestamp)

	list, err := svc.ListCustomers(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Count)
}

func TestDashboard_PropagatesError(t *testing.T) {
	boom := errors.New("relation \"customers\" does not exist")
	source := new(customerSourceMock)
	source.On("ExtractCustomerData", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	svc := newTestService(t, new(etlRunnerMock), source, "")
	_, err := svc.Dashboard(context.Background())
	assert.ErrorIs(t, err, boom)
}
