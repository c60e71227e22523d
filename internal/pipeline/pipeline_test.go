package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	jsmock "gitlab.com/timkado/api/churn-analytics-platform/internal/jetstream/mock"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
	storagemock "gitlab.com/timkado/api/churn-analytics-platform/internal/storage/mock"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

var fixedNow = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func sampleCustomers() []model.CustomerRecord {
	total := 1200.0
	return []model.CustomerRecord{
		{Customer: model.Customer{CustomerID: 1, CustomerCode: "CUST-1", SignupDate: fixedNow.AddDate(0, 0, -300), Gender: "F",
			SubscriptionType: "Premium", ContractLength: "Annual", PaymentMethod: "Credit Card", TotalCharges: &total}},
		{Customer: model.Customer{CustomerID: 2, CustomerCode: "CUST-2", SignupDate: fixedNow.AddDate(0, 0, -30), Gender: "M",
			SubscriptionType: "Basic", ContractLength: "Monthly", PaymentMethod: "Mailed Check"}, Churned: true},
	}
}

func sampleUsage() []model.UsageMetric {
	return []model.UsageMetric{
		{CustomerID: 1, MetricDate: fixedNow.AddDate(0, -2, 0), LoginCount: 10, SessionDurationMinutes: 30, FeaturesUsed: 5, SupportTickets: 1, DataUsageGB: 4},
		{CustomerID: 1, MetricDate: fixedNow.AddDate(0, -1, 0), LoginCount: 10, SessionDurationMinutes: 30, FeaturesUsed: 5, SupportTickets: 2, DataUsageGB: 6},
	}
}

func TestRunETLPipeline_ExtractTransformLoad(t *testing.T) {
	extract := new(storagemock.ExtractRepoMock)
	store := new(storagemock.FeatureStoreRepoMock)

	extract.On("ExtractCustomers", mock.Anything, storage.CustomerFilter{}).Return(sampleCustomers(), nil).Once()
	extract.On("ExtractUsage", mock.Anything, []int64(nil)).Return(sampleUsage(), nil).Once()

	var written []model.FeatureSnapshot
	store.On("ReplaceFeatureSnapshot", mock.Anything, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), mock.Anything).
		Run(func(args mock.Arguments) { written = args.Get(2).([]model.FeatureSnapshot) }).
		Return(2, nil).Once()

	p := New(extract, store, WithClock(fixedClock))
	result, err := p.RunETLPipeline(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.Customers)
	assert.Equal(t, 2, result.UsageRows)
	assert.Equal(t, 2, result.RowsLoaded)
	require.NotNil(t, result.Features)
	assert.Equal(t, 2, result.Features.Len())

	require.Len(t, written, 2)
	assert.Equal(t, int64(1), written[0].CustomerID)
	assert.InDelta(t, 4.7, written[0].EngagementScore, 1e-9)
	assert.InDelta(t, 0.5, written[0].FeatureAdoptionScore, 1e-9)
	assert.InDelta(t, 5.0, written[0].AvgMonthlyUsage, 1e-9)
	assert.InDelta(t, 1200.0, written[0].LifetimeValue, 1e-9)
	assert.Equal(t, 300, written[0].TenureDays)

	assert.Equal(t, int64(2), written[1].CustomerID)
	assert.Equal(t, 0.0, written[1].EngagementScore, "no usage rows means zero aggregates")
	assert.Equal(t, 0.0, written[1].LifetimeValue)

	extract.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRunETLPipeline_KeepsRunIDFromContext(t *testing.T) {
	extract := new(storagemock.ExtractRepoMock)
	store := new(storagemock.FeatureStoreRepoMock)
	extract.On("ExtractCustomers", mock.Anything, mock.Anything).Return([]model.CustomerRecord{}, nil)
	extract.On("ExtractUsage", mock.Anything, mock.Anything).Return([]model.UsageMetric{}, nil)
	store.On("ReplaceFeatureSnapshot", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)

	ctx := logger.WithRunID(context.Background(), "run-42")
	result, err := New(extract, store, WithClock(fixedClock)).RunETLPipeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-42", result.RunID)
	assert.Equal(t, 0, result.RowsLoaded)
}

func TestRunETLPipeline_StorageErrorsPropagate(t *testing.T) {
	dbErr := errors.Join(apperrors.ErrDatabase, errors.New("connection reset"))

	t.Run("customers", func(t *testing.T) {
		extract := new(storagemock.ExtractRepoMock)
		store := new(storagemock.FeatureStoreRepoMock)
		extract.On("ExtractCustomers", mock.Anything, mock.Anything).Return(nil, dbErr).Once()

		_, err := New(extract, store).RunETLPipeline(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsDatabaseError(err))
		extract.AssertNotCalled(t, "ExtractUsage", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "ReplaceFeatureSnapshot", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("load", func(t *testing.T) {
		extract := new(storagemock.ExtractRepoMock)
		store := new(storagemock.FeatureStoreRepoMock)
		extract.On("ExtractCustomers", mock.Anything, mock.Anything).Return(sampleCustomers(), nil)
		extract.On("ExtractUsage", mock.Anything, mock.Anything).Return(sampleUsage(), nil)
		store.On("ReplaceFeatureSnapshot", mock.Anything, mock.Anything, mock.Anything).Return(0, dbErr).Once()

		_, err := New(extract, store, WithClock(fixedClock)).RunETLPipeline(context.Background())
		require.Error(t, err)
		assert.True(t, apperrors.IsDatabaseError(err))
		assert.Contains(t, err.Error(), "2024-06-01")
	})
}

func TestRunETLPipeline_PublishesLoadedEvent(t *testing.T) {
	extract := new(storagemock.ExtractRepoMock)
	store := new(storagemock.FeatureStoreRepoMock)
	js := new(jsmock.ClientMock)

	extract.On("ExtractCustomers", mock.Anything, mock.Anything).Return(sampleCustomers(), nil)
	extract.On("ExtractUsage", mock.Anything, mock.Anything).Return(sampleUsage(), nil)
	store.On("ReplaceFeatureSnapshot", mock.Anything, mock.Anything, mock.Anything).Return(2, nil)

	var event FeaturesLoadedEvent
	js.On("Publish", mock.Anything, "v1.analytics.features.loaded", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &event))
		}).
		Return(nil).Once()

	ctx := logger.WithRunID(context.Background(), "run-7")
	_, err := New(extract, store, WithClock(fixedClock), WithEvents(js, "v1.analytics.features.loaded")).RunETLPipeline(ctx)
	require.NoError(t, err)

	assert.Equal(t, "run-7", event.RunID)
	assert.Equal(t, "2024-06-01", event.FeatureDate)
	assert.Equal(t, 2, event.Rows)
	assert.Greater(t, event.Columns, 0)
	js.AssertExpectations(t)
}

func TestRunETLPipeline_PublishFailureDoesNotFailRun(t *testing.T) {
	extract := new(storagemock.ExtractRepoMock)
	store := new(storagemock.FeatureStoreRepoMock)
	js := new(jsmock.ClientMock)

	extract.On("ExtractCustomers", mock.Anything, mock.Anything).Return(sampleCustomers(), nil)
	extract.On("ExtractUsage", mock.Anything, mock.Anything).Return(sampleUsage(), nil)
	store.On("ReplaceFeatureSnapshot", mock.Anything, mock.Anything, mock.Anything).Return(2, nil)
	js.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NewRetryable(apperrors.ErrNATS, "publish to %s", "events"))

	core, logs := observer.New(zap.WarnLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))

	result, err := New(extract, store, WithClock(fixedClock), WithEvents(js, "events")).RunETLPipeline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsLoaded)

	entries := logs.FilterMessage("Failed to publish features loaded event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["retryable"])
	assert.Equal(t, result.RunID, entries[0].ContextMap()["run_id"])
}

func TestFeaturesForCustomers_FiltersToRequestedIDs(t *testing.T) {
	extract := new(storagemock.ExtractRepoMock)
	store := new(storagemock.FeatureStoreRepoMock)
	ids := []int64{1}

	extract.On("ExtractCustomers", mock.Anything, storage.CustomerFilter{IDs: ids}).Return(sampleCustomers(), nil).Once()
	extract.On("ExtractUsage", mock.Anything, ids).Return(sampleUsage(), nil).Once()

	table, err := New(extract, store, WithClock(fixedClock)).FeaturesForCustomers(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, int64(1), table.Identity(0).CustomerID)
	store.AssertNotCalled(t, "ReplaceFeatureSnapshot", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtractCustomerData_PassesSignupRange(t *testing.T) {
	extract := new(storagemock.ExtractRepoMock)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	extract.On("ExtractCustomers", mock.Anything, storage.CustomerFilter{SignupFrom: &from, SignupTo: &to}).
		Return(sampleCustomers()[:1], nil).Once()

	rows, err := NewExtractor(extract).ExtractCustomerData(context.Background(), &from, &to)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	extract.AssertExpectations(t)
}

func TestSnapshotRows_NilAndMissingColumns(t *testing.T) {
	assert.Nil(t, SnapshotRows(nil, fixedNow))

	table := features.NewTable([]string{features.ColTenureDays})
	require.NoError(t, table.AppendRow(features.Identity{CustomerID: 9}, []float64{12}))

	rows := SnapshotRows(table, fixedNow)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9), rows[0].CustomerID)
	assert.Equal(t, 12, rows[0].TenureDays)
	assert.Equal(t, 0.0, rows[0].EngagementScore)
	assert.Equal(t, 0.0, rows[0].LifetimeValue)
}

func TestLoadFeatures_RerunReplacesSnapshot(t *testing.T) {
	store := new(storagemock.FeatureStoreRepoMock)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	store.On("ReplaceFeatureSnapshot", mock.Anything, day, mock.Anything).
		Return(func(_ context.Context, _ time.Time, rows []model.FeatureSnapshot) int { return len(rows) }, nil)
	store.On("CountFeatureSnapshot", mock.Anything, day).Return(int64(1), nil)

	first := features.NewTable([]string{features.ColTenureDays})
	require.NoError(t, first.AppendRow(features.Identity{CustomerID: 1}, []float64{10}))
	require.NoError(t, first.AppendRow(features.Identity{CustomerID: 2}, []float64{20}))
	second := first.FilterCustomers([]int64{2})

	loader := NewLoader(store)
	n, err := loader.LoadFeatures(context.Background(), first, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = loader.LoadFeatures(context.Background(), second, fixedNow.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := store.CountFeatureSnapshot(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	store.AssertNumberOfCalls(t, "ReplaceFeatureSnapshot", 2)
}
