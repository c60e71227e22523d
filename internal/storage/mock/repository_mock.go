package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
)

// --- ExtractRepo Mock ---

// ExtractRepoMock mocks the CustomerRepo and UsageRepo interfaces
type ExtractRepoMock struct {
	mock.Mock
}

// ExtractCustomers mocks the ExtractCustomers method
func (m *ExtractRepoMock) ExtractCustomers(ctx context.Context, filter storage.CustomerFilter) ([]model.CustomerRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CustomerRecord), args.Error(1)
}

// ExtractUsage mocks the ExtractUsage method
func (m *ExtractRepoMock) ExtractUsage(ctx context.Context, customerIDs []int64) ([]model.UsageMetric, error) {
	args := m.Called(ctx, customerIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UsageMetric), args.Error(1)
}

// --- FeatureStoreRepo Mock ---

// FeatureStoreRepoMock mocks the FeatureStoreRepo interface
type FeatureStoreRepoMock struct {
	mock.Mock
}

// ReplaceFeatureSnapshot mocks the ReplaceFeatureSnapshot method
func (m *FeatureStoreRepoMock) ReplaceFeatureSnapshot(ctx context.Context, date time.Time, rows []model.FeatureSnapshot) (int, error) {
	args := m.Called(ctx, date, rows)
	if fn, ok := args.Get(0).(func(context.Context, time.Time, []model.FeatureSnapshot) int); ok {
		return fn(ctx, date, rows), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

// CountFeatureSnapshot mocks the CountFeatureSnapshot method
func (m *FeatureStoreRepoMock) CountFeatureSnapshot(ctx context.Context, date time.Time) (int64, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(int64), args.Error(1)
}

// --- ModelRunRepo Mock ---

// ModelRunRepoMock mocks the ModelRunRepo interface
type ModelRunRepoMock struct {
	mock.Mock
}

// SaveModelRun mocks the SaveModelRun method
func (m *ModelRunRepoMock) SaveModelRun(ctx context.Context, run model.ModelRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// Compile-time checks
var (
	_ storage.ExtractRepo      = (*ExtractRepoMock)(nil)
	_ storage.FeatureStoreRepo = (*FeatureStoreRepoMock)(nil)
	_ storage.ModelRunRepo     = (*ModelRunRepoMock)(nil)
)
