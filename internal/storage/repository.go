package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
)

// CustomerFilter narrows the customer extract. The signup range is applied
// only when both bounds are set; both bounds are inclusive.
type CustomerFilter struct {
	SignupFrom *time.Time
	SignupTo   *time.Time
	IDs        []int64
}

// CustomerRepo reads customers joined with their churn status
type CustomerRepo interface {
	ExtractCustomers(ctx context.Context, filter CustomerFilter) ([]model.CustomerRecord, error)
}

// UsageRepo reads usage counters
type UsageRepo interface {
	// ExtractUsage returns usage ordered by (customer_id, metric_date). An empty
	// id list means every customer.
	ExtractUsage(ctx context.Context, customerIDs []int64) ([]model.UsageMetric, error)
}

// FeatureStoreRepo writes dated feature snapshots
type FeatureStoreRepo interface {
	// ReplaceFeatureSnapshot deletes the rows for date and inserts rows in one
	// transaction, returning the number of inserted rows.
	ReplaceFeatureSnapshot(ctx context.Context, date time.Time, rows []model.FeatureSnapshot) (int, error)
	CountFeatureSnapshot(ctx context.Context, date time.Time) (int64, error)
}

// ModelRunRepo persists training runs
type ModelRunRepo interface {
	SaveModelRun(ctx context.Context, run model.ModelRun) error
}

// SeedRepo loads synthetic source data
type SeedRepo interface {
	InsertCustomers(ctx context.Context, customers []model.Customer) error
	InsertChurnEvents(ctx context.Context, events []model.ChurnEvent) error
	InsertUsage(ctx context.Context, usage []model.UsageMetric) error
}

// ExtractRepo is what the ETL extractor needs.
type ExtractRepo interface {
	CustomerRepo
	UsageRepo
}

// Compile-time checks
var (
	_ ExtractRepo      = (*PostgresRepo)(nil)
	_ FeatureStoreRepo = (*PostgresRepo)(nil)
	_ ModelRunRepo     = (*PostgresRepo)(nil)
	_ SeedRepo         = (*PostgresRepo)(nil)
)
