package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// InsertCustomers inserts customers in batches and fills in their generated ids.
func (r *PostgresRepo) InsertCustomers(ctx context.Context, customers []model.Customer) error {
	return insertBatches(ctx, r, "customer", customers)
}

// InsertChurnEvents inserts churn events in batches.
func (r *PostgresRepo) InsertChurnEvents(ctx context.Context, events []model.ChurnEvent) error {
	return insertBatches(ctx, r, "churn_event", events)
}

// InsertUsage inserts usage rows in batches.
func (r *PostgresRepo) InsertUsage(ctx context.Context, usage []model.UsageMetric) error {
	return insertBatches(ctx, r, "usage", usage)
}

// insertBatches writes rows with CreateInBatches, retrying transient failures.
func insertBatches[T any](ctx context.Context, r *PostgresRepo, entity string, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	operation := func() error {
		if err := r.db.WithContext(ctx).CreateInBatches(&rows, r.batchSize).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	policy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, policy, "Insert "+entity, operation)
	observer.ObserveDbOperationDuration("insert", entity, time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to insert rows",
			zap.String("entity", entity),
			zap.Int("rows", len(rows)),
			zap.Error(err))
		return err
	}
	observer.AddSeededRows(entity, len(rows))
	return nil
}
