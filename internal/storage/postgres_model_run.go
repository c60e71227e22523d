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

// SaveModelRun inserts a training run record, retrying transient failures.
func (r *PostgresRepo) SaveModelRun(ctx context.Context, run model.ModelRun) error {
	operation := func() error {
		if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
			return checkConstraintViolation(err)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveModelRun Commit", operation)
	observer.ObserveDbOperationDuration("save", "model_run", time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save model run after retries",
			zap.String("run_id", run.RunID),
			zap.String("model", run.Model),
			zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	logger.FromContext(ctx).Info("Saved model run", zap.String("run_id", run.RunID), zap.String("model_type", run.ModelType))
	return nil
}
