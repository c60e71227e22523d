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

const usageExtractQuery = `SELECT id, customer_id, metric_date, login_count, session_duration_minutes, ` +
	`features_used, support_tickets, data_usage_gb FROM usage_metrics`

// ExtractUsage returns usage rows ordered by customer and date, optionally
// restricted to customerIDs.
func (r *PostgresRepo) ExtractUsage(ctx context.Context, customerIDs []int64) ([]model.UsageMetric, error) {
	query := usageExtractQuery
	var args []interface{}
	if len(customerIDs) > 0 {
		query += " WHERE customer_id IN ?"
		args = append(args, customerIDs)
	}
	query += " ORDER BY customer_id, metric_date"

	var rows []model.UsageMetric
	startTime := utils.Now()
	err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	observer.ObserveDbOperationDuration("extract", "usage_metric", time.Since(startTime), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}

	logger.FromContext(ctx).Debug("Extracted usage rows",
		zap.Int("rows", len(rows)),
		zap.Int("customer_filter", len(customerIDs)))
	return rows, nil
}
