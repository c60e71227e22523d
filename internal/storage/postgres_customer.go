package storage

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// The lateral join keeps one row per customer even if several churn events
// were recorded; the latest one wins.
const customerExtractQuery = `SELECT c.customer_id, c.customer_code, c.signup_date, c.age, c.gender, c.location, ` +
	`c.subscription_type, c.monthly_charges, c.total_charges, c.contract_length, c.payment_method, c.paperless_billing, ` +
	`(ch.customer_id IS NOT NULL) AS churned, ch.churn_date, ch.churn_reason ` +
	`FROM customers c ` +
	`LEFT JOIN LATERAL (SELECT e.customer_id, e.churn_date, e.churn_reason FROM churn_events e ` +
	`WHERE e.customer_id = c.customer_id ORDER BY e.churn_date DESC LIMIT 1) ch ON TRUE`

// ExtractCustomers returns every customer matching filter with its churn status.
// Errors are returned as-is (mapped to apperrors) without retrying.
func (r *PostgresRepo) ExtractCustomers(ctx context.Context, filter CustomerFilter) ([]model.CustomerRecord, error) {
	query := customerExtractQuery
	var (
		clauses []string
		args    []interface{}
	)
	if filter.SignupFrom != nil && filter.SignupTo != nil {
		clauses = append(clauses, "c.signup_date BETWEEN ? AND ?")
		args = append(args, utils.StartOfDay(*filter.SignupFrom), utils.StartOfDay(*filter.SignupTo))
	}
	if len(filter.IDs) > 0 {
		clauses = append(clauses, "c.customer_id IN ?")
		args = append(args, filter.IDs)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY c.customer_id"

	var records []model.CustomerRecord
	startTime := utils.Now()
	err := r.db.WithContext(ctx).Raw(query, args...).Scan(&records).Error
	observer.ObserveDbOperationDuration("extract", "customer", time.Since(startTime), err)
	if err != nil {
		return nil, checkConstraintViolation(err)
	}

	logger.FromContext(ctx).Debug("Extracted customer rows", zap.Int("rows", len(records)))
	return records, nil
}
