// Package pipeline runs the customer feature ETL: extract customers and
// usage from the relational store, derive the feature table and write the
// daily feature-store snapshot.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// Stage names used in logs and metrics.
const (
	StageExtractCustomers = "extract_customers"
	StageExtractUsage     = "extract_usage"
	StageTransform        = "transform"
	StageLoad             = "load"
)

// Extractor reads raw customer and usage records. Storage errors are returned
// unchanged and never retried.
type Extractor struct {
	repo storage.ExtractRepo
}

// NewExtractor creates an extractor over repo.
func NewExtractor(repo storage.ExtractRepo) *Extractor {
	return &Extractor{repo: repo}
}

// ExtractCustomerData returns every customer with its churn status. The
// signup range filter applies only when both start and end are given.
func (e *Extractor) ExtractCustomerData(ctx context.Context, start, end *time.Time) ([]model.CustomerRecord, error) {
	return e.extractCustomers(ctx, storage.CustomerFilter{SignupFrom: start, SignupTo: end})
}

// ExtractCustomersByID returns the listed customers only.
func (e *Extractor) ExtractCustomersByID(ctx context.Context, ids []int64) ([]model.CustomerRecord, error) {
	return e.extractCustomers(ctx, storage.CustomerFilter{IDs: ids})
}

func (e *Extractor) extractCustomers(ctx context.Context, filter storage.CustomerFilter) ([]model.CustomerRecord, error) {
	log := logger.FromContext(ctx)
	log.Info("Extracting customer data...")

	startTime := time.Now()
	customers, err := e.repo.ExtractCustomers(ctx, filter)
	observer.ObserveETLStage(StageExtractCustomers, len(customers), time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("extract customers: %w", err)
	}

	log.Info(fmt.Sprintf("Extracted %d customer records", len(customers)), zap.Int("rows", len(customers)))
	return customers, nil
}

// ExtractUsageData returns usage for the given customers, or for everyone
// when ids is empty.
func (e *Extractor) ExtractUsageData(ctx context.Context, ids []int64) ([]model.UsageMetric, error) {
	log := logger.FromContext(ctx)
	log.Info("Extracting usage data...")

	startTime := time.Now()
	usage, err := e.repo.ExtractUsage(ctx, ids)
	observer.ObserveETLStage(StageExtractUsage, len(usage), time.Since(startTime), err)
	if err != nil {
		return nil, fmt.Errorf("extract usage: %w", err)
	}

	log.Info(fmt.Sprintf("Extracted %d usage records", len(usage)), zap.Int("rows", len(usage)))
	return usage, nil
}
