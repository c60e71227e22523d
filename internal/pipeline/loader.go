package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/features"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// Loader writes the daily feature-store snapshot.
type Loader struct {
	repo storage.FeatureStoreRepo
}

// NewLoader creates a loader over repo.
func NewLoader(repo storage.FeatureStoreRepo) *Loader {
	return &Loader{repo: repo}
}

// LoadFeatures replaces the snapshot for the day of now with the projection
// of table and returns the number of rows written. A rerun on the same day
// leaves exactly the rows of the last run.
func (l *Loader) LoadFeatures(ctx context.Context, table *features.Table, now time.Time) (int, error) {
	log := logger.FromContext(ctx)
	log.Info("Loading features to feature store...")

	date := utils.StartOfDay(now)
	rows := SnapshotRows(table, date)

	startTime := time.Now()
	n, err := l.repo.ReplaceFeatureSnapshot(ctx, date, rows)
	observer.ObserveETLStage(StageLoad, n, time.Since(startTime), err)
	if err != nil {
		return 0, fmt.Errorf("load features for %s: %w", date.Format(utils.DateLayout), err)
	}

	log.Info(fmt.Sprintf("Loaded %d feature records", n), zap.Int("rows", n), zap.String("feature_date", date.Format(utils.DateLayout)))
	return n, nil
}

// SnapshotRows projects the feature table onto the feature-store columns.
// Payment delay and churn risk are not derived yet and are stored as 0.
func SnapshotRows(table *features.Table, date time.Time) []model.FeatureSnapshot {
	if table == nil {
		return nil
	}
	get := func(i int, col string) float64 {
		v, ok := table.Value(i, col)
		if !ok || math.IsNaN(v) {
			return 0
		}
		return v
	}

	rows := make([]model.FeatureSnapshot, table.Len())
	for i := range rows {
		rows[i] = model.FeatureSnapshot{
			CustomerID:           table.Identity(i).CustomerID,
			FeatureDate:          date,
			TenureDays:           int(get(i, features.ColTenureDays)),
			AvgMonthlyUsage:      get(i, features.ColDataUsageMean),
			SupportTicketRate:    get(i, features.ColSupportTicketRate),
			PaymentDelayDays:     0,
			FeatureAdoptionScore: get(i, features.ColFeaturesUsedMean) / 10,
			EngagementScore:      get(i, features.ColEngagementScore),
			ChurnRiskScore:       0,
			LifetimeValue:        get(i, features.ColTotalCharges),
		}
	}
	return rows
}
