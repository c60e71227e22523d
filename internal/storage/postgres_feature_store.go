package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/observer"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/utils"
)

// ReplaceFeatureSnapshot swaps the snapshot for date inside one transaction so
// readers see either the previous rows or the new ones, never a mix.
// If the insert fails the delete is rolled back and the prior snapshot stays.
func (r *PostgresRepo) ReplaceFeatureSnapshot(ctx context.Context, date time.Time, rows []model.FeatureSnapshot) (int, error) {
	day := utils.StartOfDay(date)
	for i := range rows {
		rows[i].FeatureDate = day
	}

	var deleted int64
	startTime := utils.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(`DELETE FROM feature_store WHERE feature_date = ?`, day)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, r.batchSize).Error
	})
	observer.ObserveDbOperationDuration("replace", "feature_store", time.Since(startTime), err)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to replace feature snapshot",
			zap.String("feature_date", day.Format(utils.DateLayout)),
			zap.Int("rows", len(rows)),
			zap.Error(err))
		return 0, checkConstraintViolation(err)
	}

	logger.FromContext(ctx).Info("Replaced feature snapshot",
		zap.String("feature_date", day.Format(utils.DateLayout)),
		zap.Int64("deleted", deleted),
		zap.Int("inserted", len(rows)))
	return len(rows), nil
}

// CountFeatureSnapshot returns how many rows the snapshot for date holds.
func (r *PostgresRepo) CountFeatureSnapshot(ctx context.Context, date time.Time) (int64, error) {
	var count int64
	startTime := utils.Now()
	err := r.db.WithContext(ctx).Model(&model.FeatureSnapshot{}).
		Where("feature_date = ?", utils.StartOfDay(date)).
		Count(&count).Error
	observer.ObserveDbOperationDuration("count", "feature_store", time.Since(startTime), err)
	if err != nil {
		return 0, checkConstraintViolation(err)
	}
	return count, nil
}
