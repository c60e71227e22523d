package model

import (
	"time"

	"gorm.io/datatypes"
)

// ModelRun is one training run as recorded by the database tracker.
type ModelRun struct {
	RunID             string         `gorm:"column:run_id;primaryKey" json:"run_id"`
	Model             string         `gorm:"column:model;index;not null" json:"model"` // churn | clv
	ModelType         string         `gorm:"column:model_type;not null" json:"model_type"`
	StartedAt         time.Time      `gorm:"column:started_at;index" json:"started_at"`
	DurationMs        int64          `gorm:"column:duration_ms" json:"duration_ms"`
	Rows              int            `gorm:"column:rows" json:"rows"`
	Params            datatypes.JSON `gorm:"column:params;type:jsonb" json:"params"`
	Metrics           datatypes.JSON `gorm:"column:metrics;type:jsonb" json:"metrics"`
	FeatureImportance datatypes.JSON `gorm:"column:feature_importance;type:jsonb" json:"feature_importance"`
	CreatedAt         time.Time      `gorm:"column:created_at" json:"created_at"` // Automatically set by GORM
}

// TableName specifies the table name for the ModelRun model.
func (ModelRun) TableName() string {
	return "model_runs"
}
