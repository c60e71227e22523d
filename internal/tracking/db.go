package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/model"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/storage"
)

// DBTracker writes runs to the model_runs table.
type DBTracker struct {
	repo storage.ModelRunRepo
}

// NewDBTracker creates a tracker over repo.
func NewDBTracker(repo storage.ModelRunRepo) *DBTracker {
	return &DBTracker{repo: repo}
}

// LogRun implements Tracker.
func (t *DBTracker) LogRun(ctx context.Context, run Run) error {
	row, err := toModelRun(run)
	if err != nil {
		return err
	}
	return t.repo.SaveModelRun(ctx, row)
}

func toModelRun(run Run) (model.ModelRun, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return model.ModelRun{}, fmt.Errorf("marshal params: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return model.ModelRun{}, fmt.Errorf("marshal metrics: %w", err)
	}
	importance, err := json.Marshal(run.FeatureImportance)
	if err != nil {
		return model.ModelRun{}, fmt.Errorf("marshal feature importance: %w", err)
	}
	return model.ModelRun{
		RunID:             run.RunID,
		Model:             run.Model,
		ModelType:         run.ModelType,
		StartedAt:         run.StartedAt,
		DurationMs:        run.Duration.Milliseconds(),
		Rows:              run.Rows,
		Params:            datatypes.JSON(params),
		Metrics:           datatypes.JSON(metrics),
		FeatureImportance: datatypes.JSON(importance),
	}, nil
}
