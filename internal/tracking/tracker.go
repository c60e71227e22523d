// Package tracking records training runs: parameters, evaluation metrics and
// the most important features of every model fitted by the predictors.
package tracking

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Run is one training run.
type Run struct {
	RunID             string             `json:"run_id"`
	Model             string             `json:"model"`
	ModelType         string             `json:"model_type"`
	StartedAt         time.Time          `json:"started_at"`
	Duration          time.Duration      `json:"-"`
	DurationMs        int64              `json:"duration_ms"`
	Rows              int                `json:"rows"`
	Params            map[string]any     `json:"params"`
	Metrics           map[string]float64 `json:"metrics"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// Tracker stores runs somewhere outside the process.
type Tracker interface {
	LogRun(ctx context.Context, run Run) error
}

// Noop discards runs.
type Noop struct{}

// LogRun implements Tracker.
func (Noop) LogRun(context.Context, Run) error { return nil }

// Multi fans a run out to every tracker and joins their errors.
type Multi []Tracker

// LogRun implements Tracker. Every tracker is called even if an earlier one fails.
func (m Multi) LogRun(ctx context.Context, run Run) error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.LogRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Importance is one feature with its score.
type Importance struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// TopFeatures returns the n highest scores, ties broken by name.
func TopFeatures(importance map[string]float64, n int) []Importance {
	out := make([]Importance, 0, len(importance))
	for f, s := range importance {
		out = append(out, Importance{Feature: f, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Feature < out[j].Feature
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
