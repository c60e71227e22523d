package predictor

import (
	"time"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/tracking"
)

const (
	defaultTestSize = 0.2
	defaultSeed     = 42
	cvFolds         = 5
	topFeatureCount = 10
)

type options struct {
	seed    int64
	workers int
	tracker tracking.Tracker
	params  Hyperparameters
	now     func() time.Time
}

// Option configures a predictor.
type Option func(*options)

// WithSeed sets the seed used for splitting and estimator randomness.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// WithWorkers bounds the goroutines used for tree fitting and cross-validation.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTracker records every training run. Tracker failures never fail Train.
func WithTracker(t tracking.Tracker) Option {
	return func(o *options) {
		if t != nil {
			o.tracker = t
		}
	}
}

// WithHyperparameters overrides the algorithm settings.
func WithHyperparameters(hp Hyperparameters) Option {
	return func(o *options) { o.params = hp }
}

func newOptions(opts []Option) options {
	o := options{
		seed:    defaultSeed,
		workers: 1,
		tracker: tracking.Noop{},
		params:  DefaultHyperparameters(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
