package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/internal/jetstream"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// BreakerConfig controls when the NATS tracker stops calling the broker.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string
	// FailureThreshold is the consecutive failures that open the breaker.
	// Default: 5
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	// Default: 30s
	Timeout time.Duration
	// MaxElapsed bounds the retries of a single publish.
	// Default: 5s
	MaxElapsed time.Duration
}

// DefaultBreakerConfig returns the tracker breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "nats-tracker",
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		MaxElapsed:       5 * time.Second,
	}
}

// NATSTracker publishes runs as JSON on a JetStream subject. Publishes are
// retried with exponential backoff and guarded by a circuit breaker.
type NATSTracker struct {
	publisher  jetstream.Publisher
	subject    string
	maxElapsed time.Duration
	cb         *gobreaker.CircuitBreaker[struct{}]
}

// NewNATSTracker creates a tracker publishing to subject.
func NewNATSTracker(publisher jetstream.Publisher, subject string, cfg BreakerConfig) *NATSTracker {
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = def.MaxElapsed
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("Tracker circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &NATSTracker{
		publisher:  publisher,
		subject:    subject,
		maxElapsed: cfg.MaxElapsed,
		cb:         gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// LogRun implements Tracker.
func (t *NATSTracker) LogRun(ctx context.Context, run Run) error {
	run.DurationMs = run.Duration.Milliseconds()
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	headers := map[string]string{
		"Nats-Msg-Id": run.RunID,
		"model":       run.Model,
		"model_type":  run.ModelType,
	}

	_, err = t.cb.Execute(func() (struct{}, error) {
		publish := func() error {
			err := t.publisher.Publish(ctx, t.subject, data, headers)
			if apperrors.IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 100 * time.Millisecond
		policy.MaxElapsedTime = t.maxElapsed
		return struct{}{}, backoff.Retry(publish, backoff.WithContext(policy, ctx))
	})
	if err != nil {
		return fmt.Errorf("%w: publish run %s: %v", apperrors.ErrNATS, run.RunID, err)
	}
	return nil
}

// State reports the breaker state for health output.
func (t *NATSTracker) State() string {
	return t.cb.State().String()
}
