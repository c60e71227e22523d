package jetstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/churn-analytics-platform/internal/apperrors"
	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// Client wraps NATS JetStream functionality
type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new NATS JetStream client
func NewClient(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("churn-analytics-platform"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{
		nc: nc,
		js: js,
	}, nil
}

// StreamConfig builds the file-backed stream that stores analytics events.
func StreamConfig(name string, subjects []string, maxAge time.Duration) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
		Discard:   nats.DiscardOld,
	}
}

// streamNeedsUpdate reports whether the server-side stream differs from the
// settings StreamConfig controls. Subject order is ignored.
func streamNeedsUpdate(current, desired nats.StreamConfig) bool {
	if current.Name != desired.Name ||
		current.Retention != desired.Retention ||
		current.Storage != desired.Storage ||
		current.MaxAge != desired.MaxAge ||
		current.Discard != desired.Discard {
		return true
	}
	if len(current.Subjects) != len(desired.Subjects) {
		return true
	}
	subjects := make(map[string]struct{}, len(current.Subjects))
	for _, s := range current.Subjects {
		subjects[s] = struct{}{}
	}
	for _, s := range desired.Subjects {
		if _, ok := subjects[s]; !ok {
			return true
		}
	}
	return false
}

// SetupStream ensures the stream exists with the given configuration
func (c *Client) SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error {
	log := logger.FromContext(ctx).With(zap.String("stream", streamConfig.Name))

	stream, err := c.js.StreamInfo(streamConfig.Name, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamConfig.Name, err)
	}

	if stream == nil {
		if _, err = c.js.AddStream(streamConfig, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to add stream '%s': %w", streamConfig.Name, err)
		}
		log.Info("Created stream", zap.Any("subjects", streamConfig.Subjects))
		return nil
	}

	if !streamNeedsUpdate(stream.Config, *streamConfig) {
		log.Debug("stream no need update")
		return nil
	}
	if _, err = c.js.UpdateStream(streamConfig, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to update stream '%s': %w", streamConfig.Name, err)
	}
	log.Info("Updated stream", zap.Any("subjects", streamConfig.Subjects))
	return nil
}

// Publish publishes a message to a subject with optional headers
func (c *Client) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Add(k, v)
	}

	if _, err := c.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		if errors.Is(err, nats.ErrBadSubject) || errors.Is(err, nats.ErrMaxPayload) {
			return apperrors.NewFatal(err, "failed to publish message to %s", subject)
		}
		return apperrors.NewRetryable(err, "failed to publish message to %s", subject)
	}
	return nil
}

// Close drains the connection so in-flight publishes complete
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}
