package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Publisher publishes a message to a subject with optional headers.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// ClientInterface defines the interface for the JetStream client
// This allows for easy mocking in tests
type ClientInterface interface {
	Publisher

	// SetupStream ensures the stream exists with the given configuration
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// Close drains and closes the NATS connection
	Close()
}
