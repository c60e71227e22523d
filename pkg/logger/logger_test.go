package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	require.NoError(t, Initialize("debug"))
	assert.True(t, Log.Core().Enabled(zap.DebugLevel))

	// Unknown level falls back to info
	require.NoError(t, Initialize("not-a-level"))
	assert.False(t, Log.Core().Enabled(zap.DebugLevel))
	assert.True(t, Log.Core().Enabled(zap.InfoLevel))
}

func TestFromContext_AttachesRunID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithRunID(ctx, "run-123")

	FromContext(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "run-123", entries[0].ContextMap()["run_id"])
}

func TestFromContext_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	assert.Equal(t, Log, FromContext(nil))
	assert.Equal(t, "", RunIDFromContext(nil)) //nolint:staticcheck
}

func TestFromContextOr(t *testing.T) {
	def := zap.NewNop()
	assert.Equal(t, def, FromContextOr(context.Background(), def))

	scoped := zap.NewExample()
	ctx := WithLogger(context.Background(), scoped)
	assert.Equal(t, scoped, FromContextOr(ctx, def))
}
