package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_ReturnsEmbeddedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")

	assert.Contains(t, buf.String(), "hello")
}

func TestFromContext_MissingLoggerDiscards(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info("goes nowhere")
}

func TestWith_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, logger := With(ctx, "step", "stage")
	logger.Info("first")
	FromContext(ctx).Info("second")

	out := buf.String()
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte("step=stage")))
}
