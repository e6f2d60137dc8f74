package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerRoundTrip(t *testing.T) {
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := ContextWithLogger(context.Background(), lg)
	assert.Same(t, lg, LoggerFromContext(ctx))

	assert.NotNil(t, LoggerFromContext(context.Background()))
	assert.Same(t, ctx, ContextWithLogger(ctx, nil))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))

	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Same(t, ctx, ContextWithRequestID(ctx, ""))
}
