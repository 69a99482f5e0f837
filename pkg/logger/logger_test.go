package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextWithCorrelationID(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "test-id")
	assert.Equal(t, "test-id", CorrelationIDFromContext(ctx))
}

func TestCorrelationIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestWithContextAddsCorrelationIDField(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	ctx := ContextWithCorrelationID(context.Background(), "context-id")

	WithContext(ctx).Info("test message")

	entries := recorded.All()
	require.Len(t, entries, 1)

	correlationID, ok := entries[0].ContextMap()["correlation_id"]
	require.True(t, ok, "expected correlation_id field to be present")
	assert.Equal(t, "context-id", correlationID)
}

func TestWithContextAddsTraceFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	defer restore()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xaa},
		SpanID:     trace.SpanID{0xbb},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	InfoContext(ctx, "assessment scored")

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
	assert.NotContains(t, fields, "correlation_id")
}

func TestInitHonoursLogLevel(t *testing.T) {
	restore := Replace(nil)
	defer restore()
	t.Setenv("LOG_LEVEL", "warn")

	require.NoError(t, Init("production", "risk-engine"))
	assert.False(t, Get().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, Get().Core().Enabled(zapcore.WarnLevel))
}

func TestReplaceRestoresPreviousLogger(t *testing.T) {
	original := Get()
	restore := Replace(zap.NewNop())
	assert.NotSame(t, original, Get())
	restore()
	assert.Same(t, original, Get())
}

func TestInitDevelopment(t *testing.T) {
	restore := Replace(nil)
	defer restore()

	require.NoError(t, Init("development", "risk-service"))
	assert.NotNil(t, Get())
}
