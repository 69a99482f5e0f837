package async_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/richxcame/risk-engine/pkg/async"
	"github.com/richxcame/risk-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestDetach_KeepsValuesDropsCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(logger.ContextWithCorrelationID(context.Background(), "corr-456"))
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	parent = trace.ContextWithSpanContext(parent, sc)
	cancel()

	detached := async.Detach(parent)
	assert.NoError(t, detached.Err())
	assert.Equal(t, "corr-456", logger.CorrelationIDFromContext(detached))
	assert.Equal(t, sc.TraceID(), trace.SpanContextFromContext(detached).TraceID())
}

func TestDetach_EmptyContext(t *testing.T) {
	detached := async.Detach(context.Background())
	assert.Empty(t, logger.CorrelationIDFromContext(detached))
	assert.False(t, trace.SpanContextFromContext(detached).IsValid())
}

func TestGoWithTimeout_OutlivesCaller(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var sawErr error
	async.GoWithTimeout(parent, "record", time.Second, func(ctx context.Context) {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		sawErr = ctx.Err()
	})
	cancel()

	wg.Wait()
	assert.NoError(t, sawErr)
}

func TestGoWithTimeout_TimesOut(t *testing.T) {
	var timedOut bool
	var wg sync.WaitGroup
	wg.Add(1)

	async.GoWithTimeout(context.Background(), "timeout-task", 50*time.Millisecond, func(ctx context.Context) {
		defer wg.Done()
		select {
		case <-ctx.Done():
			timedOut = true
		case <-time.After(time.Second):
		}
	})

	wg.Wait()
	assert.True(t, timedOut)
}

func TestGoWithTimeout_RecoversPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		async.GoWithTimeout(context.Background(), "panic-task", 50*time.Millisecond, func(ctx context.Context) {
			panic("boom")
		})
		time.Sleep(80 * time.Millisecond)
	})
}
