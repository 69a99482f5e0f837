package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/richxcame/risk-engine/pkg/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Detach returns a background context that keeps the correlation ID and the
// active span of ctx but none of its deadline or cancellation. Spans started
// from it continue the request's trace.
func Detach(ctx context.Context) context.Context {
	out := context.Background()
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		out = logger.ContextWithCorrelationID(out, cid)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = trace.ContextWithSpanContext(out, sc)
	}
	return out
}

// GoWithTimeout runs fn on a detached context bounded by timeout. The caller
// never waits; panics are logged and swallowed.
//
//	async.GoWithTimeout(ctx, "record-assessment", 5*time.Second, func(ctx context.Context) {
//	    recorder.persist(ctx, record)
//	})
func GoWithTimeout(ctx context.Context, taskName string, timeout time.Duration, fn func(ctx context.Context)) {
	taskCtx, cancel := context.WithTimeout(Detach(ctx), timeout)
	started := time.Now()

	go func() {
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer logPanic(taskCtx, taskName)
			fn(taskCtx)
		}()

		select {
		case <-done:
			logger.DebugContext(taskCtx, "async task completed",
				zap.String("task", taskName),
				zap.Duration("duration", time.Since(started)),
			)
		case <-taskCtx.Done():
			logger.WarnContext(taskCtx, "async task timed out",
				zap.String("task", taskName),
				zap.Duration("timeout", timeout),
			)
		}
	}()
}

func logPanic(ctx context.Context, taskName string) {
	if r := recover(); r != nil {
		logger.ErrorContext(ctx, "async task panicked",
			zap.String("task", taskName),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
