package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/richxcame/risk-engine/pkg/logger"
	"go.uber.org/zap"
)

// PanicError wraps a value recovered from a panicking Join branch.
type PanicError struct {
	Task  string
	Index int
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task %s[%d] panicked: %v", e.Task, e.Index, e.Value)
}

// Join runs fns concurrently under ctx and waits for all of them. errs[i]
// belongs to fns[i]; a panicking branch yields a *PanicError and leaves the
// others running.
//
//	errs := async.Join(ctx, "fetch-signals",
//	    func(ctx context.Context) error { telco, err = src.Telco(ctx, id); return err },
//	    func(ctx context.Context) error { device, err2 = src.Device(ctx, id); return err2 },
//	)
func Join(ctx context.Context, taskName string, fns ...func(ctx context.Context) error) []error {
	started := time.Now()
	errs := make([]error, len(fns))

	var wg sync.WaitGroup
	wg.Add(len(fns))
	for i := range fns {
		go func(i int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = &PanicError{Task: taskName, Index: i, Value: r}
					logger.ErrorContext(ctx, "joined task panicked",
						zap.String("task", taskName),
						zap.Int("index", i),
						zap.Any("panic", r),
					)
				}
			}()
			errs[i] = fns[i](ctx)
		}(i)
	}
	wg.Wait()

	logger.DebugContext(ctx, "joined tasks completed",
		zap.String("task", taskName),
		zap.Int("count", len(fns)),
		zap.Duration("duration", time.Since(started)),
	)
	return errs
}
