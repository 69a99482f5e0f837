package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/risk-engine/pkg/resilience"
)

// Lower-cased fragments of errors worth another attempt: network faults and
// the server's LOADING/TRYAGAIN/BUSY replies.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"eof",
	"loading",
	"tryagain",
	"busy",
	"pool timeout",
}

// RetryableOperation runs op up to three times with short backoff, retrying
// only transient Redis failures.
func RetryableOperation[T any](ctx context.Context, op func(context.Context) (T, error), operationName string) (T, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = time.Second
	cfg.RetryableChecker = isRedisRetryable

	result, err := resilience.RetryWithName(ctx, cfg, func(ctx context.Context) (interface{}, error) {
		return op(ctx)
	}, operationName)
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func isRedisRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
