package resilience

import "context"

// FallbackFunc answers in place of the operation while the breaker rejects calls.
type FallbackFunc func(ctx context.Context, err error) (interface{}, error)

// StaticFallback answers with a fixed value while the breaker is open.
func StaticFallback(value interface{}) FallbackFunc {
	return func(context.Context, error) (interface{}, error) {
		return value, nil
	}
}
