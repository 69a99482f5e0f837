package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/richxcame/risk-engine/pkg/logger"
	"go.uber.org/zap"
)

// RetryConfig defines the configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts counts the initial attempt
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// EnableJitter spreads retries with full jitter over [0, backoff)
	EnableJitter bool
	// RetryableChecker decides which errors are transient. When nil, every
	// error except cancellation and an open breaker is retried.
	RetryableChecker func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// RecordRetryConfig suits background persistence: short backoff, bounded by the caller's deadline.
func RecordRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// Retry executes the given operation with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, operation Operation) (interface{}, error) {
	return RetryWithName(ctx, config, operation, "unknown")
}

// RetryWithName runs operation until it succeeds, returns a permanent error,
// exhausts MaxAttempts or ctx ends. Metrics are labelled with operationName.
func RetryWithName(ctx context.Context, config RetryConfig, operation Operation, operationName string) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	start := time.Now()
	finish := func(attempts int, ok bool) {
		observeRetry(operationName, time.Since(start).Seconds(), attempts, ok)
	}
	log := logger.Get().With(zap.String("operation", operationName))

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			finish(attempt, false)
			return nil, err
		}

		result, err := operation(ctx)
		observeAttempt(operationName, err == nil)
		if err == nil {
			finish(attempt, true)
			if attempt > 1 {
				log.Info("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		if !shouldRetry(err, config) {
			log.Debug("error is not retryable", zap.Error(err), zap.Int("attempt", attempt))
			finish(attempt, false)
			return nil, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		backoff := calculateBackoff(attempt, config)
		observeBackoff(operationName, backoff.Seconds())
		log.Debug("retrying operation after backoff",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			finish(attempt, false)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	log.Warn("operation failed after all retry attempts",
		zap.Error(lastErr),
		zap.Int("attempts", config.MaxAttempts),
	)
	finish(config.MaxAttempts, false)
	return nil, lastErr
}

// calculateBackoff returns initial * multiplier^(attempt-1), capped at MaxBackoff
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(config.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if config.EnableJitter && duration > 0 {
		duration = time.Duration(rand.Int63n(int64(duration)))
	}
	return duration
}

func shouldRetry(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}
	if config.RetryableChecker != nil {
		return config.RetryableChecker(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, ErrCircuitOpen)
}
