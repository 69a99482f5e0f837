package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/async"
	"github.com/richxcame/risk-engine/pkg/logger"
	"github.com/richxcame/risk-engine/pkg/resilience"
	"github.com/richxcame/risk-engine/pkg/tracing"
	"go.uber.org/zap"
)

const tracerName = "risk-engine"

// Signal source names, used for breakers, metrics and spans.
const (
	SourceTelco        = "telco"
	SourceDevice       = "device"
	SourcePrior        = "prior"
	SourceFraudHistory = "fraud_history"
)

// GatewayConfig wires the signal sources into a Gateway.
type GatewayConfig struct {
	Telco        TelcoSource
	Devices      DeviceSource
	Prior        PriorSource
	FraudHistory FraudHistorySource

	// FetchTimeout bounds every individual read.
	FetchTimeout       time.Duration
	FraudHistoryWindow time.Duration

	// Breakers is keyed by source name; a missing entry runs unprotected.
	Breakers map[string]*resilience.CircuitBreaker
}

// Gateway reads all signals concurrently. Each source fails on its own:
// an error or timeout leaves that signal empty and the rest still count.
type Gateway struct {
	cfg GatewayConfig
}

// NewGateway creates a signal gateway
func NewGateway(cfg GatewayConfig) *Gateway {
	return &Gateway{cfg: cfg}
}

// SourceFallback is what an open breaker answers for source. Fraud history
// reads as no alerts; every other source reports the open circuit.
func SourceFallback(source string) resilience.FallbackFunc {
	if source == SourceFraudHistory {
		return resilience.StaticFallback(0)
	}
	return nil
}

// Fetch issues the telco, device, prior and fraud-history reads at once and
// waits for all of them. It returns ErrSignalStoreUnavailable only when the
// telco, device and prior reads all failed.
func (g *Gateway) Fetch(ctx context.Context, userID uuid.UUID, fingerprint string, now time.Time) (Signals, error) {
	var (
		telco  *TelcoSignals
		device *DeviceFingerprintRecord
		prior  *PriorAssessment
		alerts int
	)

	errs := async.Join(ctx, "fetch-signals",
		func(ctx context.Context) (err error) {
			telco, err = fetchSignal(ctx, g, SourceTelco, func(ctx context.Context) (*TelcoSignals, error) {
				return g.cfg.Telco.GetTelcoSignal(ctx, userID)
			})
			return err
		},
		func(ctx context.Context) (err error) {
			device, err = fetchSignal(ctx, g, SourceDevice, func(ctx context.Context) (*DeviceFingerprintRecord, error) {
				return g.cfg.Devices.GetDeviceFingerprint(ctx, userID, fingerprint)
			})
			return err
		},
		func(ctx context.Context) (err error) {
			prior, err = fetchSignal(ctx, g, SourcePrior, func(ctx context.Context) (*PriorAssessment, error) {
				return g.cfg.Prior.GetLatestAssessment(ctx, userID)
			})
			return err
		},
		func(ctx context.Context) (err error) {
			if g.cfg.FraudHistory == nil {
				return nil
			}
			alerts, err = fetchSignal(ctx, g, SourceFraudHistory, func(ctx context.Context) (int, error) {
				return g.cfg.FraudHistory.CountFraudAlertsSince(ctx, userID, now.Add(-g.cfg.FraudHistoryWindow))
			})
			return err
		},
	)

	sources := []string{SourceTelco, SourceDevice, SourcePrior, SourceFraudHistory}
	s := Signals{Telco: telco, Device: device, Prior: prior, FraudAlertCount: alerts}
	for i, err := range errs {
		if err == nil {
			continue
		}
		s.Failed = append(s.Failed, sources[i])
		signalFetchFailures.WithLabelValues(sources[i]).Inc()
		logger.WarnContext(ctx, "signal fetch failed",
			zap.String("source", sources[i]),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}

	// A panicking fetch may have left a partial value behind
	if errs[0] != nil {
		s.Telco = nil
	}
	if errs[1] != nil {
		s.Device = nil
	}
	if errs[2] != nil {
		s.Prior = nil
	}
	if errs[3] != nil {
		s.FraudAlertCount = 0
	}

	if errs[0] != nil && errs[1] != nil && errs[2] != nil {
		return s, fmt.Errorf("%w: %w", ErrSignalStoreUnavailable, errors.Join(errs[0], errs[1], errs[2]))
	}
	return s, nil
}

// fetchSignal runs one read under its deadline, breaker and span.
// ErrNotFound is absence, not failure.
func fetchSignal[T any](ctx context.Context, g *Gateway, source string, read func(context.Context) (T, error)) (T, error) {
	var zero T
	var value T

	err := tracing.TraceSignalFetch(ctx, tracerName, source, func(ctx context.Context) error {
		out, err := g.cfg.Breakers[source].Execute(ctx, func(ctx context.Context) (interface{}, error) {
			v, err := withDeadline(ctx, g.cfg.FetchTimeout, read)
			if errors.Is(err, ErrNotFound) {
				return zero, nil
			}
			return v, err
		})
		if err != nil {
			return err
		}
		if v, ok := out.(T); ok {
			value = v
		}
		return nil
	})
	if err != nil {
		return zero, err
	}
	return value, nil
}

// withDeadline returns when read finishes or the deadline passes, whichever
// comes first. A read that ignores its context is abandoned, not awaited.
func withDeadline[T any](ctx context.Context, timeout time.Duration, read func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return read(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("signal read panicked: %v", r)}
			}
		}()
		v, err := read(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
