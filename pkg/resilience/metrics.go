package resilience

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

const metricsNamespace = "risk_engine"

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Breaker state per signal source: 0 closed, 0.5 half-open, 1 open.",
	}, []string{"breaker"})

	breakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "calls_total",
		Help:      "Calls routed through a breaker by outcome (success, failure, rejected).",
	}, []string{"breaker", "outcome"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Breaker state transitions.",
	}, []string{"breaker", "from", "to"})

	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Individual attempts made by retried operations.",
	}, []string{"operation", "result"})

	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "operation_duration_seconds",
		Help:      "Wall time of a retried operation including backoff.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation", "result"})

	retryAttemptsPerOp = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "attempts_per_operation",
		Help:      "Attempts used before the operation settled.",
		Buckets:   []float64{1, 2, 3, 4, 5, 10},
	}, []string{"operation", "result"})

	retryBackoff = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "backoff_seconds",
		Help:      "Backoff delays slept between attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"operation"})

	anonymousBreakers uint64
)

// breakerName keeps unnamed breakers from sharing a metric series.
func breakerName(name string) string {
	if name != "" {
		return name
	}
	n := atomic.AddUint64(&anonymousBreakers, 1)
	return "breaker-" + strconv.FormatUint(n, 10)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	}
	return -1
}

func observeTransition(name string, from, to gobreaker.State) {
	breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	breakerState.WithLabelValues(name).Set(stateValue(to))
}

func observeCall(name, outcome string) {
	breakerCalls.WithLabelValues(name, outcome).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func observeAttempt(operation string, ok bool) {
	retryAttempts.WithLabelValues(operation, resultLabel(ok)).Inc()
}

func observeRetry(operation string, seconds float64, attempts int, ok bool) {
	result := resultLabel(ok)
	retryDuration.WithLabelValues(operation, result).Observe(seconds)
	retryAttemptsPerOp.WithLabelValues(operation, result).Observe(float64(attempts))
}

func observeBackoff(operation string, seconds float64) {
	retryBackoff.WithLabelValues(operation).Observe(seconds)
}
