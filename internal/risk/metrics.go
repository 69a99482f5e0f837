package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_assessments_total",
		Help: "Total number of risk assessments by level, action and type",
	}, []string{"level", "action", "type"})

	assessmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "risk_assessment_duration_seconds",
		Help:    "Time taken to produce a risk decision",
		Buckets: []float64{.001, .0025, .005, .01, .02, .03, .05, .1, .25},
	})

	failsafeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_failsafe_total",
		Help: "Total number of assessments answered with the fail-safe result",
	}, []string{"reason"})

	signalFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_signal_fetch_failures_total",
		Help: "Total number of failed signal reads by source",
	}, []string{"source"})

	recordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_assessment_record_failures_total",
		Help: "Total number of assessment records that could not be persisted or published",
	}, []string{"stage"})
)

// metricType keeps label cardinality bounded for caller-supplied types.
func metricType(t AssessmentType) string {
	if t.Known() {
		return string(t)
	}
	return "UNKNOWN"
}
