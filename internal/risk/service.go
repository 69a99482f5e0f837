package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/richxcame/risk-engine/pkg/errors"
	"github.com/richxcame/risk-engine/pkg/logger"
	"github.com/richxcame/risk-engine/pkg/tracing"
	"go.uber.org/zap"
)

// Engine produces risk decisions. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	policy   PolicyConfig
	signals  SignalFetcher
	recorder Recorder
	clock    func() time.Time
}

// EngineOption customises an Engine
type EngineOption func(*Engine)

// WithClock replaces time.Now as the source of "now".
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates a new risk engine
func NewEngine(policy PolicyConfig, signals SignalFetcher, recorder Recorder, opts ...EngineOption) *Engine {
	e := &Engine{
		policy:   policy,
		signals:  signals,
		recorder: recorder,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assess scores one request. It never fails: any error before a result is
// produced yields FailSafeResult. The record is written asynchronously.
func (e *Engine) Assess(ctx context.Context, userID uuid.UUID, device DeviceContext, t AssessmentType) *Assessment {
	started := time.Now()
	now := e.clock()

	ctx, span := tracing.StartSpan(ctx, tracerName, "risk.assess")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		tracing.UserIDKey.String(userID.String()),
		tracing.AssessmentTypeKey.String(string(t)),
	)

	a := &Assessment{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       t,
		Device:     device,
		AssessedAt: now,
	}

	result, telco, err := e.evaluate(ctx, userID, device, t, now)
	if err != nil {
		result = FailSafeResult()
		a.FailSafe = true

		reason := "signal_store"
		var panicErr *evaluationPanic
		if errors.As(err, &panicErr) {
			reason = "panic"
			apperrors.CapturePanic(ctx, panicErr.value, map[string]interface{}{
				"user_id":         userID.String(),
				"assessment_type": string(t),
			})
		}
		failsafeTotal.WithLabelValues(reason).Inc()
		tracing.RecordError(ctx, err)
		logger.ErrorContext(ctx, "risk assessment fell back to fail-safe",
			zap.String("user_id", userID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	a.Result = result
	a.Telco = telco

	if e.recorder != nil {
		e.recorder.Record(ctx, a)
	}

	elapsed := time.Since(started)
	assessmentDuration.Observe(elapsed.Seconds())
	assessmentsTotal.WithLabelValues(string(result.RiskLevel), string(result.RecommendedAction), metricType(t)).Inc()
	tracing.AddSpanAttributes(ctx, tracing.AssessmentAttributes(result.RiskScore, string(result.RiskLevel), string(result.RecommendedAction), a.FailSafe)...)

	logger.InfoContext(ctx, "risk assessed",
		zap.String("assessment_id", a.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("type", string(t)),
		zap.Int("score", result.RiskScore),
		zap.String("level", string(result.RiskLevel)),
		zap.String("action", string(result.RecommendedAction)),
		zap.Int("confidence", result.Confidence),
		zap.Bool("fail_safe", a.FailSafe),
		zap.Duration("duration", elapsed),
	)
	return a
}

type evaluationPanic struct {
	value interface{}
}

func (p *evaluationPanic) Error() string {
	return fmt.Sprintf("risk evaluation panicked: %v", p.value)
}

func (e *Engine) evaluate(ctx context.Context, userID uuid.UUID, device DeviceContext, t AssessmentType, now time.Time) (result Result, telco *TelcoSignals, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, telco, err = Result{}, nil, &evaluationPanic{value: r}
		}
	}()

	signals, err := e.signals.Fetch(ctx, userID, device.Fingerprint, now)
	if err != nil {
		return Result{}, nil, err
	}

	factors := CalculateFactors(now, e.policy, device, signals)
	score := Score(factors, e.policy.WeightsFor(t))

	return Result{
		RiskScore:         score,
		RiskLevel:         Tier(score),
		Factors:           factors,
		StepUpRequired:    StepUpRequired(score, t),
		RecommendedAction: RecommendAction(score, factors),
		Confidence:        Confidence(signals.Telco, factors),
	}, signals.Telco, nil
}
