package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/async"
	apperrors "github.com/richxcame/risk-engine/pkg/errors"
	"github.com/richxcame/risk-engine/pkg/eventbus"
	"github.com/richxcame/risk-engine/pkg/logger"
	"github.com/richxcame/risk-engine/pkg/resilience"
	"go.uber.org/zap"
)

const eventSource = "risk-engine"

// AssessmentStore is the write side used by the recorder
type AssessmentStore interface {
	SaveAssessment(ctx context.Context, a *Assessment) error
	CacheLatestAssessment(ctx context.Context, userID uuid.UUID, prior *PriorAssessment) error
	InvalidateLatestAssessment(ctx context.Context, userID uuid.UUID) error
}

// AsyncRecorder persists assessments in the background, then refreshes the
// prior-assessment cache and publishes events. Failures are logged and
// counted; callers never see them.
type AsyncRecorder struct {
	store     AssessmentStore
	publisher eventbus.Publisher
	timeout   time.Duration
	retry     resilience.RetryConfig
	inflight  sync.WaitGroup
}

// NewAsyncRecorder creates a recorder. publisher may be nil when the event
// bus is disabled.
func NewAsyncRecorder(store AssessmentStore, publisher eventbus.Publisher, timeout time.Duration) *AsyncRecorder {
	return &AsyncRecorder{
		store:     store,
		publisher: publisher,
		timeout:   timeout,
		retry:     resilience.RecordRetryConfig(),
	}
}

// Record schedules the write and returns immediately.
func (r *AsyncRecorder) Record(ctx context.Context, a *Assessment) {
	r.inflight.Add(1)
	async.GoWithTimeout(ctx, "record-assessment", r.timeout, func(ctx context.Context) {
		defer r.inflight.Done()
		_ = r.persist(ctx, a)
	})
}

// Drain waits for scheduled writes to finish or for ctx to end.
func (r *AsyncRecorder) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *AsyncRecorder) persist(ctx context.Context, a *Assessment) error {
	fields := []zap.Field{
		zap.String("assessment_id", a.ID.String()),
		zap.String("user_id", a.UserID.String()),
	}

	if err := r.store.SaveAssessment(ctx, a); err != nil {
		recordFailures.WithLabelValues("persist").Inc()
		logger.ErrorContext(ctx, "failed to persist risk assessment", append(fields, zap.Error(err))...)
		apperrors.CaptureErrorWithContext(ctx, err, map[string]interface{}{
			"assessment_id": a.ID.String(),
		})
		return err
	}

	if err := r.store.CacheLatestAssessment(ctx, a.UserID, a.Prior()); err != nil {
		recordFailures.WithLabelValues("cache").Inc()
		logger.WarnContext(ctx, "failed to refresh prior assessment cache", append(fields, zap.Error(err))...)
		// Postgres now holds a newer row than the cached prior
		if err := r.store.InvalidateLatestAssessment(ctx, a.UserID); err != nil {
			logger.ErrorContext(ctx, "failed to invalidate prior assessment cache", append(fields, zap.Error(err))...)
		}
	}

	if err := r.publish(ctx, a); err != nil {
		recordFailures.WithLabelValues("publish").Inc()
		logger.ErrorContext(ctx, "failed to publish risk events", append(fields, zap.Error(err))...)
	}
	return nil
}

func (r *AsyncRecorder) publish(ctx context.Context, a *Assessment) error {
	if r.publisher == nil {
		return nil
	}

	assessed, err := eventbus.NewEvent(eventbus.SubjectRiskAssessed, eventSource, eventbus.RiskAssessedData{
		AssessmentID:      a.ID,
		UserID:            a.UserID,
		AssessmentType:    string(a.Type),
		RiskScore:         a.Result.RiskScore,
		RiskLevel:         string(a.Result.RiskLevel),
		RecommendedAction: string(a.Result.RecommendedAction),
		StepUpRequired:    a.Result.StepUpRequired,
		Confidence:        a.Result.Confidence,
		FailSafe:          a.FailSafe,
		AssessedAt:        a.AssessedAt,
	})
	if err != nil {
		return err
	}
	if err := r.publishWithRetry(ctx, eventbus.SubjectRiskAssessed, assessed); err != nil {
		return err
	}

	if a.Result.RecommendedAction != ActionBlock {
		return nil
	}

	blocked, err := eventbus.NewEvent(eventbus.SubjectRiskBlocked, eventSource, eventbus.RiskBlockedData{
		AssessmentID:     a.ID,
		UserID:           a.UserID,
		AssessmentType:   string(a.Type),
		RiskScore:        a.Result.RiskScore,
		RiskLevel:        string(a.Result.RiskLevel),
		TriggeredFactors: a.Result.Factors.Triggered(),
		IPAddress:        a.Device.IPAddress,
		BlockedAt:        a.AssessedAt,
	})
	if err != nil {
		return err
	}
	return r.publishWithRetry(ctx, eventbus.SubjectRiskBlocked, blocked)
}

func (r *AsyncRecorder) publishWithRetry(ctx context.Context, subject string, event *eventbus.Event) error {
	_, err := resilience.RetryWithName(ctx, r.retry, func(ctx context.Context) (interface{}, error) {
		return nil, r.publisher.Publish(ctx, subject, event)
	}, "eventbus.publish")
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
