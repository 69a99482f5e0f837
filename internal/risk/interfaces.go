package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TelcoSource reads the last-known carrier record for a user.
// A missing record is reported as ErrNotFound.
type TelcoSource interface {
	GetTelcoSignal(ctx context.Context, userID uuid.UUID) (*TelcoSignals, error)
}

// TelcoStore is a TelcoSource that also accepts carrier updates
type TelcoStore interface {
	TelcoSource
	PutTelcoSignal(ctx context.Context, userID uuid.UUID, signal *TelcoSignals) error
	DeleteTelcoSignal(ctx context.Context, userID uuid.UUID) error
}

// DeviceSource reads the binding record for a (user, fingerprint) pair.
type DeviceSource interface {
	GetDeviceFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*DeviceFingerprintRecord, error)
}

// PriorSource reads the user's most recent assessment.
type PriorSource interface {
	GetLatestAssessment(ctx context.Context, userID uuid.UUID) (*PriorAssessment, error)
}

// FraudHistorySource counts alerts that still stand against a user.
type FraudHistorySource interface {
	CountFraudAlertsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// SignalFetcher gathers every signal the engine needs for one call.
type SignalFetcher interface {
	Fetch(ctx context.Context, userID uuid.UUID, fingerprint string, now time.Time) (Signals, error)
}

// Recorder persists a finished assessment without blocking the caller.
type Recorder interface {
	Record(ctx context.Context, a *Assessment)
}

// Assessor is the engine entry point.
type Assessor interface {
	Assess(ctx context.Context, userID uuid.UUID, device DeviceContext, t AssessmentType) *Assessment
}

// RepositoryInterface defines the persistence the risk package relies on
type RepositoryInterface interface {
	DeviceSource
	PriorSource
	SaveAssessment(ctx context.Context, a *Assessment) error
	ListAssessments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Assessment, int64, error)
}
