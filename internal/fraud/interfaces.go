package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RepositoryInterface defines the persistence operations used by the fraud service
type RepositoryInterface interface {
	CreateFraudAlert(ctx context.Context, alert *FraudAlert) (bool, error)
	GetFraudAlertByID(ctx context.Context, alertID uuid.UUID) (*FraudAlert, error)
	GetAlertsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*FraudAlert, int64, error)
	GetPendingAlerts(ctx context.Context, limit, offset int) ([]*FraudAlert, int64, error)
	UpdateAlertStatus(ctx context.Context, alertID uuid.UUID, status FraudAlertStatus, investigatedBy *uuid.UUID, notes, actionTaken string) error
	CountFraudAlertsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}
