package fraud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/eventbus"
	"github.com/richxcame/risk-engine/pkg/logger"
	"go.uber.org/zap"
)

const eventSource = "fraud"

// Factor names carried in risk.blocked events
const (
	factorSimChangeRecent = "sim_change_recent"
	factorIMEIMismatch    = "imei_mismatch"
)

// Service handles fraud alert business logic
type Service struct {
	repo      RepositoryInterface
	publisher eventbus.Publisher
	now       func() time.Time
}

// NewService creates a new fraud service. publisher may be nil.
func NewService(repo RepositoryInterface, publisher eventbus.Publisher) *Service {
	return &Service{repo: repo, publisher: publisher, now: time.Now}
}

// CreateAlert creates a new fraud alert
func (s *Service) CreateAlert(ctx context.Context, alert *FraudAlert) error {
	if !alert.AlertType.Valid() {
		return common.NewBadRequestError(fmt.Sprintf("unknown alert type %q", alert.AlertType), nil)
	}
	if !alert.AlertLevel.Valid() {
		return common.NewBadRequestError(fmt.Sprintf("unknown alert level %q", alert.AlertLevel), nil)
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.DetectedAt.IsZero() {
		alert.DetectedAt = s.now().UTC()
	}
	if alert.Status == "" {
		alert.Status = AlertStatusPending
	}

	created, err := s.repo.CreateFraudAlert(ctx, alert)
	if err != nil {
		return common.NewInternalError("failed to create fraud alert", err)
	}
	if !created {
		logger.DebugContext(ctx, "fraud alert already exists for assessment",
			zap.Stringer("user_id", alert.UserID),
		)
		return nil
	}

	s.publishDetected(ctx, alert)
	return nil
}

// HandleRiskBlocked opens an alert for an assessment that recommended BLOCK.
// Redelivered events for the same assessment do not create duplicates.
func (s *Service) HandleRiskBlocked(ctx context.Context, data eventbus.RiskBlockedData) (*FraudAlert, error) {
	alertType := AlertTypePaymentFraud
	description := fmt.Sprintf("%s blocked with risk score %d", strings.ToLower(data.AssessmentType), data.RiskScore)
	if hasFactor(data.TriggeredFactors, factorSimChangeRecent) && hasFactor(data.TriggeredFactors, factorIMEIMismatch) {
		alertType = AlertTypeAccountTakeover
		description = "SIM swap with device mismatch: " + description
	}

	assessmentID := data.AssessmentID
	alert := &FraudAlert{
		UserID:      data.UserID,
		AlertType:   alertType,
		AlertLevel:  levelForRisk(data.RiskLevel),
		Status:      AlertStatusPending,
		Description: description,
		Details: map[string]interface{}{
			"assessment_type":   data.AssessmentType,
			"triggered_factors": data.TriggeredFactors,
			"ip_address":        data.IPAddress,
		},
		RiskScore:          float64(data.RiskScore),
		SourceAssessmentID: &assessmentID,
		DetectedAt:         data.BlockedAt,
	}

	if err := s.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// GetAlert retrieves a fraud alert by ID
func (s *Service) GetAlert(ctx context.Context, alertID uuid.UUID) (*FraudAlert, error) {
	alert, err := s.repo.GetFraudAlertByID(ctx, alertID)
	if errors.Is(err, ErrAlertNotFound) {
		return nil, common.NewNotFoundError("fraud alert not found", err)
	}
	if err != nil {
		return nil, common.NewInternalError("failed to get fraud alert", err)
	}
	return alert, nil
}

// GetUserAlerts retrieves a page of fraud alerts for a user
func (s *Service) GetUserAlerts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*FraudAlert, int64, error) {
	alerts, total, err := s.repo.GetAlertsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to get fraud alerts", err)
	}
	return alerts, total, nil
}

// GetPendingAlerts retrieves a page of alerts awaiting review
func (s *Service) GetPendingAlerts(ctx context.Context, limit, offset int) ([]*FraudAlert, int64, error) {
	alerts, total, err := s.repo.GetPendingAlerts(ctx, limit, offset)
	if err != nil {
		return nil, 0, common.NewInternalError("failed to get pending alerts", err)
	}
	return alerts, total, nil
}

// InvestigateAlert marks an alert as under investigation
func (s *Service) InvestigateAlert(ctx context.Context, alertID, investigatorID uuid.UUID, notes string) error {
	return s.updateStatus(ctx, alertID, AlertStatusInvestigating, investigatorID, notes, "")
}

// ResolveAlert closes an alert. Unconfirmed alerts become false positives
// and stop counting towards the user's fraud history.
func (s *Service) ResolveAlert(ctx context.Context, alertID, investigatorID uuid.UUID, confirmed bool, notes, actionTaken string) error {
	status := AlertStatusFalsePositive
	if confirmed {
		status = AlertStatusConfirmed
	}
	return s.updateStatus(ctx, alertID, status, investigatorID, notes, actionTaken)
}

func (s *Service) updateStatus(ctx context.Context, alertID uuid.UUID, status FraudAlertStatus, investigatorID uuid.UUID, notes, actionTaken string) error {
	err := s.repo.UpdateAlertStatus(ctx, alertID, status, &investigatorID, notes, actionTaken)
	if errors.Is(err, ErrAlertNotFound) {
		return common.NewNotFoundError("fraud alert not found", err)
	}
	if err != nil {
		return common.NewInternalError("failed to update alert status", err)
	}

	logger.InfoContext(ctx, "fraud alert status changed",
		zap.Stringer("alert_id", alertID),
		zap.String("status", string(status)),
		zap.Stringer("investigator_id", investigatorID),
	)
	return nil
}

func (s *Service) publishDetected(ctx context.Context, alert *FraudAlert) {
	if s.publisher == nil {
		return
	}

	event, err := eventbus.NewEvent(eventbus.SubjectFraudDetected, eventSource, eventbus.FraudDetectedData{
		AlertID:    alert.ID,
		UserID:     alert.UserID,
		AlertType:  string(alert.AlertType),
		Severity:   string(alert.AlertLevel),
		Details:    alert.Description,
		DetectedAt: alert.DetectedAt,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, eventbus.SubjectFraudDetected, event)
	}
	if err != nil {
		logger.WarnContext(ctx, "failed to publish fraud.detected",
			zap.Stringer("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}

// levelForRisk maps an assessment tier onto an alert level
func levelForRisk(level string) FraudAlertLevel {
	switch strings.ToUpper(level) {
	case "CRITICAL":
		return AlertLevelCritical
	case "HIGH":
		return AlertLevelHigh
	case "MEDIUM":
		return AlertLevelMedium
	default:
		return AlertLevelLow
	}
}

func hasFactor(factors []string, name string) bool {
	for _, f := range factors {
		if f == name {
			return true
		}
	}
	return false
}
