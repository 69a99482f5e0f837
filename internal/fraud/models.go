package fraud

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FraudAlertLevel represents the severity of a fraud alert
type FraudAlertLevel string

const (
	AlertLevelLow      FraudAlertLevel = "low"
	AlertLevelMedium   FraudAlertLevel = "medium"
	AlertLevelHigh     FraudAlertLevel = "high"
	AlertLevelCritical FraudAlertLevel = "critical"
)

// Valid reports whether l is one of the known levels
func (l FraudAlertLevel) Valid() bool {
	switch l {
	case AlertLevelLow, AlertLevelMedium, AlertLevelHigh, AlertLevelCritical:
		return true
	}
	return false
}

// FraudAlertType represents the type of fraud detected
type FraudAlertType string

const (
	AlertTypePaymentFraud    FraudAlertType = "payment_fraud"
	AlertTypeAccountTakeover FraudAlertType = "account_takeover"
	AlertTypeAccountFraud    FraudAlertType = "account_fraud"
	AlertTypeLocationFraud   FraudAlertType = "location_fraud"
)

// Valid reports whether t is one of the known alert types
func (t FraudAlertType) Valid() bool {
	switch t {
	case AlertTypePaymentFraud, AlertTypeAccountTakeover, AlertTypeAccountFraud, AlertTypeLocationFraud:
		return true
	}
	return false
}

// FraudAlertStatus represents the status of a fraud alert
type FraudAlertStatus string

const (
	AlertStatusPending       FraudAlertStatus = "pending"
	AlertStatusInvestigating FraudAlertStatus = "investigating"
	AlertStatusConfirmed     FraudAlertStatus = "confirmed"
	AlertStatusFalsePositive FraudAlertStatus = "false_positive"
	AlertStatusResolved      FraudAlertStatus = "resolved"
)

// FraudAlert represents a fraud detection alert. Alerts opened from a
// blocked assessment carry its ID in SourceAssessmentID.
type FraudAlert struct {
	ID                 uuid.UUID              `json:"id"`
	UserID             uuid.UUID              `json:"user_id"`
	AlertType          FraudAlertType         `json:"alert_type"`
	AlertLevel         FraudAlertLevel        `json:"alert_level"`
	Status             FraudAlertStatus       `json:"status"`
	Description        string                 `json:"description"`
	Details            map[string]interface{} `json:"details"`
	RiskScore          float64                `json:"risk_score"`
	SourceAssessmentID *uuid.UUID             `json:"source_assessment_id,omitempty"`
	DetectedAt         time.Time              `json:"detected_at"`
	InvestigatedAt     *time.Time             `json:"investigated_at,omitempty"`
	InvestigatedBy     *uuid.UUID             `json:"investigated_by,omitempty"`
	ResolvedAt         *time.Time             `json:"resolved_at,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	ActionTaken        string                 `json:"action_taken,omitempty"`
}

// ErrAlertNotFound is returned when no alert matches the requested ID
var ErrAlertNotFound = errors.New("fraud alert not found")
