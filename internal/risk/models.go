package risk

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/geo"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("risk: record not found")
	// ErrSignalStoreUnavailable means every signal read failed.
	ErrSignalStoreUnavailable = errors.New("risk: signal store unavailable")
)

// AssessmentType selects the weighting profile
type AssessmentType string

const (
	AssessmentTypeLogin       AssessmentType = "LOGIN"
	AssessmentTypeTransaction AssessmentType = "TRANSACTION"
	AssessmentTypeHighValue   AssessmentType = "HIGH_VALUE_TRANSACTION"
)

// ParseAssessmentType normalises case and surrounding whitespace.
func ParseAssessmentType(s string) AssessmentType {
	return AssessmentType(strings.ToUpper(strings.TrimSpace(s)))
}

// Known reports whether t has its own weighting profile.
func (t AssessmentType) Known() bool {
	switch t {
	case AssessmentTypeLogin, AssessmentTypeTransaction, AssessmentTypeHighValue:
		return true
	}
	return false
}

// profile maps unknown types onto the strictest profile.
func (t AssessmentType) profile() AssessmentType {
	if t.Known() {
		return t
	}
	return AssessmentTypeHighValue
}

// RiskLevel is the tier derived from a score
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Action is the recommended authorization outcome
type Action string

const (
	ActionAllow     Action = "ALLOW"
	ActionChallenge Action = "CHALLENGE"
	ActionEscrow    Action = "ESCROW"
	ActionBlock     Action = "BLOCK"
)

// Location is a caller-reported position
type Location struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
}

// Coordinate drops the accuracy radius.
func (l Location) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: l.Latitude, Longitude: l.Longitude}
}

// DeviceContext is the per-call session context supplied by the caller
type DeviceContext struct {
	Fingerprint string    `json:"fingerprint"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	Location    *Location `json:"location,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
}

// TelcoSignals is the last-known carrier record for a user
type TelcoSignals struct {
	SimChangeTimestamp     *time.Time `json:"sim_change_timestamp,omitempty"`
	IMEICurrent            string     `json:"imei_current,omitempty"`
	IMEIHistory            []string   `json:"imei_history,omitempty"`
	CarrierName            string     `json:"carrier_name,omitempty"`
	SignalStrength         *int       `json:"signal_strength,omitempty"`
	NetworkType            string     `json:"network_type,omitempty"`
	Roaming                bool       `json:"roaming"`
	CarrierFraudIndicators []string   `json:"carrier_fraud_indicators,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// DeviceFingerprintRecord is a previously seen device for a user
type DeviceFingerprintRecord struct {
	UserID           uuid.UUID `json:"user_id"`
	Fingerprint      string    `json:"fingerprint"`
	DeviceIdentifier string    `json:"device_identifier,omitempty"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	TrustScore       float64   `json:"trust_score"`
	IsActive         bool      `json:"is_active"`
}

// PriorAssessment is the summary of a user's most recent assessment
type PriorAssessment struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	IPAddress    string    `json:"ip_address"`
	Location     *Location `json:"location,omitempty"`
	AssessedAt   time.Time `json:"assessed_at"`
}

// Signals bundles what the gateway managed to read for one assessment.
// Any field may be nil; Failed names the sources whose read errored.
type Signals struct {
	Telco           *TelcoSignals
	Device          *DeviceFingerprintRecord
	Prior           *PriorAssessment
	FraudAlertCount int
	Failed          []string
}

// RiskFactors are the derived, per-call inputs to scoring
type RiskFactors struct {
	SimChangeRecent      bool `json:"sim_change_recent"`
	IMEIMismatch         bool `json:"imei_mismatch"`
	GeovelocityAnomaly   bool `json:"geovelocity_anomaly"`
	DeviceBindingAgeDays int  `json:"device_binding_age_days"`
	IPLocationChanged    bool `json:"ip_location_changed"`
	UnusualTimeAccess    bool `json:"unusual_time_access"`
	FirstTimeDevice      bool `json:"first_time_device"`
	FraudHistoryScore    int  `json:"fraud_history_score"`
}

// Factor names used in contributions, events and alerts.
const (
	FactorSimChangeRecent    = "sim_change_recent"
	FactorIMEIMismatch       = "imei_mismatch"
	FactorGeovelocityAnomaly = "geovelocity_anomaly"
	FactorFirstTimeDevice    = "first_time_device"
	FactorIPLocationChanged  = "ip_location_changed"
	FactorUnusualTimeAccess  = "unusual_time_access"
	FactorDeviceBindingAge   = "device_binding_age"
	FactorFraudHistory       = "fraud_history"
)

// Triggered lists the risk-raising factors that fired.
func (f RiskFactors) Triggered() []string {
	var out []string
	if f.SimChangeRecent {
		out = append(out, FactorSimChangeRecent)
	}
	if f.IMEIMismatch {
		out = append(out, FactorIMEIMismatch)
	}
	if f.GeovelocityAnomaly {
		out = append(out, FactorGeovelocityAnomaly)
	}
	if f.FirstTimeDevice {
		out = append(out, FactorFirstTimeDevice)
	}
	if f.IPLocationChanged {
		out = append(out, FactorIPLocationChanged)
	}
	if f.UnusualTimeAccess {
		out = append(out, FactorUnusualTimeAccess)
	}
	if f.FraudHistoryScore > 0 {
		out = append(out, FactorFraudHistory)
	}
	return out
}

// Result is the decision returned to callers
type Result struct {
	RiskScore         int         `json:"risk_score"`
	RiskLevel         RiskLevel   `json:"risk_level"`
	Factors           RiskFactors `json:"factors"`
	StepUpRequired    bool        `json:"step_up_required"`
	RecommendedAction Action      `json:"recommended_action"`
	Confidence        int         `json:"confidence"`
}

// Assessment is one completed engine call, as recorded for audit
type Assessment struct {
	ID         uuid.UUID      `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	Type       AssessmentType `json:"assessment_type"`
	Device     DeviceContext  `json:"device"`
	Result     Result         `json:"result"`
	Telco      *TelcoSignals  `json:"carrier_signal,omitempty"`
	FailSafe   bool           `json:"fail_safe"`
	AssessedAt time.Time      `json:"assessed_at"`
}

// Prior summarises a as the next call's prior assessment.
func (a *Assessment) Prior() *PriorAssessment {
	return &PriorAssessment{
		AssessmentID: a.ID,
		IPAddress:    a.Device.IPAddress,
		Location:     a.Device.Location,
		AssessedAt:   a.AssessedAt,
	}
}
