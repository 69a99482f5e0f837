package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Subjects published by the risk engine. The stream captures risk.> and fraud.>.
const (
	SubjectRiskAssessed  = "risk.assessed"
	SubjectRiskBlocked   = "risk.blocked"
	SubjectFraudDetected = "fraud.detected"
)

var errIncompleteEvent = errors.New("event missing id or type")

// Event is the JSON envelope carried on every subject. ID doubles as the
// JetStream dedup key.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func decodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" || e.Type == "" {
		return nil, errIncompleteEvent
	}
	return &e, nil
}

// HandlerFunc consumes one event. A nil return acks; an error requests redelivery.
type HandlerFunc func(ctx context.Context, event *Event) error

type Publisher interface {
	Publish(ctx context.Context, subject string, event *Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, subject, consumerName string, handler HandlerFunc) error
}

// RiskAssessedData is emitted for every completed risk assessment.
type RiskAssessedData struct {
	AssessmentID      uuid.UUID `json:"assessment_id"`
	UserID            uuid.UUID `json:"user_id"`
	AssessmentType    string    `json:"assessment_type"`
	RiskScore         int       `json:"risk_score"`
	RiskLevel         string    `json:"risk_level"`
	RecommendedAction string    `json:"recommended_action"`
	StepUpRequired    bool      `json:"step_up_required"`
	Confidence        int       `json:"confidence"`
	FailSafe          bool      `json:"fail_safe"`
	AssessedAt        time.Time `json:"assessed_at"`
}

// RiskBlockedData is emitted when an assessment recommends BLOCK.
type RiskBlockedData struct {
	AssessmentID     uuid.UUID `json:"assessment_id"`
	UserID           uuid.UUID `json:"user_id"`
	AssessmentType   string    `json:"assessment_type"`
	RiskScore        int       `json:"risk_score"`
	RiskLevel        string    `json:"risk_level"`
	TriggeredFactors []string  `json:"triggered_factors"`
	IPAddress        string    `json:"ip_address,omitempty"`
	BlockedAt        time.Time `json:"blocked_at"`
}

// FraudDetectedData is emitted when a fraud alert is raised.
type FraudDetectedData struct {
	AlertID    uuid.UUID `json:"alert_id"`
	UserID     uuid.UUID `json:"user_id"`
	AlertType  string    `json:"alert_type"`
	Severity   string    `json:"severity"`
	Details    string    `json:"details"`
	DetectedAt time.Time `json:"detected_at"`
}
