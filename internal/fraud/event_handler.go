package fraud

import (
	"context"
	"fmt"

	"github.com/richxcame/risk-engine/pkg/eventbus"
	"github.com/richxcame/risk-engine/pkg/logger"
	"go.uber.org/zap"
)

const blockedConsumer = "fraud-alerts"

// EventHandler opens fraud alerts from risk engine events.
type EventHandler struct {
	service *Service
}

// NewEventHandler creates an event handler backed by the fraud service.
func NewEventHandler(service *Service) *EventHandler {
	return &EventHandler{service: service}
}

// RegisterSubscriptions subscribes to blocked assessments on the bus.
func (h *EventHandler) RegisterSubscriptions(ctx context.Context, sub eventbus.Subscriber) error {
	if err := sub.Subscribe(ctx, eventbus.SubjectRiskBlocked, blockedConsumer, h.handleRiskBlocked); err != nil {
		return fmt.Errorf("subscribe to %s: %w", eventbus.SubjectRiskBlocked, err)
	}
	logger.Info("fraud: subscribed to blocked assessments")
	return nil
}

func (h *EventHandler) handleRiskBlocked(ctx context.Context, event *eventbus.Event) error {
	var data eventbus.RiskBlockedData
	if err := event.Decode(&data); err != nil {
		// Redelivery cannot fix a malformed payload
		logger.ErrorContext(ctx, "fraud: dropping undecodable risk.blocked event",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		return nil
	}

	alert, err := h.service.HandleRiskBlocked(ctx, data)
	if err != nil {
		return fmt.Errorf("open alert for assessment %s: %w", data.AssessmentID, err)
	}

	logger.InfoContext(ctx, "fraud: alert opened for blocked assessment",
		zap.Stringer("assessment_id", data.AssessmentID),
		zap.Stringer("alert_id", alert.ID),
		zap.String("alert_type", string(alert.AlertType)),
	)
	return nil
}
