package fraud

import (
	"context"
	"errors"
	"testing"

	"github.com/richxcame/risk-engine/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSubscriber struct {
	mock.Mock
	handler eventbus.HandlerFunc
}

func (m *mockSubscriber) Subscribe(ctx context.Context, subject, consumerName string, handler eventbus.HandlerFunc) error {
	m.handler = handler
	return m.Called(ctx, subject, consumerName).Error(0)
}

func TestEventHandler_SubscribesToBlockedAssessments(t *testing.T) {
	quietLogs(t)
	sub := new(mockSubscriber)
	sub.On("Subscribe", mock.Anything, eventbus.SubjectRiskBlocked, "fraud-alerts").Return(nil)

	h := NewEventHandler(newTestService(new(mockRepo), nil))

	require.NoError(t, h.RegisterSubscriptions(context.Background(), sub))
	sub.AssertExpectations(t)
	assert.NotNil(t, sub.handler)
}

func TestEventHandler_SubscribeError(t *testing.T) {
	sub := new(mockSubscriber)
	sub.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("stream not found"))

	err := NewEventHandler(newTestService(new(mockRepo), nil)).RegisterSubscriptions(context.Background(), sub)

	assert.ErrorContains(t, err, "risk.blocked")
}

func TestEventHandler_OpensAlert(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	h := NewEventHandler(newTestService(repo, nil))
	data := blockedEvent("CRITICAL", "sim_change_recent", "imei_mismatch")
	repo.On("CreateFraudAlert", mock.Anything, mock.MatchedBy(func(a *FraudAlert) bool {
		return a.AlertType == AlertTypeAccountTakeover && *a.SourceAssessmentID == data.AssessmentID
	})).Return(true, nil)

	event, err := eventbus.NewEvent(eventbus.SubjectRiskBlocked, "risk-engine", data)
	require.NoError(t, err)

	require.NoError(t, h.handleRiskBlocked(context.Background(), event))
	repo.AssertExpectations(t)
}

func TestEventHandler_StoreFailureIsRedelivered(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	h := NewEventHandler(newTestService(repo, nil))
	repo.On("CreateFraudAlert", mock.Anything, mock.Anything).Return(false, errors.New("connection reset"))

	event, err := eventbus.NewEvent(eventbus.SubjectRiskBlocked, "risk-engine", blockedEvent("HIGH"))
	require.NoError(t, err)

	assert.Error(t, h.handleRiskBlocked(context.Background(), event))
}

func TestEventHandler_MalformedPayloadIsAcked(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	h := NewEventHandler(newTestService(repo, nil))

	event := &eventbus.Event{ID: "evt-1", Type: eventbus.SubjectRiskBlocked, Data: []byte(`{"risk_score":"high"}`)}

	assert.NoError(t, h.handleRiskBlocked(context.Background(), event))
	repo.AssertNotCalled(t, "CreateFraudAlert", mock.Anything, mock.Anything)
}
