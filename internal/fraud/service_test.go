package fraud

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/eventbus"
	"github.com/richxcame/risk-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ========================================
// MOCKS
// ========================================

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateFraudAlert(ctx context.Context, alert *FraudAlert) (bool, error) {
	args := m.Called(ctx, alert)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) GetFraudAlertByID(ctx context.Context, alertID uuid.UUID) (*FraudAlert, error) {
	args := m.Called(ctx, alertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*FraudAlert), args.Error(1)
}

func (m *mockRepo) GetAlertsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*FraudAlert, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*FraudAlert), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepo) GetPendingAlerts(ctx context.Context, limit, offset int) ([]*FraudAlert, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*FraudAlert), args.Get(1).(int64), args.Error(2)
}

func (m *mockRepo) UpdateAlertStatus(ctx context.Context, alertID uuid.UUID, status FraudAlertStatus, investigatedBy *uuid.UUID, notes, actionTaken string) error {
	return m.Called(ctx, alertID, status, investigatedBy, notes, actionTaken).Error(0)
}

func (m *mockRepo) CountFraudAlertsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	args := m.Called(ctx, userID, since)
	return args.Int(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, subject string, event *eventbus.Event) error {
	return m.Called(ctx, subject, event).Error(0)
}

// ========================================
// HELPERS
// ========================================

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo RepositoryInterface, publisher eventbus.Publisher) *Service {
	s := NewService(repo, publisher)
	s.now = func() time.Time { return fixedNow }
	return s
}

func quietLogs(t *testing.T) {
	t.Helper()
	t.Cleanup(logger.Replace(zap.NewNop()))
}

func blockedEvent(level string, factors ...string) eventbus.RiskBlockedData {
	return eventbus.RiskBlockedData{
		AssessmentID:     uuid.New(),
		UserID:           uuid.New(),
		AssessmentType:   "HIGH_VALUE_TRANSACTION",
		RiskScore:        90,
		RiskLevel:        level,
		TriggeredFactors: factors,
		IPAddress:        "198.51.100.4",
		BlockedAt:        fixedNow,
	}
}

// ========================================
// TESTS
// ========================================

func TestService_CreateAlertFillsDefaultsAndPublishes(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	pub := new(mockPublisher)
	svc := newTestService(repo, pub)

	alert := &FraudAlert{
		UserID:      uuid.New(),
		AlertType:   AlertTypeLocationFraud,
		AlertLevel:  AlertLevelMedium,
		Description: "login from sanctioned region",
	}
	repo.On("CreateFraudAlert", mock.Anything, alert).Return(true, nil)
	pub.On("Publish", mock.Anything, eventbus.SubjectFraudDetected, mock.MatchedBy(func(e *eventbus.Event) bool {
		var data eventbus.FraudDetectedData
		return e.Decode(&data) == nil && data.AlertID == alert.ID && data.Severity == "medium"
	})).Return(nil)

	require.NoError(t, svc.CreateAlert(context.Background(), alert))

	assert.NotEqual(t, uuid.Nil, alert.ID)
	assert.Equal(t, AlertStatusPending, alert.Status)
	assert.Equal(t, fixedNow, alert.DetectedAt)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestService_CreateAlertRejectsUnknownType(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil)

	err := svc.CreateAlert(context.Background(), &FraudAlert{AlertType: "ride_fraud", AlertLevel: AlertLevelLow})

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
	repo.AssertNotCalled(t, "CreateFraudAlert", mock.Anything, mock.Anything)
}

func TestService_CreateAlertRepositoryError(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	svc := newTestService(repo, nil)
	repo.On("CreateFraudAlert", mock.Anything, mock.Anything).Return(false, errors.New("connection refused"))

	err := svc.CreateAlert(context.Background(), &FraudAlert{AlertType: AlertTypePaymentFraud, AlertLevel: AlertLevelHigh})

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.Code)
}

func TestService_HandleRiskBlocked(t *testing.T) {
	tests := []struct {
		name      string
		event     eventbus.RiskBlockedData
		wantType  FraudAlertType
		wantLevel FraudAlertLevel
	}{
		{
			name:      "sim swap with device mismatch",
			event:     blockedEvent("CRITICAL", "sim_change_recent", "imei_mismatch", "first_time_device"),
			wantType:  AlertTypeAccountTakeover,
			wantLevel: AlertLevelCritical,
		},
		{
			name:      "sim swap alone",
			event:     blockedEvent("HIGH", "sim_change_recent", "geovelocity_anomaly"),
			wantType:  AlertTypePaymentFraud,
			wantLevel: AlertLevelHigh,
		},
		{
			name:      "medium tier",
			event:     blockedEvent("MEDIUM", "imei_mismatch"),
			wantType:  AlertTypePaymentFraud,
			wantLevel: AlertLevelMedium,
		},
		{
			name:      "unknown tier",
			event:     blockedEvent(""),
			wantType:  AlertTypePaymentFraud,
			wantLevel: AlertLevelLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quietLogs(t)
			repo := new(mockRepo)
			svc := newTestService(repo, nil)
			repo.On("CreateFraudAlert", mock.Anything, mock.Anything).Return(true, nil)

			alert, err := svc.HandleRiskBlocked(context.Background(), tt.event)

			require.NoError(t, err)
			assert.Equal(t, tt.wantType, alert.AlertType)
			assert.Equal(t, tt.wantLevel, alert.AlertLevel)
			assert.Equal(t, tt.event.UserID, alert.UserID)
			require.NotNil(t, alert.SourceAssessmentID)
			assert.Equal(t, tt.event.AssessmentID, *alert.SourceAssessmentID)
			assert.Equal(t, float64(90), alert.RiskScore)
			assert.Equal(t, fixedNow, alert.DetectedAt)
		})
	}
}

func TestService_HandleRiskBlockedDuplicateIsQuiet(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	pub := new(mockPublisher)
	svc := newTestService(repo, pub)
	repo.On("CreateFraudAlert", mock.Anything, mock.Anything).Return(false, nil)

	_, err := svc.HandleRiskBlocked(context.Background(), blockedEvent("HIGH"))

	require.NoError(t, err)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_PublishFailureDoesNotFailCreate(t *testing.T) {
	quietLogs(t)
	repo := new(mockRepo)
	pub := new(mockPublisher)
	svc := newTestService(repo, pub)
	repo.On("CreateFraudAlert", mock.Anything, mock.Anything).Return(true, nil)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("nats: no responders available"))

	_, err := svc.HandleRiskBlocked(context.Background(), blockedEvent("HIGH"))

	assert.NoError(t, err)
}

func TestService_GetAlertNotFound(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil)
	id := uuid.New()
	repo.On("GetFraudAlertByID", mock.Anything, id).Return(nil, ErrAlertNotFound)

	_, err := svc.GetAlert(context.Background(), id)

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestService_ResolveAlert(t *testing.T) {
	tests := []struct {
		name       string
		confirmed  bool
		wantStatus FraudAlertStatus
	}{
		{"confirmed", true, AlertStatusConfirmed},
		{"dismissed", false, AlertStatusFalsePositive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quietLogs(t)
			repo := new(mockRepo)
			svc := newTestService(repo, nil)
			alertID, investigator := uuid.New(), uuid.New()
			repo.On("UpdateAlertStatus", mock.Anything, alertID, tt.wantStatus, &investigator, "checked with customer", "card frozen").Return(nil)

			err := svc.ResolveAlert(context.Background(), alertID, investigator, tt.confirmed, "checked with customer", "card frozen")

			require.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_InvestigateMissingAlert(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil)
	repo.On("UpdateAlertStatus", mock.Anything, mock.Anything, AlertStatusInvestigating, mock.Anything, "", "").Return(ErrAlertNotFound)

	err := svc.InvestigateAlert(context.Background(), uuid.New(), uuid.New(), "")

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
}

func TestService_ListsPassThroughTotals(t *testing.T) {
	repo := new(mockRepo)
	svc := newTestService(repo, nil)
	userID := uuid.New()
	alerts := []*FraudAlert{{ID: uuid.New(), UserID: userID}}
	repo.On("GetAlertsByUser", mock.Anything, userID, 10, 0).Return(alerts, int64(3), nil)
	repo.On("GetPendingAlerts", mock.Anything, 10, 0).Return(nil, int64(0), errors.New("timeout"))

	got, total, err := svc.GetUserAlerts(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, alerts, got)
	assert.Equal(t, int64(3), total)

	_, _, err = svc.GetPendingAlerts(context.Background(), 10, 0)
	assert.Error(t, err)
}
