package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ========================================
// MOCKS FOR HANDLER TESTS
// ========================================

type mockAssessor struct {
	mock.Mock
}

func (m *mockAssessor) Assess(ctx context.Context, userID uuid.UUID, device DeviceContext, t AssessmentType) *Assessment {
	args := m.Called(ctx, userID, device, t)
	return args.Get(0).(*Assessment)
}

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListAssessments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Assessment, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*Assessment), args.Get(1).(int64), args.Error(2)
}

type mockTelcoStore struct {
	mock.Mock
}

func (m *mockTelcoStore) GetTelcoSignal(ctx context.Context, userID uuid.UUID) (*TelcoSignals, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TelcoSignals), args.Error(1)
}

func (m *mockTelcoStore) PutTelcoSignal(ctx context.Context, userID uuid.UUID, signal *TelcoSignals) error {
	return m.Called(ctx, userID, signal).Error(0)
}

func (m *mockTelcoStore) DeleteTelcoSignal(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

// ========================================
// HELPERS
// ========================================

type handlerFixture struct {
	engine *mockAssessor
	lister *mockLister
	telco  *mockTelcoStore
	router *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	quietLogs(t)

	f := &handlerFixture{
		engine: new(mockAssessor),
		lister: new(mockLister),
		telco:  new(mockTelcoStore),
	}
	f.router = gin.New()
	NewHandler(f.engine, f.lister, f.telco).RegisterRoutes(f.router.Group("/api/v1"))
	return f
}

func (f *handlerFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Limit  int   `json:"limit"`
		Offset int   `json:"offset"`
		Total  int64 `json:"total"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func validAssessBody(userID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"user_id":         userID.String(),
		"assessment_type": "login",
		"device": map[string]interface{}{
			"fingerprint": "fp-abc123",
			"ip_address":  "203.0.113.7",
			"user_agent":  "ExampleBank/5.2 (iOS 18.1)",
			"latitude":    -1.2921,
			"longitude":   36.8219,
			"timezone":    "Africa/Nairobi",
		},
	}
}

// ========================================
// ASSESS
// ========================================

func TestHandler_AssessReturnsResult(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	assessmentID := uuid.New()

	expectedDevice := DeviceContext{
		Fingerprint: "fp-abc123",
		IPAddress:   "203.0.113.7",
		UserAgent:   "ExampleBank/5.2 (iOS 18.1)",
		Location:    &Location{Latitude: -1.2921, Longitude: 36.8219},
		Timezone:    "Africa/Nairobi",
	}
	f.engine.On("Assess", mock.Anything, userID, expectedDevice, AssessmentTypeLogin).Return(&Assessment{
		ID:     assessmentID,
		UserID: userID,
		Type:   AssessmentTypeLogin,
		Result: Result{
			RiskScore:         20,
			RiskLevel:         RiskLevelLow,
			Factors:           RiskFactors{FirstTimeDevice: true},
			RecommendedAction: ActionAllow,
			Confidence:        50,
		},
		AssessedAt: testNow,
	})

	w := f.do(http.MethodPost, "/api/v1/risk/assess", validAssessBody(userID))

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, assessmentID.String(), data["assessment_id"])
	assert.Equal(t, "LOGIN", data["assessment_type"])
	assert.EqualValues(t, 20, data["risk_score"])
	assert.Equal(t, "LOW", data["risk_level"])
	assert.Equal(t, "ALLOW", data["recommended_action"])
	assert.Equal(t, false, data["step_up_required"])
	factors := data["factors"].(map[string]interface{})
	assert.Equal(t, true, factors["first_time_device"])
	f.engine.AssertExpectations(t)
}

func TestHandler_AssessDropsPartialLocation(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	body := validAssessBody(userID)
	device := body["device"].(map[string]interface{})
	delete(device, "latitude")
	delete(device, "longitude")
	device["accuracy_meters"] = 12.5

	f.engine.On("Assess", mock.Anything, userID, mock.MatchedBy(func(dc DeviceContext) bool {
		return dc.Location == nil
	}), AssessmentTypeLogin).Return(&Assessment{ID: uuid.New(), UserID: userID, Type: AssessmentTypeLogin})

	w := f.do(http.MethodPost, "/api/v1/risk/assess", body)

	assert.Equal(t, http.StatusOK, w.Code)
	f.engine.AssertExpectations(t)
}

func TestHandler_AssessUnknownTypePassesThrough(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	body := validAssessBody(userID)
	body["assessment_type"] = "wire_transfer"

	f.engine.On("Assess", mock.Anything, userID, mock.Anything, AssessmentType("WIRE_TRANSFER")).
		Return(&Assessment{ID: uuid.New(), UserID: userID, Type: "WIRE_TRANSFER"})

	w := f.do(http.MethodPost, "/api/v1/risk/assess", body)

	assert.Equal(t, http.StatusOK, w.Code)
	f.engine.AssertExpectations(t)
}

func TestHandler_AssessValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(body map[string]interface{})
		wantMsg string
	}{
		{
			name:    "user id not a uuid",
			mutate:  func(b map[string]interface{}) { b["user_id"] = "user-42" },
			wantMsg: "user_id",
		},
		{
			name:    "missing assessment type",
			mutate:  func(b map[string]interface{}) { delete(b, "assessment_type") },
			wantMsg: "assessment_type",
		},
		{
			name: "missing fingerprint",
			mutate: func(b map[string]interface{}) {
				delete(b["device"].(map[string]interface{}), "fingerprint")
			},
			wantMsg: "device.fingerprint",
		},
		{
			name: "bad ip address",
			mutate: func(b map[string]interface{}) {
				b["device"].(map[string]interface{})["ip_address"] = "999.1.1.1"
			},
			wantMsg: "device.ip_address",
		},
		{
			name: "latitude without longitude",
			mutate: func(b map[string]interface{}) {
				delete(b["device"].(map[string]interface{}), "longitude")
			},
			wantMsg: "device.longitude",
		},
		{
			name: "latitude out of range",
			mutate: func(b map[string]interface{}) {
				b["device"].(map[string]interface{})["latitude"] = 91.0
			},
			wantMsg: "device.latitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			body := validAssessBody(uuid.New())
			tt.mutate(body)

			w := f.do(http.MethodPost, "/api/v1/risk/assess", body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Contains(t, env.Error.Message, tt.wantMsg)
			f.engine.AssertNotCalled(t, "Assess", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_AssessMalformedJSON(t *testing.T) {
	f := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/risk/assess", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ========================================
// HISTORY
// ========================================

func TestHandler_ListAssessments(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	history := []*Assessment{
		{ID: uuid.New(), UserID: userID, Type: AssessmentTypeTransaction, AssessedAt: testNow},
		{ID: uuid.New(), UserID: userID, Type: AssessmentTypeLogin, AssessedAt: testNow.Add(-time.Hour)},
	}
	f.lister.On("ListAssessments", mock.Anything, userID, 2, 4).Return(history, int64(9), nil)

	w := f.do(http.MethodGet, "/api/v1/risk/users/"+userID.String()+"/assessments?limit=2&offset=4", nil)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Limit)
	assert.Equal(t, 4, env.Meta.Offset)
	assert.Equal(t, int64(9), env.Meta.Total)

	var got []Assessment
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Len(t, got, 2)
	assert.Equal(t, history[0].ID, got[0].ID)
}

func TestHandler_ListAssessmentsDefaults(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	f.lister.On("ListAssessments", mock.Anything, userID, defaultListLimit, 0).Return([]*Assessment{}, int64(0), nil)

	w := f.do(http.MethodGet, "/api/v1/risk/users/"+userID.String()+"/assessments", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	f.lister.AssertExpectations(t)
}

func TestHandler_ListAssessmentsBadInput(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodGet, "/api/v1/risk/users/not-a-uuid/assessments", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/risk/users/"+uuid.NewString()+"/assessments?limit=500", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.lister.AssertNotCalled(t, "ListAssessments", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_ListAssessmentsStoreError(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	f.lister.On("ListAssessments", mock.Anything, userID, defaultListLimit, 0).
		Return(nil, int64(0), errors.New("connection reset by peer"))

	w := f.do(http.MethodGet, "/api/v1/risk/users/"+userID.String()+"/assessments", nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "failed to list assessments", env.Error.Message)
}

// ========================================
// CARRIER RECORDS
// ========================================

func TestHandler_PutTelcoSignal(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	simAt := testNow.Add(-6 * time.Hour)

	f.telco.On("PutTelcoSignal", mock.Anything, userID, mock.MatchedBy(func(s *TelcoSignals) bool {
		return s.IMEICurrent == "356938035643809" &&
			s.SimChangeTimestamp != nil && s.SimChangeTimestamp.Equal(simAt) &&
			s.Roaming
	})).Return(nil)

	w := f.do(http.MethodPut, "/api/v1/risk/users/"+userID.String()+"/telco-signal", map[string]interface{}{
		"sim_change_timestamp": simAt.Format(time.RFC3339),
		"imei_current":         "356938035643809",
		"carrier_name":         "Example Mobile",
		"roaming":              true,
	})

	assert.Equal(t, http.StatusOK, w.Code)
	f.telco.AssertExpectations(t)
}

func TestHandler_PutTelcoSignalRejectsBadStrength(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPut, "/api/v1/risk/users/"+uuid.NewString()+"/telco-signal", map[string]interface{}{
		"signal_strength": 250,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Contains(t, env.Error.Message, "signal_strength")
	f.telco.AssertNotCalled(t, "PutTelcoSignal", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_DeleteTelcoSignal(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	f.telco.On("DeleteTelcoSignal", mock.Anything, userID).Return(nil)

	w := f.do(http.MethodDelete, "/api/v1/risk/users/"+userID.String()+"/telco-signal", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	f.telco.AssertExpectations(t)
}
