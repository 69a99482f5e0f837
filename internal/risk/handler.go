package risk

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/validation"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AssessmentLister reads stored assessments for the history endpoint
type AssessmentLister interface {
	ListAssessments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Assessment, int64, error)
}

// Handler handles HTTP requests for risk assessment
type Handler struct {
	engine      Assessor
	assessments AssessmentLister
	telco       TelcoStore
}

// NewHandler creates a new risk handler
func NewHandler(engine Assessor, assessments AssessmentLister, telco TelcoStore) *Handler {
	return &Handler{engine: engine, assessments: assessments, telco: telco}
}

// RegisterRoutes registers risk routes on an existing router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	risk := rg.Group("/risk")
	{
		risk.POST("/assess", h.Assess)
		risk.GET("/users/:id/assessments", h.ListAssessments)
		risk.PUT("/users/:id/telco-signal", h.PutTelcoSignal)
		risk.DELETE("/users/:id/telco-signal", h.DeleteTelcoSignal)
	}
}

// DeviceRequest is the wire form of DeviceContext
type DeviceRequest struct {
	Fingerprint    string   `json:"fingerprint" validate:"required,max=255"`
	IPAddress      string   `json:"ip_address" validate:"required,ip"`
	UserAgent      string   `json:"user_agent" validate:"max=1024"`
	Latitude       *float64 `json:"latitude" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude      *float64 `json:"longitude" validate:"required_with=Latitude,omitempty,longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters" validate:"omitempty,gte=0"`
	Timezone       string   `json:"timezone" validate:"max=64"`
}

// AssessRequest represents a request to assess a user's session
type AssessRequest struct {
	UserID         string        `json:"user_id" validate:"required,uuid"`
	AssessmentType string        `json:"assessment_type" validate:"required,max=64"`
	Device         DeviceRequest `json:"device"`
}

func (r DeviceRequest) toContext() DeviceContext {
	dc := DeviceContext{
		Fingerprint: r.Fingerprint,
		IPAddress:   r.IPAddress,
		UserAgent:   r.UserAgent,
		Timezone:    r.Timezone,
	}
	if r.Latitude != nil && r.Longitude != nil {
		dc.Location = &Location{
			Latitude:       *r.Latitude,
			Longitude:      *r.Longitude,
			AccuracyMeters: r.AccuracyMeters,
		}
	}
	return dc
}

// AssessResponse is returned for every assessment
type AssessResponse struct {
	AssessmentID   uuid.UUID      `json:"assessment_id"`
	UserID         uuid.UUID      `json:"user_id"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Result
	AssessedAt time.Time `json:"assessed_at"`
}

// Assess scores a session. Validation failures are the only error response.
func (h *Handler) Assess(c *gin.Context) {
	var req AssessRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if !validate(c, req) {
		return
	}

	userID := uuid.MustParse(req.UserID)
	a := h.engine.Assess(c.Request.Context(), userID, req.Device.toContext(), ParseAssessmentType(req.AssessmentType))

	common.SuccessResponse(c, AssessResponse{
		AssessmentID:   a.ID,
		UserID:         a.UserID,
		AssessmentType: a.Type,
		Result:         a.Result,
		AssessedAt:     a.AssessedAt,
	})
}

// ListAssessments returns a user's assessment history, newest first
func (h *Handler) ListAssessments(c *gin.Context) {
	userID, ok := common.ParseUUIDParam(c, "id", "user ID")
	if !ok {
		return
	}
	limit, ok := common.ParseLimit(c, defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	offset := common.ParseOffset(c)

	assessments, total, err := h.assessments.ListAssessments(c.Request.Context(), userID, limit, offset)
	if common.HandleServiceError(c, err, "failed to list assessments") {
		return
	}

	common.SuccessResponseWithMeta(c, assessments, &common.Meta{Limit: limit, Offset: offset, Total: total})
}

// TelcoSignalRequest is a carrier record pushed by the ingestion job
type TelcoSignalRequest struct {
	SimChangeTimestamp     *time.Time `json:"sim_change_timestamp"`
	IMEICurrent            string     `json:"imei_current" validate:"max=64"`
	IMEIHistory            []string   `json:"imei_history" validate:"max=32,dive,max=64"`
	CarrierName            string     `json:"carrier_name" validate:"max=128"`
	SignalStrength         *int       `json:"signal_strength" validate:"omitempty,gte=0,lte=100"`
	NetworkType            string     `json:"network_type" validate:"max=32"`
	Roaming                bool       `json:"roaming"`
	CarrierFraudIndicators []string   `json:"carrier_fraud_indicators" validate:"max=32,dive,max=64"`
}

// PutTelcoSignal replaces the cached carrier record for a user
func (h *Handler) PutTelcoSignal(c *gin.Context) {
	userID, ok := common.ParseUUIDParam(c, "id", "user ID")
	if !ok {
		return
	}

	var req TelcoSignalRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if !validate(c, req) {
		return
	}

	signal := &TelcoSignals{
		SimChangeTimestamp:     req.SimChangeTimestamp,
		IMEICurrent:            req.IMEICurrent,
		IMEIHistory:            req.IMEIHistory,
		CarrierName:            req.CarrierName,
		SignalStrength:         req.SignalStrength,
		NetworkType:            req.NetworkType,
		Roaming:                req.Roaming,
		CarrierFraudIndicators: req.CarrierFraudIndicators,
	}
	if err := h.telco.PutTelcoSignal(c.Request.Context(), userID, signal); common.HandleServiceError(c, err, "failed to store telco signal") {
		return
	}

	common.SuccessResponse(c, signal)
}

// DeleteTelcoSignal removes the cached carrier record for a user
func (h *Handler) DeleteTelcoSignal(c *gin.Context) {
	userID, ok := common.ParseUUIDParam(c, "id", "user ID")
	if !ok {
		return
	}

	if err := h.telco.DeleteTelcoSignal(c.Request.Context(), userID); common.HandleServiceError(c, err, "failed to delete telco signal") {
		return
	}

	c.Status(http.StatusNoContent)
}

func validate(c *gin.Context, req interface{}) bool {
	if err := validation.ValidateStruct(req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
