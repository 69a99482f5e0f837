package fraud

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/validation"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AlertService is the service surface used by the HTTP handler
type AlertService interface {
	CreateAlert(ctx context.Context, alert *FraudAlert) error
	GetAlert(ctx context.Context, alertID uuid.UUID) (*FraudAlert, error)
	GetUserAlerts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*FraudAlert, int64, error)
	GetPendingAlerts(ctx context.Context, limit, offset int) ([]*FraudAlert, int64, error)
	InvestigateAlert(ctx context.Context, alertID, investigatorID uuid.UUID, notes string) error
	ResolveAlert(ctx context.Context, alertID, investigatorID uuid.UUID, confirmed bool, notes, actionTaken string) error
}

// Handler handles HTTP requests for fraud alert administration
type Handler struct {
	service AlertService
}

// NewHandler creates a new fraud handler
func NewHandler(service AlertService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers fraud routes on an existing router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	fraud := rg.Group("/fraud")
	{
		fraud.GET("/alerts", h.GetPendingAlerts)
		fraud.GET("/alerts/:id", h.GetAlert)
		fraud.POST("/alerts", h.CreateAlert)
		fraud.PUT("/alerts/:id/investigate", h.InvestigateAlert)
		fraud.PUT("/alerts/:id/resolve", h.ResolveAlert)

		fraud.GET("/users/:id/alerts", h.GetUserAlerts)
	}
}

// GetPendingAlerts retrieves alerts awaiting review
func (h *Handler) GetPendingAlerts(c *gin.Context) {
	limit, ok := common.ParseLimit(c, defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	offset := common.ParseOffset(c)

	alerts, total, err := h.service.GetPendingAlerts(c.Request.Context(), limit, offset)
	if common.HandleServiceError(c, err, "failed to get pending alerts") {
		return
	}

	common.SuccessResponseWithMeta(c, alerts, &common.Meta{Limit: limit, Offset: offset, Total: total})
}

// GetAlert retrieves a specific fraud alert
func (h *Handler) GetAlert(c *gin.Context) {
	alertID, ok := common.ParseUUIDParam(c, "id", "alert ID")
	if !ok {
		return
	}

	alert, err := h.service.GetAlert(c.Request.Context(), alertID)
	if common.HandleServiceError(c, err, "failed to get fraud alert") {
		return
	}

	common.SuccessResponse(c, alert)
}

// CreateAlertRequest represents a request to create a fraud alert
type CreateAlertRequest struct {
	UserID      string                 `json:"user_id" validate:"required,uuid"`
	AlertType   FraudAlertType         `json:"alert_type" validate:"required"`
	AlertLevel  FraudAlertLevel        `json:"alert_level" validate:"required"`
	Description string                 `json:"description" validate:"required,max=1024"`
	Details     map[string]interface{} `json:"details"`
	RiskScore   float64                `json:"risk_score" validate:"min=0,max=100"`
}

// CreateAlert records a manually raised fraud alert
func (h *Handler) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if !validate(c, req) {
		return
	}

	alert := &FraudAlert{
		UserID:      uuid.MustParse(req.UserID),
		AlertType:   req.AlertType,
		AlertLevel:  req.AlertLevel,
		Description: req.Description,
		Details:     req.Details,
		RiskScore:   req.RiskScore,
	}
	if err := h.service.CreateAlert(c.Request.Context(), alert); common.HandleServiceError(c, err, "failed to create fraud alert") {
		return
	}

	common.CreatedResponse(c, alert)
}

// InvestigateAlertRequest represents a request to investigate an alert
type InvestigateAlertRequest struct {
	InvestigatorID string `json:"investigator_id" validate:"required,uuid"`
	Notes          string `json:"notes" validate:"max=4096"`
}

// InvestigateAlert marks an alert as under investigation
func (h *Handler) InvestigateAlert(c *gin.Context) {
	alertID, ok := common.ParseUUIDParam(c, "id", "alert ID")
	if !ok {
		return
	}

	var req InvestigateAlertRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if !validate(c, req) {
		return
	}

	err := h.service.InvestigateAlert(c.Request.Context(), alertID, uuid.MustParse(req.InvestigatorID), req.Notes)
	if common.HandleServiceError(c, err, "failed to investigate alert") {
		return
	}

	common.SuccessResponse(c, gin.H{"message": "alert marked as investigating"})
}

// ResolveAlertRequest represents a request to resolve an alert
type ResolveAlertRequest struct {
	InvestigatorID string `json:"investigator_id" validate:"required,uuid"`
	Confirmed      bool   `json:"confirmed"`
	Notes          string `json:"notes" validate:"max=4096"`
	ActionTaken    string `json:"action_taken" validate:"max=1024"`
}

// ResolveAlert resolves a fraud alert
func (h *Handler) ResolveAlert(c *gin.Context) {
	alertID, ok := common.ParseUUIDParam(c, "id", "alert ID")
	if !ok {
		return
	}

	var req ResolveAlertRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if !validate(c, req) {
		return
	}

	err := h.service.ResolveAlert(c.Request.Context(), alertID, uuid.MustParse(req.InvestigatorID), req.Confirmed, req.Notes, req.ActionTaken)
	if common.HandleServiceError(c, err, "failed to resolve alert") {
		return
	}

	common.SuccessResponse(c, gin.H{"message": "alert resolved successfully"})
}

// GetUserAlerts retrieves a user's fraud alerts, newest first
func (h *Handler) GetUserAlerts(c *gin.Context) {
	userID, ok := common.ParseUUIDParam(c, "id", "user ID")
	if !ok {
		return
	}
	limit, ok := common.ParseLimit(c, defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	offset := common.ParseOffset(c)

	alerts, total, err := h.service.GetUserAlerts(c.Request.Context(), userID, limit, offset)
	if common.HandleServiceError(c, err, "failed to get fraud alerts") {
		return
	}

	common.SuccessResponseWithMeta(c, alerts, &common.Meta{Limit: limit, Offset: offset, Total: total})
}

func validate(c *gin.Context, req interface{}) bool {
	if err := validation.ValidateStruct(req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
