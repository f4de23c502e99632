package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	rbac "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// AlertController manages a user's alert rules
type AlertController struct {
	ruleRepo       interfaces.AlertRuleRepository
	authorizer     *rbac.Authorizer
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewAlertController creates a new alert controller
func NewAlertController(ruleRepo interfaces.AlertRuleRepository, authorizer *rbac.Authorizer, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *AlertController {
	return &AlertController{
		ruleRepo:       ruleRepo,
		authorizer:     authorizer,
		logger:         logger.WithComponent("alert_controller"),
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the alert routes with Gin
func (c *AlertController) RegisterRoutes(router *gin.Engine) {
	alerts := router.Group("/api/alerts", c.authMiddleware.Authenticate())
	{
		alerts.GET("", c.ListAlerts)
		alerts.POST("", c.CreateAlert)
	}
}

type CreateAlertRequest struct {
	DeviceID         string   `json:"deviceId" binding:"required"`
	Name             string   `json:"name" binding:"required"`
	Pin              string   `json:"pin" binding:"required"`
	Condition        string   `json:"condition" binding:"required"`
	Threshold        *float64 `json:"threshold" binding:"required"`
	NotificationType []string `json:"notificationType"`
	Message          string   `json:"message"`
	CooldownMinutes  *int     `json:"cooldownMinutes"`
}

var knownChannels = map[string]bool{
	telemetry_models.ChannelDashboard: true,
	telemetry_models.ChannelEmail:     true,
	telemetry_models.ChannelSMS:       true,
}

func (c *AlertController) CreateAlert(ctx *gin.Context) {
	userID, role := caller(ctx)

	var req CreateAlertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, http.StatusBadRequest, "deviceId, name, pin, condition and threshold are required.")
		return
	}

	op, err := telemetry_models.ParseOperator(strings.TrimSpace(req.Condition))
	if err != nil {
		respondError(ctx, http.StatusBadRequest, "Invalid condition.")
		return
	}

	channels := req.NotificationType
	if len(channels) == 0 {
		channels = []string{telemetry_models.ChannelDashboard}
	}
	for _, ch := range channels {
		if !knownChannels[ch] {
			respondError(ctx, http.StatusBadRequest, "Invalid notification type: "+ch)
			return
		}
	}

	cooldown := telemetry_models.DefaultCooldownMinutes
	if req.CooldownMinutes != nil {
		if *req.CooldownMinutes < 1 {
			respondError(ctx, http.StatusBadRequest, "cooldownMinutes must be at least 1.")
			return
		}
		cooldown = *req.CooldownMinutes
	}

	device, err := c.authorizer.RequireDeviceAccess(ctx.Request.Context(), userID, role, req.DeviceID)
	if err != nil {
		deviceAccessError(ctx, c.logger, err)
		return
	}
	if !device.IsActive {
		respondError(ctx, http.StatusNotFound, "Device not found.")
		return
	}

	rule, err := c.ruleRepo.Create(ctx.Request.Context(), &telemetry_models.AlertRule{
		OwnerID:         userID,
		DeviceID:        device.DeviceID,
		Pin:             telemetry_models.NormalizePinName(req.Pin),
		Name:            strings.TrimSpace(req.Name),
		Condition:       op,
		Threshold:       *req.Threshold,
		Channels:        channels,
		CooldownMinutes: cooldown,
		Message:         req.Message,
		IsActive:        true,
		History:         []telemetry_models.TriggerEntry{},
	})
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("device_id", device.DeviceID).Msg("Failed to create alert rule")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Alert created.",
		"alert":   rule,
	})
}

func (c *AlertController) ListAlerts(ctx *gin.Context) {
	userID, _ := caller(ctx)

	rules, err := c.ruleRepo.ListByOwner(ctx.Request.Context(), userID)
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("owner_id", userID).Msg("Failed to list alert rules")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(rules),
		"alerts":  rules,
	})
}
