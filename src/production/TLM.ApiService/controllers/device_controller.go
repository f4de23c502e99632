package controllers

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/presence"
	rbac "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// LayoutPublisher announces dashboard layout changes to live subscribers
type LayoutPublisher interface {
	PublishLayout(event telemetry_models.LayoutUpdatedEvent)
}

// DeviceController handles device registration, listing and layout updates
type DeviceController struct {
	deviceRepo     interfaces.DeviceRepository
	authorizer     *rbac.Authorizer
	tracker        *presence.Tracker
	fanout         LayoutPublisher
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewDeviceController creates a new device controller
func NewDeviceController(deviceRepo interfaces.DeviceRepository, authorizer *rbac.Authorizer, tracker *presence.Tracker, fanout LayoutPublisher, logger *logger.Logger, authMiddleware *middleware.AuthMiddleware) *DeviceController {
	return &DeviceController{
		deviceRepo:     deviceRepo,
		authorizer:     authorizer,
		tracker:        tracker,
		fanout:         fanout,
		logger:         logger.WithComponent("device_controller"),
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the device routes with Gin
func (c *DeviceController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/api/devices", c.authMiddleware.Authenticate())
	{
		devices.GET("", c.ListDevices)
		devices.POST("", c.CreateDevice)
		devices.PUT("/:deviceId/layout", c.UpdateLayout)
	}
}

type CreateDeviceRequest struct {
	Name     string `json:"name" binding:"required"`
	DeviceID string `json:"deviceId"`
}

type UpdateLayoutRequest struct {
	DashboardLayout json.RawMessage `json:"dashboardLayout"`
}

// newAuthToken returns 32 random bytes as hex
func newAuthToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (c *DeviceController) CreateDevice(ctx *gin.Context) {
	userID, _ := caller(ctx)

	var req CreateDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		respondError(ctx, http.StatusBadRequest, "Device name is required.")
		return
	}

	token, err := newAuthToken()
	if err != nil {
		c.logger.Logger.Error().Err(err).Msg("Failed to generate device token")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		deviceID = uuid.New().String()
	}

	device, err := c.deviceRepo.Create(ctx.Request.Context(), &telemetry_models.Device{
		DeviceID:  deviceID,
		Name:      strings.TrimSpace(req.Name),
		OwnerID:   userID,
		AuthToken: token,
		IsActive:  true,
	})
	if err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			respondError(ctx, http.StatusConflict, "Device ID already exists.")
			return
		}
		c.logger.Logger.Error().Err(err).Str("device_id", deviceID).Msg("Failed to create device")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	c.logger.Logger.Info().Str("device_id", device.DeviceID).Str("owner_id", userID).Msg("Device registered")

	// The token is only ever shown here
	ctx.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "Device registered successfully.",
		"device":    c.tracker.View(device),
		"authToken": device.AuthToken,
	})
}

func (c *DeviceController) ListDevices(ctx *gin.Context) {
	userID, _ := caller(ctx)

	devices, err := c.deviceRepo.ListByOwner(ctx.Request.Context(), userID)
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("owner_id", userID).Msg("Failed to list devices")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	views := make([]telemetry_models.DeviceView, 0, len(devices))
	for _, d := range devices {
		views = append(views, c.tracker.View(d))
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(views),
		"devices": views,
	})
}

func (c *DeviceController) UpdateLayout(ctx *gin.Context) {
	userID, role := caller(ctx)
	device, err := c.authorizer.RequireDeviceAccess(ctx.Request.Context(), userID, role, ctx.Param("deviceId"))
	if err != nil {
		deviceAccessError(ctx, c.logger, err)
		return
	}

	var req UpdateLayoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, http.StatusBadRequest, "Invalid JSON body.")
		return
	}
	layout := bytes.TrimSpace(req.DashboardLayout)
	if len(layout) == 0 {
		respondError(ctx, http.StatusBadRequest, "dashboardLayout is required.")
		return
	}

	if err := c.deviceRepo.UpdateLayout(ctx.Request.Context(), device.DeviceID, layout); err != nil {
		c.logger.Logger.Error().Err(err).Str("device_id", device.DeviceID).Msg("Failed to update layout")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}
	device.DashboardLayout = layout

	c.fanout.PublishLayout(telemetry_models.LayoutUpdatedEvent{
		DeviceID:        device.DeviceID,
		DashboardLayout: layout,
	})

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Device updated.",
		"device":  c.tracker.View(device),
	})
}
