package controllers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/ingest"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/presence"
	rbac "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// Publisher runs one publish through the ingestion pipeline
type Publisher interface {
	Publish(ctx context.Context, device *telemetry_models.Device, req ingest.Request) ingest.Result
}

// DataController serves device publishes and the latest/history read paths
type DataController struct {
	publisher      Publisher
	pinRepo        interfaces.PinRepository
	readingRepo    interfaces.ReadingRepository
	authorizer     *rbac.Authorizer
	tracker        *presence.Tracker
	telemetry      config.TelemetryConfig
	logger         *logger.Logger
	authMiddleware *middleware.AuthMiddleware
	deviceAuth     gin.HandlerFunc
}

// NewDataController creates a new data controller
func NewDataController(
	publisher Publisher,
	pinRepo interfaces.PinRepository,
	readingRepo interfaces.ReadingRepository,
	authorizer *rbac.Authorizer,
	tracker *presence.Tracker,
	telemetry config.TelemetryConfig,
	logger *logger.Logger,
	authMiddleware *middleware.AuthMiddleware,
	deviceAuth gin.HandlerFunc,
) *DataController {
	return &DataController{
		publisher:      publisher,
		pinRepo:        pinRepo,
		readingRepo:    readingRepo,
		authorizer:     authorizer,
		tracker:        tracker,
		telemetry:      telemetry,
		logger:         logger.WithComponent("data_controller"),
		authMiddleware: authMiddleware,
		deviceAuth:     deviceAuth,
	}
}

// RegisterRoutes registers the data routes with Gin
func (c *DataController) RegisterRoutes(router *gin.Engine) {
	data := router.Group("/api/data")
	{
		// Device token auth
		data.POST("/publish", c.deviceAuth, c.Publish)

		// Dashboard reads, owner or admin
		data.GET("/latest/:deviceId", c.authMiddleware.Authenticate(), c.Latest)
		data.GET("/history/:deviceId", c.authMiddleware.Authenticate(), c.History)
	}
}

// requestBody returns the body cached by DeviceAuth, or reads it now
func requestBody(ctx *gin.Context) ([]byte, error) {
	if cached, ok := ctx.Get(gin.BodyBytesKey); ok {
		if body, ok := cached.([]byte); ok {
			return body, nil
		}
	}
	return ctx.GetRawData()
}

func (c *DataController) Publish(ctx *gin.Context) {
	device, err := middleware.GetDeviceFromGinContext(ctx)
	if err != nil {
		respondError(ctx, http.StatusUnauthorized, "Device auth token required.")
		return
	}

	body, err := requestBody(ctx)
	if err != nil {
		respondError(ctx, http.StatusBadRequest, "Unable to read request body.")
		return
	}

	req, err := ingest.ParseRequest(body)
	if err != nil {
		respondError(ctx, http.StatusBadRequest, payloadMessage(err))
		return
	}

	// A client hanging up must not abort a half-processed publish
	result := c.publisher.Publish(context.WithoutCancel(ctx.Request.Context()), device, req)

	ctx.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   fmt.Sprintf("Data published for %d pin(s).", len(result.Accepted)),
		"data":      result.Accepted,
		"timestamp": result.Timestamp,
	})
}

// payloadMessage turns "invalid payload: virtual_pins object is required" into a client message
func payloadMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), ingest.ErrInvalidPayload.Error()+": ")
	if msg == "" || msg == err.Error() {
		return "Invalid payload."
	}
	return msg + "."
}

func (c *DataController) Latest(ctx *gin.Context) {
	userID, role := caller(ctx)
	device, err := c.authorizer.RequireDeviceAccess(ctx.Request.Context(), userID, role, ctx.Param("deviceId"))
	if err != nil {
		deviceAccessError(ctx, c.logger, err)
		return
	}

	pins, err := c.pinRepo.ListActiveByDevice(ctx.Request.Context(), device.DeviceID)
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("device_id", device.DeviceID).Msg("Failed to list pins")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	latest := make([]telemetry_models.LatestPinValue, 0, len(pins))
	for _, p := range pins {
		latest = append(latest, p.Latest())
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":    true,
		"deviceId":   device.DeviceID,
		"deviceName": device.Name,
		"status":     c.tracker.Status(device),
		"lastSeen":   device.LastSeen,
		"data":       latest,
	})
}

func (c *DataController) History(ctx *gin.Context) {
	userID, role := caller(ctx)
	device, err := c.authorizer.RequireDeviceAccess(ctx.Request.Context(), userID, role, ctx.Param("deviceId"))
	if err != nil {
		deviceAccessError(ctx, c.logger, err)
		return
	}

	q := telemetry_models.ReadingQuery{
		DeviceID: device.DeviceID,
		Pin:      telemetry_models.NormalizePinName(ctx.Query("pin")),
	}
	if q.From, err = parseQueryTime(ctx.Query("from")); err != nil {
		respondError(ctx, http.StatusBadRequest, "Invalid 'from' timestamp.")
		return
	}
	if q.To, err = parseQueryTime(ctx.Query("to")); err != nil {
		respondError(ctx, http.StatusBadRequest, "Invalid 'to' timestamp.")
		return
	}

	requested, _ := strconv.Atoi(ctx.Query("limit"))
	q.Limit = telemetry_models.ClampLimit(requested, c.telemetry.HistoryDefaultLimit, c.telemetry.HistoryMaxLimit)

	readings, err := c.readingRepo.Query(ctx.Request.Context(), q)
	if err != nil {
		c.logger.Logger.Error().Err(err).Str("device_id", device.DeviceID).Msg("Failed to query readings")
		respondError(ctx, http.StatusInternalServerError, "Server error.")
		return
	}

	// Stored newest first so the limit keeps the most recent; charts want oldest first
	slices.Reverse(readings)

	ctx.JSON(http.StatusOK, gin.H{
		"success":  true,
		"deviceId": device.DeviceID,
		"count":    len(readings),
		"data":     readings,
	})
}

// parseQueryTime accepts RFC 3339 or a bare date; empty means unbounded
func parseQueryTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}
