package middleware

import (
	"context"
	"errors"
	"net/http"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// DeviceContextKey holds the authenticated *telemetry_models.Device
const DeviceContextKey contextKey = "device"

// DeviceTokenHeader is the preferred header for device credentials
const DeviceTokenHeader = "X-Auth-Token"

// PresenceMarker refreshes a device's last-seen time
type PresenceMarker interface {
	MarkSeen(ctx context.Context, device *telemetry_models.Device) error
}

type deviceTokenBody struct {
	AuthToken string `json:"auth_token"`
}

// DeviceAuth authenticates field devices by their secret token.
// The token is read from X-Auth-Token, then a Bearer header, then the body's auth_token.
func DeviceAuth(devices interfaces.DeviceRepository, presence PresenceMarker, log *logger.Logger) gin.HandlerFunc {
	log = log.WithComponent("device_auth")

	return func(c *gin.Context) {
		token := c.GetHeader(DeviceTokenHeader)
		if token == "" {
			token = bearer(c.GetHeader("Authorization"))
		}
		if token == "" {
			// Caches the body under gin.BodyBytesKey for the handler
			var body deviceTokenBody
			if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
				token = body.AuthToken
			}
		}

		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "Device auth token required.")
			return
		}

		device, err := devices.GetByAuthToken(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, interfaces.ErrNotFound) {
				log.Logger.Error().Err(err).Msg("Device token lookup failed")
			}
			abortWithError(c, http.StatusUnauthorized, "Invalid or revoked device token.")
			return
		}
		if !device.IsActive {
			abortWithError(c, http.StatusUnauthorized, "Invalid or revoked device token.")
			return
		}

		// Presence is refreshed for every authenticated call, even if no pin is accepted
		if err := presence.MarkSeen(c.Request.Context(), device); err != nil {
			log.Logger.Warn().Err(err).Str("device_id", device.DeviceID).Msg("Failed to refresh last seen")
		}

		c.Set(string(DeviceContextKey), device)
		c.Next()
	}
}

// GetDeviceFromGinContext returns the device stored by DeviceAuth
func GetDeviceFromGinContext(c *gin.Context) (*telemetry_models.Device, error) {
	val, exists := c.Get(string(DeviceContextKey))
	if !exists {
		return nil, errors.New("device not found in context")
	}
	device, ok := val.(*telemetry_models.Device)
	if !ok {
		return nil, errors.New("invalid device in context")
	}
	return device, nil
}
