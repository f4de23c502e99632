package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	rbac "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/rbac"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
)

// respondError writes the standard failure body
func respondError(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"success": false, "message": message})
}

// caller returns the authenticated user id and role set by AuthMiddleware
func caller(ctx *gin.Context) (userID, role string) {
	userID, _ = middleware.GetUserFromGinContext(ctx)
	role, _ = middleware.GetRoleFromGinContext(ctx)
	return userID, role
}

// deviceAccessError maps an Authorizer failure; denied and missing look the same
func deviceAccessError(ctx *gin.Context, log *logger.Logger, err error) {
	if errors.Is(err, rbac.ErrDeviceAccessDenied) {
		respondError(ctx, http.StatusNotFound, "Device not found.")
		return
	}
	log.Logger.Error().Err(err).Msg("Device lookup failed")
	respondError(ctx, http.StatusInternalServerError, "Server error.")
}
