package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/health"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/realtime"
)

// HealthController handles liveness and readiness probes
type HealthController struct {
	checker *health.HealthChecker
	hub     *realtime.Hub
}

// NewHealthController creates a new health controller
func NewHealthController(checker *health.HealthChecker, hub *realtime.Hub) *HealthController {
	return &HealthController{
		checker: checker,
		hub:     hub,
	}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	status, healthy := c.checker.GetHealthStatus(checkCtx)
	status["connections"] = c.hub.ClientCount()

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, status)
}
