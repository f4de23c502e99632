package controllers

import (
	"github.com/gin-gonic/gin"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/realtime"
	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
)

// RealtimeController upgrades dashboard connections onto the hub
type RealtimeController struct {
	hub            *realtime.Hub
	cfg            config.RealtimeConfig
	authMiddleware *middleware.AuthMiddleware
}

// NewRealtimeController creates a new realtime controller
func NewRealtimeController(hub *realtime.Hub, cfg config.RealtimeConfig, authMiddleware *middleware.AuthMiddleware) *RealtimeController {
	return &RealtimeController{
		hub:            hub,
		cfg:            cfg,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers the websocket route with Gin
func (c *RealtimeController) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", c.authMiddleware.OptionalAuthenticate(c.cfg.AllowAnonymous), c.Connect)
}

func (c *RealtimeController) Connect(ctx *gin.Context) {
	// Empty for anonymous connections
	userID, _ := middleware.GetUserFromGinContext(ctx)
	realtime.ServeWs(c.hub, ctx.Writer, ctx.Request, userID, c.cfg.SendBuffer)
}
