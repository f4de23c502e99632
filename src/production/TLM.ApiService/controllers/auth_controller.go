package controllers

import (
	"errors"
	"net/http"
	"time"

	service "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/auth"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	api_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/api"

	"github.com/gin-gonic/gin"
)

const refreshCookie = "refresh_token"

type AuthController struct {
	authService *service.AuthService
	logger      *logger.Logger
}

func NewAuthController(authService *service.AuthService, logger *logger.Logger) *AuthController {
	return &AuthController{
		authService: authService,
		logger:      logger.WithComponent("auth_controller"),
	}
}

func (h *AuthController) setRefreshCookie(c *gin.Context, token string, expiresAt int64) {
	c.SetCookie(
		refreshCookie,
		token,
		int(time.Until(time.Unix(expiresAt, 0)).Seconds()),
		"/",
		"",
		false,
		true,
	)
}

func (h *AuthController) Register(c *gin.Context) {
	var req api_models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username, a valid email and password are required.")
		return
	}

	response, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserExists):
			respondError(c, http.StatusConflict, "Username or email already registered.")
		case errors.Is(err, service.ErrWeakPassword):
			respondError(c, http.StatusBadRequest, "Password is too short.")
		default:
			h.logger.Logger.Error().Err(err).Msg("Registration failed")
			respondError(c, http.StatusInternalServerError, "Server error.")
		}
		return
	}

	h.setRefreshCookie(c, response.RefreshToken, response.ExpiresAt)
	c.JSON(http.StatusCreated, gin.H{"success": true, "auth": response})
}

func (h *AuthController) Login(c *gin.Context) {
	var req api_models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username and password are required.")
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "Invalid credentials.")
			return
		}
		h.logger.Logger.Error().Err(err).Msg("Login failed")
		respondError(c, http.StatusInternalServerError, "Server error.")
		return
	}

	h.setRefreshCookie(c, response.RefreshToken, response.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"success": true, "auth": response})
}

func (h *AuthController) RefreshTokens(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookie)
	if err != nil || refreshToken == "" {
		respondError(c, http.StatusUnauthorized, "Refresh token not found.")
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Invalid refresh token.")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, pair.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      pair.AccessToken,
		"expires_at": pair.ExpiresAt,
	})
}

func (h *AuthController) Me(c *gin.Context) {
	userID, err := middleware.GetUserFromGinContext(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, http.StatusNotFound, "User not found.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// RegisterRoutes registers the auth routes with Gin
func (h *AuthController) RegisterRoutes(router *gin.Engine, authMiddleware *middleware.AuthMiddleware) {
	// Public routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshTokens)
	}

	// Protected routes
	protected := auth.Group("", authMiddleware.Authenticate())
	{
		protected.GET("/me", h.Me)
	}
}
