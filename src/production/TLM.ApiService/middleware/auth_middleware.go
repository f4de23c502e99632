package middleware

import (
	"errors"
	"net/http"
	"strings"

	jwt "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/rbac"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"

	"github.com/gin-gonic/gin"
)

// Key types for request context
type contextKey string

const (
	// Context keys
	UserIDContextKey   contextKey = "user_id"
	UserRoleContextKey contextKey = "user_role"
	TokenIDContextKey  contextKey = "token_id"
)

// AuthMiddleware provides middleware functions for authentication and authorization
type AuthMiddleware struct {
	jwtService  *jwt.Service
	rbacService *rbac.Service
	users       interfaces.UserRepository
	config      Config
}

// Config holds middleware configuration
type Config struct {
	// HTTP header names for tokens
	AccessTokenHeader string

	// Cookie names for tokens (optional alternative to headers)
	AccessTokenCookie string

	// Query parameter consulted last; browsers cannot set headers on websocket upgrades
	AccessTokenQuery string
}

// DefaultConfig returns a default middleware configuration
func DefaultConfig() Config {
	return Config{
		AccessTokenHeader: "Authorization",
		AccessTokenCookie: "access_token",
		AccessTokenQuery:  "token",
	}
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtService *jwt.Service, rbacService *rbac.Service, users interfaces.UserRepository, config Config) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService:  jwtService,
		rbacService: rbacService,
		users:       users,
		config:      config,
	}
}

// abortWithError writes the standard failure body
func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// bearer strips an optional "Bearer " prefix
func bearer(value string) string {
	if len(value) > 7 && strings.EqualFold(value[:7], "Bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return strings.TrimSpace(value)
}

// extractToken gets a token from the header, then the cookie, then the query string
func (m *AuthMiddleware) extractToken(r *http.Request) string {
	if token := bearer(r.Header.Get(m.config.AccessTokenHeader)); token != "" {
		return token
	}

	if m.config.AccessTokenCookie != "" {
		if cookie, err := r.Cookie(m.config.AccessTokenCookie); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	if m.config.AccessTokenQuery != "" {
		return r.URL.Query().Get(m.config.AccessTokenQuery)
	}
	return ""
}

// authenticate validates a token, reloads the account and stores the identity on
// the context. Deleted or deactivated accounts are rejected; the stored role wins
// over the role in the token.
func (m *AuthMiddleware) authenticate(c *gin.Context, token string) (int, string) {
	claims, err := m.jwtService.ValidateAccessToken(token)
	if err != nil {
		return http.StatusUnauthorized, "Invalid access token"
	}

	user, err := m.users.GetByID(c.Request.Context(), claims.Subject)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusUnauthorized, "User no longer exists"
	case err != nil:
		return http.StatusInternalServerError, "Server error."
	case !user.Active:
		return http.StatusUnauthorized, "Account is deactivated"
	}

	c.Set(string(UserIDContextKey), user.UserID)
	c.Set(string(UserRoleContextKey), user.Role)
	c.Set(string(TokenIDContextKey), claims.ID)
	return http.StatusOK, ""
}

// Authenticate middleware verifies the access token
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c.Request)
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		if status, msg := m.authenticate(c, token); status != http.StatusOK {
			abortWithError(c, status, msg)
			return
		}

		c.Next()
	}
}

// OptionalAuthenticate attaches an identity when a valid token is present.
// A missing token passes through; a bad one is rejected unless allowAnonymous.
func (m *AuthMiddleware) OptionalAuthenticate(allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c.Request)
		if token == "" {
			if !allowAnonymous {
				abortWithError(c, http.StatusUnauthorized, "Authentication required")
				return
			}
			c.Next()
			return
		}

		if status, msg := m.authenticate(c, token); status != http.StatusOK && !allowAnonymous {
			abortWithError(c, status, msg)
			return
		}

		c.Next()
	}
}

// RequireAdmin ensures the user has admin role. Must run after Authenticate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetRoleFromGinContext(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !m.rbacService.IsAdmin(role) {
			abortWithError(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// GetUserFromGinContext retrieves user ID from Gin context
func GetUserFromGinContext(c *gin.Context) (string, error) {
	userIDVal, exists := c.Get(string(UserIDContextKey))
	if !exists {
		return "", errors.New("user not found in context")
	}

	userID, ok := userIDVal.(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user ID format in context")
	}

	return userID, nil
}

// GetRoleFromGinContext retrieves user role from Gin context
func GetRoleFromGinContext(c *gin.Context) (string, error) {
	roleVal, exists := c.Get(string(UserRoleContextKey))
	if !exists {
		return "", errors.New("role not found in context")
	}

	role, ok := roleVal.(string)
	if !ok {
		return "", errors.New("invalid role format in context")
	}

	return role, nil
}
