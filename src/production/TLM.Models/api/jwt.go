package api_models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds JWT configuration
type Config struct {
	SecretKey            string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	Issuer               string
}

// Token kinds; a token is only accepted where its kind matches
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// DashboardClaims are carried by both tokens of a pair. Subject is the user id
// and ID is shared by the access and refresh token issued together.
type DashboardClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"typ"`
	Role string `json:"role,omitempty"`
}

// TokenPair is returned on login, register and refresh
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}
