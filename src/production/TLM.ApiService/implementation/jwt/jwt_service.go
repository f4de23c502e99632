package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	api_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/api"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUserInactive = errors.New("user is inactive")
)

// Service issues and validates dashboard tokens
type Service struct {
	config api_models.Config
	now    func() time.Time
}

// NewService creates a new JWT service
func NewService(config api_models.Config) *Service {
	return &Service{
		config: config,
		now:    time.Now,
	}
}

// GenerateTokens creates an access token and a refresh token sharing one token id
func (s *Service) GenerateTokens(userID, role string) (*api_models.TokenPair, error) {
	tokenID := uuid.New().String()
	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenDuration)

	access, err := s.sign(api_models.DashboardClaims{
		RegisteredClaims: s.registered(userID, tokenID, now, expiresAt),
		Kind:             api_models.TokenKindAccess,
		Role:             role,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.sign(api_models.DashboardClaims{
		RegisteredClaims: s.registered(userID, tokenID, now, now.Add(s.config.RefreshTokenDuration)),
		Kind:             api_models.TokenKindRefresh,
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &api_models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt.Unix(),
	}, nil
}

func (s *Service) registered(subject, tokenID string, issued, expires time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        tokenID,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(issued),
		NotBefore: jwt.NewNumericDate(issued),
		Issuer:    s.config.Issuer,
	}
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.SecretKey))
}

// parse verifies signature, time window, issuer and token kind
func (s *Service) parse(tokenString, kind string) (*api_models.DashboardClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}

	claims := &api_models.DashboardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (s *Service) ValidateAccessToken(tokenString string) (*api_models.DashboardClaims, error) {
	return s.parse(tokenString, api_models.TokenKindAccess)
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (s *Service) ValidateRefreshToken(tokenString string) (*api_models.DashboardClaims, error) {
	return s.parse(tokenString, api_models.TokenKindRefresh)
}

// RefreshTokens issues a new pair for the refresh token's user, picking up role changes
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string, users interfaces.UserRepository) (*api_models.TokenPair, error) {
	claims, err := s.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", claims.Subject, err)
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	return s.GenerateTokens(user.UserID, user.Role)
}
