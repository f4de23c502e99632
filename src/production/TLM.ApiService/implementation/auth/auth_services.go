package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	jwt "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/jwt"
	api_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/api"
	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("username or email already exists")
	ErrWeakPassword       = errors.New("password is too short")
)

// AuthService handles dashboard account registration and login
type AuthService struct {
	userRepo          interfaces.UserRepository
	jwtService        *jwt.Service
	passwordMinLength int
}

// NewAuthService creates a new auth service
func NewAuthService(userRepo interfaces.UserRepository, jwtService *jwt.Service, passwordMinLength int) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		jwtService:        jwtService,
		passwordMinLength: passwordMinLength,
	}
}

// Register creates a regular user and signs them in
func (s *AuthService) Register(ctx context.Context, req api_models.RegisterRequest) (*api_models.AuthResponse, error) {
	user, err := s.createUser(ctx, req.Username, req.Email, req.Password, auth_models.RoleUser)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login authenticates a user and returns tokens
func (s *AuthService) Login(ctx context.Context, req api_models.LoginRequest) (*api_models.AuthResponse, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Refresh exchanges a refresh token for a new pair
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*api_models.TokenPair, error) {
	return s.jwtService.RefreshTokens(ctx, refreshToken, s.userRepo)
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*auth_models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	if username == "" {
		return false, nil
	}

	_, err := s.userRepo.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return false, err
	}

	if _, err := s.createUser(ctx, username, email, password, auth_models.RoleAdmin); err != nil {
		return false, fmt.Errorf("create admin %s: %w", username, err)
	}
	return true, nil
}

func (s *AuthService) createUser(ctx context.Context, username, email, password, role string) (*auth_models.User, error) {
	if len(password) < s.passwordMinLength {
		return nil, ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := auth_models.NewUser(strings.TrimSpace(username), strings.ToLower(strings.TrimSpace(email)), string(hashed), role)
	created, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return created, nil
}

func (s *AuthService) issue(user *auth_models.User) (*api_models.AuthResponse, error) {
	pair, err := s.jwtService.GenerateTokens(user.UserID, user.Role)
	if err != nil {
		return nil, err
	}

	return &api_models.AuthResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		UserID:       user.UserID,
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
	}, nil
}
