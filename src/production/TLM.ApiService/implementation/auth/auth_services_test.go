package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	jwt "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/jwt"
	api_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/api"
	auth_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/auth"
	implementation "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Implementation"
)

func newTestService() *AuthService {
	tokens := jwt.NewService(api_models.Config{
		SecretKey:            "test-secret",
		AccessTokenDuration:  time.Hour,
		RefreshTokenDuration: 24 * time.Hour,
		Issuer:               "test",
	})
	return NewAuthService(implementation.NewMemoryUserRepository(), tokens, 8)
}

func TestRegisterThenLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, api_models.RegisterRequest{Username: "alice", Email: "Alice@Example.com", Password: "password1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Role != auth_models.RoleUser || reg.Email != "alice@example.com" || reg.Token == "" {
		t.Errorf("unexpected register response %+v", reg)
	}

	login, err := svc.Login(ctx, api_models.LoginRequest{Username: "alice", Password: "password1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.UserID != reg.UserID {
		t.Errorf("expected user %s, got %s", reg.UserID, login.UserID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, api_models.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "password1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Login(ctx, api_models.LoginRequest{Username: "bob", Password: "wrong-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, api_models.LoginRequest{Username: "nobody", Password: "password1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterDuplicateAndWeakPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	req := api_models.RegisterRequest{Username: "carol", Email: "carol@example.com", Password: "password1"}
	if _, err := svc.Register(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, req); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}

	weak := api_models.RegisterRequest{Username: "dave", Email: "dave@example.com", Password: "short"}
	if _, err := svc.Register(ctx, weak); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "root", "root@example.com", "supersecret")
	if err != nil || !created {
		t.Fatalf("expected admin to be created, got %v %v", created, err)
	}
	created, err = svc.EnsureAdmin(ctx, "root", "root@example.com", "supersecret")
	if err != nil || created {
		t.Fatalf("expected second call to be a no-op, got %v %v", created, err)
	}

	login, err := svc.Login(ctx, api_models.LoginRequest{Username: "root", Password: "supersecret"})
	if err != nil {
		t.Fatal(err)
	}
	if login.Role != auth_models.RoleAdmin {
		t.Errorf("expected admin role, got %s", login.Role)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	reg, err := svc.Register(ctx, api_models.RegisterRequest{Username: "erin", Email: "erin@example.com", Password: "password1"})
	if err != nil {
		t.Fatal(err)
	}

	pair, err := svc.Refresh(ctx, reg.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.AccessToken == "" || pair.AccessToken == reg.Token {
		t.Error("expected a fresh access token")
	}
}
