package jwt

import (
	"errors"
	"testing"
	"time"

	api_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/api"
)

func newTestJWT() *Service {
	return NewService(api_models.Config{
		SecretKey:            "test-secret",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: time.Hour,
		Issuer:               "tlm-test",
	})
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newTestJWT()
	pair, err := svc.GenerateTokens("u1", "user")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "user" || claims.ID == "" {
		t.Errorf("unexpected claims %+v", claims)
	}

	refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
	if err != nil || refresh.Subject != "u1" || refresh.ID != claims.ID {
		t.Errorf("refresh token invalid: %v %+v", err, refresh)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	svc := newTestJWT()
	pair, err := svc.GenerateTokens("u1", "user")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := svc.ValidateRefreshToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token accepted as refresh token: %v", err)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	other := NewService(api_models.Config{SecretKey: "other", AccessTokenDuration: time.Minute, Issuer: "tlm-test"})
	pair, err := other.GenerateTokens("u1", "user")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := newTestJWT().ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	svc := newTestJWT()
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := svc.GenerateTokens("u1", "user")
	if err != nil {
		t.Fatal(err)
	}

	svc.now = time.Now
	if _, err := svc.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := newTestJWT().ValidateAccessToken("not-a-token"); err == nil {
		t.Error("expected error")
	}
}
