package rbac

import (
	"context"
	"errors"
	"testing"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	implementation "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Implementation"
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	devices := implementation.NewMemoryDeviceRepository()
	if _, err := devices.Create(context.Background(), &telemetry_models.Device{
		DeviceID: "D1", Name: "Greenhouse", OwnerID: "owner", AuthToken: "tok", IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}
	return NewAuthorizer(NewService(), devices)
}

func TestRequireDeviceAccess(t *testing.T) {
	a := newTestAuthorizer(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		userID   string
		role     string
		deviceID string
		allowed  bool
	}{
		{"owner", "owner", "user", "D1", true},
		{"admin", "someone", "admin", "D1", true},
		{"stranger", "stranger", "user", "D1", false},
		{"unknown device", "owner", "user", "nope", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			device, err := a.RequireDeviceAccess(ctx, tc.userID, tc.role, tc.deviceID)
			if tc.allowed {
				if err != nil || device.DeviceID != tc.deviceID {
					t.Errorf("expected access, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrDeviceAccessDenied) {
				t.Errorf("expected ErrDeviceAccessDenied, got %v", err)
			}
		})
	}
}

func TestOwnsDeviceHasNoAdminBypass(t *testing.T) {
	a := newTestAuthorizer(t)
	ctx := context.Background()

	if ok, err := a.OwnsDevice(ctx, "owner", "D1"); err != nil || !ok {
		t.Errorf("owner should own D1: %v %v", ok, err)
	}
	if ok, _ := a.OwnsDevice(ctx, "admin-user", "D1"); ok {
		t.Error("non-owner must not own D1")
	}
	if ok, err := a.OwnsDevice(ctx, "owner", "missing"); err != nil || ok {
		t.Errorf("missing device: %v %v", ok, err)
	}
}
