package rbac

import (
	"context"
	"errors"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// ErrDeviceAccessDenied hides whether a device exists from callers that may not see it
var ErrDeviceAccessDenied = errors.New("device not found or access denied")

// Authorizer resolves owner-or-admin access to devices
type Authorizer struct {
	rbacService *Service
	devices     interfaces.DeviceRepository
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(rbacService *Service, devices interfaces.DeviceRepository) *Authorizer {
	return &Authorizer{
		rbacService: rbacService,
		devices:     devices,
	}
}

// IsOwner checks if user owns the device
func (a *Authorizer) IsOwner(userID string, device *telemetry_models.Device) bool {
	return userID != "" && device.OwnerID == userID
}

// RequireDeviceAccess loads the device if the caller owns it or is an admin.
// Unknown devices and foreign devices both yield ErrDeviceAccessDenied.
func (a *Authorizer) RequireDeviceAccess(ctx context.Context, userID, role, deviceID string) (*telemetry_models.Device, error) {
	device, err := a.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, ErrDeviceAccessDenied
		}
		return nil, err
	}

	if a.rbacService.IsAdmin(role) || a.IsOwner(userID, device) {
		return device, nil
	}
	return nil, ErrDeviceAccessDenied
}

// OwnsDevice reports strict ownership, used for websocket room subscriptions
func (a *Authorizer) OwnsDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	device, err := a.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.IsOwner(userID, device), nil
}
