package interfaces

import (
	"context"
	"encoding/json"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

type DeviceRepository interface {
	// Create registers a device; ErrDuplicate when the device id or token is taken
	Create(ctx context.Context, device *telemetry_models.Device) (*telemetry_models.Device, error)

	// Read devices
	GetByAuthToken(ctx context.Context, token string) (*telemetry_models.Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*telemetry_models.Device, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*telemetry_models.Device, error)

	// TouchLastSeen records an accepted publish
	TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error

	// UpdateLayout stores the opaque dashboard layout
	UpdateLayout(ctx context.Context, deviceID string, layout json.RawMessage) error
}
