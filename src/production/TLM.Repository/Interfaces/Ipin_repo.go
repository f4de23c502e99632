package interfaces

import (
	"context"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

// PinRepository is the pin state store. Pin names are expected to be normalized.
type PinRepository interface {
	// FindOrCreate returns the pin, auto-provisioning it with default metadata.
	// Concurrent first calls for the same (device, pin) yield a single record.
	FindOrCreate(ctx context.Context, deviceID, pin string) (*telemetry_models.VirtualPin, error)

	// UpsertCurrentValue provisions the pin if needed and overwrites its value unconditionally
	UpsertCurrentValue(ctx context.Context, deviceID, pin string, value float64, at time.Time) (*telemetry_models.VirtualPin, error)

	// ListActiveByDevice returns every active pin, including those never written
	ListActiveByDevice(ctx context.Context, deviceID string) ([]*telemetry_models.VirtualPin, error)
}
