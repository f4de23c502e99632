package presence

import (
	"context"
	"fmt"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

// Tracker records when devices were last seen and derives their status at read time
type Tracker struct {
	devices interfaces.DeviceRepository
	window  time.Duration
	now     func() time.Time
}

// NewTracker creates a tracker with the given freshness window
func NewTracker(devices interfaces.DeviceRepository, window time.Duration) *Tracker {
	if window <= 0 {
		window = telemetry_models.DefaultPresenceWindow
	}
	return &Tracker{
		devices: devices,
		window:  window,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// MarkSeen stamps the device as seen now, in storage and on the passed value
func (t *Tracker) MarkSeen(ctx context.Context, device *telemetry_models.Device) error {
	now := t.now()
	if err := t.devices.TouchLastSeen(ctx, device.DeviceID, now); err != nil {
		return fmt.Errorf("touch last seen for %s: %w", device.DeviceID, err)
	}
	device.LastSeen = &now
	return nil
}

// Status returns online, offline or inactive for the device as of now
func (t *Tracker) Status(device *telemetry_models.Device) string {
	return device.Status(t.now(), t.window)
}

// View projects the device with its presence resolved
func (t *Tracker) View(device *telemetry_models.Device) telemetry_models.DeviceView {
	return device.View(t.now(), t.window)
}
