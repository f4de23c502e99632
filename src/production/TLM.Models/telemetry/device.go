package telemetry_models

import (
	"encoding/json"
	"time"
)

// Presence values derived from LastSeen
const (
	StatusOnline   = "online"
	StatusOffline  = "offline"
	StatusInactive = "inactive"
)

// DefaultPresenceWindow is how recent LastSeen must be for a device to read as online
const DefaultPresenceWindow = 5 * time.Minute

// Device is a field device owned by a single user
type Device struct {
	ID              string          `json:"id" db:"id"`
	DeviceID        string          `json:"deviceId" db:"device_id"`
	Name            string          `json:"name" db:"name"`
	OwnerID         string          `json:"ownerId" db:"owner_id"`
	AuthToken       string          `json:"-" db:"auth_token"`
	IsActive        bool            `json:"isActive" db:"is_active"`
	LastSeen        *time.Time      `json:"lastSeen,omitempty" db:"last_seen"`
	DashboardLayout json.RawMessage `json:"dashboardLayout,omitempty" db:"dashboard_layout"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// Status derives presence at read time. A deactivated device is always inactive.
func (d *Device) Status(now time.Time, window time.Duration) string {
	if !d.IsActive {
		return StatusInactive
	}
	if IsOnline(d.LastSeen, now, window) {
		return StatusOnline
	}
	return StatusOffline
}

// IsOnline reports whether lastSeen falls inside the freshness window ending at now
func IsOnline(lastSeen *time.Time, now time.Time, window time.Duration) bool {
	if lastSeen == nil || lastSeen.IsZero() {
		return false
	}
	return now.Sub(*lastSeen) < window
}

// DeviceView is the device as returned to dashboards, with presence resolved
type DeviceView struct {
	DeviceID        string          `json:"deviceId"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	IsOnline        bool            `json:"isOnline"`
	LastSeen        *time.Time      `json:"lastSeen,omitempty"`
	DashboardLayout json.RawMessage `json:"dashboardLayout,omitempty"`
}

// View resolves presence against now
func (d *Device) View(now time.Time, window time.Duration) DeviceView {
	status := d.Status(now, window)
	return DeviceView{
		DeviceID:        d.DeviceID,
		Name:            d.Name,
		Status:          status,
		IsOnline:        status == StatusOnline,
		LastSeen:        d.LastSeen,
		DashboardLayout: d.DashboardLayout,
	}
}
