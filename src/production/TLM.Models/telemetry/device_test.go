package telemetry_models

import (
	"testing"
	"time"
)

func TestDevicePresence(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fourAgo := now.Add(-4 * time.Minute)
	sixAgo := now.Add(-6 * time.Minute)

	cases := []struct {
		name     string
		device   Device
		expected string
	}{
		{"seen 4 minutes ago", Device{IsActive: true, LastSeen: &fourAgo}, StatusOnline},
		{"seen 6 minutes ago", Device{IsActive: true, LastSeen: &sixAgo}, StatusOffline},
		{"never seen", Device{IsActive: true}, StatusOffline},
		{"deactivated", Device{IsActive: false, LastSeen: &fourAgo}, StatusInactive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.device.Status(now, DefaultPresenceWindow); got != tc.expected {
				t.Errorf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestDeviceView(t *testing.T) {
	now := time.Now()
	seen := now.Add(-time.Minute)
	d := Device{DeviceID: "D", Name: "Greenhouse", IsActive: true, LastSeen: &seen}

	view := d.View(now, DefaultPresenceWindow)
	if !view.IsOnline || view.Status != StatusOnline {
		t.Errorf("expected online view, got %+v", view)
	}
}

func TestNormalizePinName(t *testing.T) {
	if got := NormalizePinName(" v0 "); got != "V0" {
		t.Errorf("expected V0, got %q", got)
	}
}

func TestNewAutoProvisionedPinDefaults(t *testing.T) {
	pin := NewAutoProvisionedPin("D", "v7")
	if pin.PinName != "V7" || pin.Label != "V7" {
		t.Errorf("unexpected name/label %q/%q", pin.PinName, pin.Label)
	}
	if pin.SensorType != DefaultSensorType || pin.Unit != "" || pin.Color != DefaultPinColor {
		t.Errorf("unexpected metadata %+v", pin)
	}
	if pin.CurrentValue != nil {
		t.Error("new pin should have no current value")
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct{ in, want int }{{0, 100}, {-3, 100}, {50, 50}, {5000, 1000}}
	for _, tc := range cases {
		if got := ClampLimit(tc.in, 100, 1000); got != tc.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
