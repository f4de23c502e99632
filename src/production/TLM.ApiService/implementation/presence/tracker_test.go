package presence

import (
	"context"
	"testing"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	implementation "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Implementation"
)

func TestMarkSeenThenStatusFollowsClock(t *testing.T) {
	repo := implementation.NewMemoryDeviceRepository()
	ctx := context.Background()
	device, _ := repo.Create(ctx, &telemetry_models.Device{DeviceID: "D", AuthToken: "tok", IsActive: true})

	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	tracker := NewTracker(repo, 5*time.Minute).WithClock(func() time.Time { return now })

	if got := tracker.Status(device); got != telemetry_models.StatusOffline {
		t.Fatalf("never-seen device should be offline, got %s", got)
	}

	if err := tracker.MarkSeen(ctx, device); err != nil {
		t.Fatal(err)
	}

	now = now.Add(4 * time.Minute)
	stored, _ := repo.GetByDeviceID(ctx, "D")
	if got := tracker.Status(stored); got != telemetry_models.StatusOnline {
		t.Errorf("expected online 4 minutes after publish, got %s", got)
	}

	now = now.Add(2 * time.Minute)
	if got := tracker.Status(stored); got != telemetry_models.StatusOffline {
		t.Errorf("expected offline 6 minutes after publish, got %s", got)
	}
}

func TestMarkSeenUnknownDevice(t *testing.T) {
	tracker := NewTracker(implementation.NewMemoryDeviceRepository(), 0)
	if err := tracker.MarkSeen(context.Background(), &telemetry_models.Device{DeviceID: "ghost"}); err == nil {
		t.Fatal("expected error for unknown device")
	}
}
