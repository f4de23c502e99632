package implementation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

func TestMemoryPinFindOrCreateConcurrentIsUnique(t *testing.T) {
	repo := NewMemoryPinRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := repo.FindOrCreate(ctx, "D", "v3")
			if err != nil {
				t.Errorf("FindOrCreate: %v", err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	if repo.Count() != 1 {
		t.Fatalf("expected exactly one pin, got %d", repo.Count())
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected every caller to see the same pin, got %q and %q", ids[0], id)
		}
	}
}

func TestMemoryPinUpsertOverwritesAndLists(t *testing.T) {
	repo := NewMemoryPinRepository()
	ctx := context.Background()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := repo.FindOrCreate(ctx, "D", "V1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.UpsertCurrentValue(ctx, "D", "V0", 10, t1); err != nil {
		t.Fatal(err)
	}
	// Older timestamp still wins: last writer
	if _, err := repo.UpsertCurrentValue(ctx, "D", "V0", 11, t1.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	pins, err := repo.ListActiveByDevice(ctx, "D")
	if err != nil {
		t.Fatal(err)
	}
	if len(pins) != 2 {
		t.Fatalf("expected 2 pins, got %d", len(pins))
	}
	if pins[0].PinName != "V0" || pins[0].CurrentValue == nil || *pins[0].CurrentValue != 11 {
		t.Errorf("unexpected V0 state %+v", pins[0])
	}
	if pins[1].PinName != "V1" || pins[1].CurrentValue != nil {
		t.Errorf("expected V1 never written, got %+v", pins[1])
	}
}

func TestMemoryReadingQueryAndPurge(t *testing.T) {
	repo := NewMemoryReadingRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_ = repo.Append(ctx, &telemetry_models.SensorReading{DeviceID: "D", Pin: "V0", Value: float64(i), Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}
	_ = repo.Append(ctx, &telemetry_models.SensorReading{DeviceID: "E", Pin: "V0", Value: 99, Timestamp: base})

	got, err := repo.Query(ctx, telemetry_models.ReadingQuery{DeviceID: "D", Pin: "V0", Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Value != 4 || got[2].Value != 2 {
		t.Fatalf("expected newest three readings, got %+v", got)
	}

	removed, err := repo.PurgeBefore(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("expected 3 purged readings, got %d", removed)
	}

	got, _ = repo.Query(ctx, telemetry_models.ReadingQuery{DeviceID: "D"})
	if len(got) != 3 {
		t.Errorf("expected 3 readings left for D, got %d", len(got))
	}
}

func TestMemoryAlertRuleRecordTriggerIsConditional(t *testing.T) {
	repo := NewMemoryAlertRuleRepository()
	ctx := context.Background()
	rule, _ := repo.Create(ctx, &telemetry_models.AlertRule{DeviceID: "D", Pin: "V0", IsActive: true, Condition: telemetry_models.OpGreater})

	first, _ := repo.ListActive(ctx, "D", "V0")
	second, _ := repo.ListActive(ctx, "D", "V0")
	now := time.Now()

	first[0].RecordTrigger(now, 1)
	if err := repo.RecordTrigger(ctx, first[0], nil); err != nil {
		t.Fatalf("first trigger: %v", err)
	}

	second[0].RecordTrigger(now, 2)
	if err := repo.RecordTrigger(ctx, second[0], nil); !errors.Is(err, interfaces.ErrStaleTrigger) {
		t.Fatalf("expected ErrStaleTrigger, got %v", err)
	}

	stored, _ := repo.ListActive(ctx, "D", rule.Pin)
	if stored[0].TriggerCount != 1 {
		t.Errorf("expected trigger count 1, got %d", stored[0].TriggerCount)
	}
}

func TestMemoryDeviceTouchAndLookup(t *testing.T) {
	repo := NewMemoryDeviceRepository()
	ctx := context.Background()
	if _, err := repo.Create(ctx, &telemetry_models.Device{DeviceID: "D", AuthToken: "tok", OwnerID: "u1", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Create(ctx, &telemetry_models.Device{DeviceID: "D", AuthToken: "other"}); !errors.Is(err, interfaces.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	seen := time.Now().UTC()
	if err := repo.TouchLastSeen(ctx, "D", seen); err != nil {
		t.Fatal(err)
	}
	device, err := repo.GetByAuthToken(ctx, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if device.LastSeen == nil || !device.LastSeen.Equal(seen) {
		t.Errorf("expected last seen %v, got %v", seen, device.LastSeen)
	}
	if _, err := repo.GetByAuthToken(ctx, "nope"); !errors.Is(err, interfaces.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
