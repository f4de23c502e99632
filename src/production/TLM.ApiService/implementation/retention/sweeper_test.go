package retention

import (
	"context"
	"testing"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	implementation "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Implementation"
)

func TestSweepRemovesOnlyExpiredReadings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	readings := implementation.NewMemoryReadingRepository()

	ages := []time.Duration{91 * 24 * time.Hour, 89 * 24 * time.Hour, time.Hour}
	for i, age := range ages {
		if err := readings.Append(ctx, &telemetry_models.SensorReading{
			DeviceID: "D", Pin: "V0", Value: float64(i), Timestamp: now.Add(-age),
		}); err != nil {
			t.Fatal(err)
		}
	}

	sweeper := NewSweeper(readings, 90*24*time.Hour, time.Hour, logger.NewNop()).
		WithClock(func() time.Time { return now })

	if removed := sweeper.Sweep(ctx); removed != 1 {
		t.Fatalf("expected 1 reading purged, got %d", removed)
	}

	left, err := readings.Query(ctx, telemetry_models.ReadingQuery{DeviceID: "D", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 {
		t.Errorf("expected 2 readings retained, got %d", len(left))
	}
}

func TestStartStop(t *testing.T) {
	sweeper := NewSweeper(implementation.NewMemoryReadingRepository(), time.Hour, 10*time.Millisecond, logger.NewNop())
	sweeper.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
}

func TestZeroIntervalFallsBackToDefault(t *testing.T) {
	sweeper := NewSweeper(implementation.NewMemoryReadingRepository(), time.Hour, 0, logger.NewNop())
	if sweeper.interval != DefaultInterval {
		t.Fatalf("expected %v, got %v", DefaultInterval, sweeper.interval)
	}
	sweeper.Start(context.Background())
	sweeper.Stop()
}
