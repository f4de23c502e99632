package interfaces

import (
	"context"
	"time"

	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
)

// ReadingRepository is the append-only time-series log
type ReadingRepository interface {
	Append(ctx context.Context, reading *telemetry_models.SensorReading) error

	// Query returns matching readings newest first, at most q.Limit of them
	Query(ctx context.Context, q telemetry_models.ReadingQuery) ([]telemetry_models.SensorReading, error)

	// PurgeBefore removes readings older than cutoff and reports how many were removed
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
