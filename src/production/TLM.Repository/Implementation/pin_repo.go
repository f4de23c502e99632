package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

const pinColumns = `id, device_id, pin_name, label, sensor_type, unit, min_value, max_value, color, current_value, last_updated, is_active, created_at`

// PostgresPinRepository relies on UNIQUE (device_id, pin_name) for race-free provisioning
type PostgresPinRepository struct {
	db *sql.DB
}

func NewPostgresPinRepository(db *sql.DB) *PostgresPinRepository {
	return &PostgresPinRepository{db: db}
}

// FindOrCreate inserts a default pin unless one exists, then reads back the winner
func (r *PostgresPinRepository) FindOrCreate(ctx context.Context, deviceID, pin string) (*telemetry_models.VirtualPin, error) {
	p := telemetry_models.NewAutoProvisionedPin(deviceID, pin)
	p.ID = uuid.New().String()

	query := `
		INSERT INTO virtual_pins (id, device_id, pin_name, label, sensor_type, unit, min_value, max_value, color, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (device_id, pin_name) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, p.ID, p.DeviceID, p.PinName, p.Label, p.SensorType, p.Unit,
		p.MinValue, p.MaxValue, p.Color, p.IsActive, p.CreatedAt); err != nil {
		return nil, fmt.Errorf("provision pin %s/%s: %w", deviceID, p.PinName, err)
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+pinColumns+` FROM virtual_pins WHERE device_id = $1 AND pin_name = $2`, deviceID, p.PinName)
	found, err := scanPin(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return found, nil
}

// UpsertCurrentValue provisions and overwrites in a single statement
func (r *PostgresPinRepository) UpsertCurrentValue(ctx context.Context, deviceID, pin string, value float64, at time.Time) (*telemetry_models.VirtualPin, error) {
	p := telemetry_models.NewAutoProvisionedPin(deviceID, pin)
	p.ID = uuid.New().String()

	query := `
		INSERT INTO virtual_pins (id, device_id, pin_name, label, sensor_type, unit, min_value, max_value, color, current_value, last_updated, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (device_id, pin_name)
		DO UPDATE SET current_value = EXCLUDED.current_value, last_updated = EXCLUDED.last_updated
		RETURNING ` + pinColumns

	row := r.db.QueryRowContext(ctx, query, p.ID, p.DeviceID, p.PinName, p.Label, p.SensorType, p.Unit,
		p.MinValue, p.MaxValue, p.Color, value, at, p.IsActive, p.CreatedAt)
	updated, err := scanPin(row)
	if err != nil {
		return nil, fmt.Errorf("update pin %s/%s: %w", deviceID, p.PinName, err)
	}
	return updated, nil
}

func (r *PostgresPinRepository) ListActiveByDevice(ctx context.Context, deviceID string) ([]*telemetry_models.VirtualPin, error) {
	query := `SELECT ` + pinColumns + ` FROM virtual_pins WHERE device_id = $1 AND is_active = true ORDER BY pin_name`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pins := make([]*telemetry_models.VirtualPin, 0)
	for rows.Next() {
		p, err := scanPin(rows)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pins, nil
}

func scanPin(row rowScanner) (*telemetry_models.VirtualPin, error) {
	var p telemetry_models.VirtualPin
	var current sql.NullFloat64
	var lastUpdated sql.NullTime

	if err := row.Scan(&p.ID, &p.DeviceID, &p.PinName, &p.Label, &p.SensorType, &p.Unit, &p.MinValue,
		&p.MaxValue, &p.Color, &current, &lastUpdated, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}

	p.CurrentValue = nullFloatPtr(current)
	p.LastUpdated = nullTimePtr(lastUpdated)
	return &p, nil
}
