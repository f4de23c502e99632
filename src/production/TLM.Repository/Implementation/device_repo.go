package implementation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	telemetry_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/telemetry"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
)

const deviceColumns = `id, device_id, name, owner_id, auth_token, is_active, last_seen, dashboard_layout, created_at, updated_at`

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

// Create device
func (r *PostgresDeviceRepository) Create(ctx context.Context, device *telemetry_models.Device) (*telemetry_models.Device, error) {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query, device.ID, device.DeviceID, device.Name, device.OwnerID,
		device.AuthToken, device.IsActive, device.LastSeen, nullableJSON(device.DashboardLayout),
		device.CreatedAt, device.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, interfaces.ErrDuplicate
		}
		return nil, fmt.Errorf("insert device: %w", err)
	}

	return device, nil
}

// Read devices
func (r *PostgresDeviceRepository) GetByAuthToken(ctx context.Context, token string) (*telemetry_models.Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE auth_token = $1`, token)
}

func (r *PostgresDeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*telemetry_models.Device, error) {
	return r.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)
}

func (r *PostgresDeviceRepository) ListByOwner(ctx context.Context, ownerID string) ([]*telemetry_models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := make([]*telemetry_models.Device, 0)
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

// TouchLastSeen records an accepted publish
func (r *PostgresDeviceRepository) TouchLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen = $1, updated_at = now() WHERE device_id = $2`, at, deviceID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateLayout stores the dashboard layout
func (r *PostgresDeviceRepository) UpdateLayout(ctx context.Context, deviceID string, layout json.RawMessage) error {
	result, err := r.db.ExecContext(ctx, `UPDATE devices SET dashboard_layout = $1, updated_at = now() WHERE device_id = $2`,
		nullableJSON(layout), deviceID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *PostgresDeviceRepository) getOne(ctx context.Context, query string, arg interface{}) (*telemetry_models.Device, error) {
	device, err := scanDevice(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	return device, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*telemetry_models.Device, error) {
	var device telemetry_models.Device
	var lastSeen sql.NullTime
	var layout []byte

	if err := row.Scan(&device.ID, &device.DeviceID, &device.Name, &device.OwnerID, &device.AuthToken,
		&device.IsActive, &lastSeen, &layout, &device.CreatedAt, &device.UpdatedAt); err != nil {
		return nil, err
	}

	device.LastSeen = nullTimePtr(lastSeen)
	if len(layout) > 0 {
		device.DashboardLayout = json.RawMessage(layout)
	}
	return &device, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
