package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthChecker pings the stores the pipeline depends on. Nil stores are skipped.
type HealthChecker struct {
	db    *sql.DB
	mongo *mongo.Client
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(db *sql.DB, mongoClient *mongo.Client) *HealthChecker {
	return &HealthChecker{db: db, mongo: mongoClient}
}

// CheckDatabaseHealth runs a trivial query against PostgreSQL
func (h *HealthChecker) CheckDatabaseHealth(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}

	return nil
}

// CheckMongoHealth pings the primary
func (h *HealthChecker) CheckMongoHealth(ctx context.Context) error {
	if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}
	return nil
}

// GetHealthStatus returns the current health status and whether every check passed
func (h *HealthChecker) GetHealthStatus(ctx context.Context) (map[string]interface{}, bool) {
	checks := make(map[string]interface{})
	healthy := true

	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = map[string]interface{}{"status": "error", "error": err.Error()}
			return
		}
		checks[name] = map[string]interface{}{"status": "ok"}
	}

	if h.db != nil {
		record("postgres", h.CheckDatabaseHealth(ctx))
	}
	if h.mongo != nil {
		record("mongodb", h.CheckMongoHealth(ctx))
	}

	overallStatus := "ok"
	if !healthy {
		overallStatus = "degraded"
	}

	return map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
		"checks":    checks,
	}, healthy
}

// DatabaseManager handles database operations
type DatabaseManager struct {
	db *sql.DB
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(db *sql.DB) *DatabaseManager {
	return &DatabaseManager{db: db}
}

// ConnectPostgresWithTimeout creates a PostgreSQL connection with a timeout context
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectMongo dials MongoDB and verifies the connection
func ConnectMongo(cfg *config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return client, nil
}

// CreateTables creates the required tables if they don't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	createUsersTable := `
		CREATE TABLE IF NOT EXISTS users (
			user_id             TEXT PRIMARY KEY,
			username            TEXT NOT NULL UNIQUE,
			email               TEXT NOT NULL UNIQUE,
			password            TEXT NOT NULL,
			role                TEXT NOT NULL,
			active              BOOLEAN NOT NULL DEFAULT true,
			email_notifications BOOLEAN NOT NULL DEFAULT true,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createDevicesTable := `
		CREATE TABLE IF NOT EXISTS devices (
			id               TEXT PRIMARY KEY,
			device_id        TEXT NOT NULL UNIQUE,
			name             TEXT NOT NULL,
			owner_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			auth_token       TEXT NOT NULL UNIQUE,
			is_active        BOOLEAN NOT NULL DEFAULT true,
			last_seen        TIMESTAMPTZ,
			dashboard_layout JSONB,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createPinsTable := `
		CREATE TABLE IF NOT EXISTS virtual_pins (
			id            TEXT PRIMARY KEY,
			device_id     TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
			pin_name      TEXT NOT NULL,
			label         TEXT NOT NULL,
			sensor_type   TEXT NOT NULL DEFAULT 'custom',
			unit          TEXT NOT NULL DEFAULT '',
			min_value     DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_value     DOUBLE PRECISION NOT NULL DEFAULT 100,
			color         TEXT NOT NULL DEFAULT '#00d4ff',
			current_value DOUBLE PRECISION,
			last_updated  TIMESTAMPTZ,
			is_active     BOOLEAN NOT NULL DEFAULT true,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (device_id, pin_name)
		);
	`

	createAlertRulesTable := `
		CREATE TABLE IF NOT EXISTS alert_rules (
			id                TEXT PRIMARY KEY,
			owner_id          TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			device_id         TEXT NOT NULL REFERENCES devices(device_id) ON DELETE CASCADE,
			pin               TEXT NOT NULL,
			name              TEXT NOT NULL,
			condition         TEXT NOT NULL,
			threshold         DOUBLE PRECISION NOT NULL,
			channels          TEXT[] NOT NULL DEFAULT '{dashboard}',
			cooldown_minutes  INTEGER NOT NULL DEFAULT 5 CHECK (cooldown_minutes >= 1),
			message           TEXT NOT NULL DEFAULT '',
			is_active         BOOLEAN NOT NULL DEFAULT true,
			last_triggered_at TIMESTAMPTZ,
			trigger_count     INTEGER NOT NULL DEFAULT 0,
			trigger_history   JSONB NOT NULL DEFAULT '[]',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`

	createIndexes := `
		CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices (owner_id);
		CREATE INDEX IF NOT EXISTS idx_alert_rules_device_pin ON alert_rules (device_id, pin) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_alert_rules_owner ON alert_rules (owner_id);
	`

	queries := []string{
		createUsersTable,
		createDevicesTable,
		createPinsTable,
		createAlertRulesTable,
		createIndexes,
	}

	for _, query := range queries {
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}
