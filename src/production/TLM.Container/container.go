package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/health"
	config "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Config"
	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
	implementation "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/mongo"
)

// Repositories groups the stores used by the API service
type Repositories struct {
	Users      interfaces.UserRepository
	Devices    interfaces.DeviceRepository
	Pins       interfaces.PinRepository
	Readings   interfaces.ReadingRepository
	AlertRules interfaces.AlertRuleRepository
}

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger
	db     *sql.DB
	mongo  *mongo.Client

	repos         *Repositories
	healthChecker *health.HealthChecker

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions, run in reverse order on shutdown
	cleanupFuncs []func() error
}

// IngestorContainer manages dependencies for the MQTT Ingestor service
type IngestorContainer struct {
	config *config.IngestorConfig
	logger *logger.Logger
}

// ApiContainer manages dependencies for the API service
type ApiContainer struct {
	*Container
}

// NewIngestorContainer creates a new container for the MQTT Ingestor service
func NewIngestorContainer() (*IngestorContainer, error) {
	cfg, err := config.LoadIngestorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestor configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging).WithService("ingestor")

	return &IngestorContainer{
		config: cfg,
		logger: log,
	}, nil
}

// NewApiContainer creates a new container for the API service
func NewApiContainer() (*ApiContainer, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging).WithService("api")

	return &ApiContainer{Container: NewContainer(cfg, log)}, nil
}

// NewContainer builds a container from an already loaded configuration
func NewContainer(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config: cfg,
		logger: log,
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetConfig returns the ingestor configuration
func (c *IngestorContainer) GetConfig() *config.IngestorConfig {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetLogger returns the logger
func (c *IngestorContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase returns the PostgreSQL connection, dialing on first use
func (c *Container) GetDatabase() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databaseLocked()
}

func (c *Container) databaseLocked() (*sql.DB, error) {
	if c.db == nil {
		db, err := health.ConnectPostgresWithTimeout(c.config, 20*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.db = db
		c.cleanupFuncs = append(c.cleanupFuncs, db.Close)
	}
	return c.db, nil
}

// GetMongo returns the MongoDB client, dialing on first use
func (c *Container) GetMongo() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mongoLocked()
}

func (c *Container) mongoLocked() (*mongo.Client, error) {
	if c.mongo == nil {
		client, err := health.ConnectMongo(&c.config.Mongo)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		c.mongo = client
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
	}
	return c.mongo, nil
}

// GetRepositories wires the repositories for the configured storage driver.
// For postgres this also creates tables and Mongo indexes.
func (c *Container) GetRepositories(ctx context.Context) (*Repositories, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.repos != nil {
		return c.repos, nil
	}

	switch c.config.StorageDriver {
	case config.StorageDriverMemory:
		c.logger.Warn("Using in-memory storage; data is lost on restart")
		c.repos = &Repositories{
			Users:      implementation.NewMemoryUserRepository(),
			Devices:    implementation.NewMemoryDeviceRepository(),
			Pins:       implementation.NewMemoryPinRepository(),
			Readings:   implementation.NewMemoryReadingRepository(),
			AlertRules: implementation.NewMemoryAlertRuleRepository(),
		}
		c.healthChecker = health.NewHealthChecker(nil, nil)

	case config.StorageDriverPostgres:
		db, err := c.databaseLocked()
		if err != nil {
			return nil, err
		}
		if err := health.NewDatabaseManager(db).CreateTables(ctx); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}

		client, err := c.mongoLocked()
		if err != nil {
			return nil, err
		}
		coll := client.Database(c.config.Mongo.Database).Collection(c.config.Mongo.Collection)
		readings := implementation.NewMongoReadingRepository(coll)
		if err := readings.EnsureIndexes(ctx, c.config.Telemetry.ReadingRetention); err != nil {
			return nil, err
		}

		c.repos = &Repositories{
			Users:      implementation.NewPostgresUserRepository(db),
			Devices:    implementation.NewPostgresDeviceRepository(db),
			Pins:       implementation.NewPostgresPinRepository(db),
			Readings:   readings,
			AlertRules: implementation.NewPostgresAlertRuleRepository(db),
		}
		c.healthChecker = health.NewHealthChecker(db, client)
		c.logger.Info("Database initialized successfully")

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", c.config.StorageDriver)
	}

	return c.repos, nil
}

// GetHealthChecker returns the health checker; valid after GetRepositories
func (c *Container) GetHealthChecker() *health.HealthChecker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healthChecker == nil {
		return health.NewHealthChecker(nil, nil)
	}
	return c.healthChecker
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}

// Shutdown gracefully shuts down the ingestor container
func (c *IngestorContainer) Shutdown(ctx context.Context) error {
	c.logger.Info("Ingestor container shutdown complete")
	return nil
}
