package container

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	config "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Config"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
	implementation "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Implementation"
)

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger

	client   *mongo.Client
	database *mongo.Database

	// Mutex for thread-safe access
	mu sync.RWMutex

	// Cleanup functions
	cleanupFuncs []func(context.Context) error
}

// ApiContainer manages dependencies for the API service
type ApiContainer struct {
	*Container
}

// IngestorContainer manages dependencies for the MQTT Ingestor service
type IngestorContainer struct {
	config *config.IngestorConfig
	logger *logger.Logger
}

// NewIngestorContainer creates a new container for the MQTT Ingestor service
func NewIngestorContainer() (*IngestorContainer, error) {
	cfg, err := config.LoadIngestorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestor configuration: %w", err)
	}

	return &IngestorContainer{
		config: cfg,
		logger: logger.NewLogger(&cfg.Logging),
	}, nil
}

// GetConfig returns the ingestor configuration
func (c *IngestorContainer) GetConfig() *config.IngestorConfig {
	return c.config
}

// GetLogger returns the ingestor logger
func (c *IngestorContainer) GetLogger() *logger.Logger {
	return c.logger
}

// NewApiContainer creates a new container for the API service
func NewApiContainer() (*ApiContainer, error) {
	cfg, err := config.LoadApiConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging)

	return &ApiContainer{
		Container: &Container{
			config: cfg,
			logger: log,
		},
	}, nil
}

// GetConfig returns the application configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the application logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// InitializeDatabase connects to MongoDB and ensures the indexes the
// repositories rely on (unique username/email, bucket TTL).
func (c *Container) InitializeDatabase(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := implementation.Connect(ctx, c.config.Mongo.URI)
	if err != nil {
		return err
	}
	c.client = client
	c.database = client.Database(c.config.Mongo.Database)
	c.cleanupFuncs = append(c.cleanupFuncs, client.Disconnect)

	if err := implementation.EnsureIndexes(ctx, c.database); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	c.logger.WithField("database", c.config.Mongo.Database).Info("Connected to MongoDB")
	return nil
}

// GetClient returns the MongoDB client
func (c *Container) GetClient() (*mongo.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return c.client, nil
}

// GetDatabase returns the MongoDB database handle
func (c *Container) GetDatabase() (*mongo.Database, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.database == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return c.database, nil
}

// Shutdown runs all registered cleanup functions in reverse order
func (c *Container) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](ctx); err != nil {
			c.logger.ErrorWithError(err, "Cleanup failed")
		}
	}
	c.cleanupFuncs = nil
}
