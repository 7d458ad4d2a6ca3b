package repositories

import (
	"context"
	"fmt"
	"time"

	"chatgate/internal/core/ports"
	"chatgate/internal/infrastructure/distributed"
	"chatgate/internal/infrastructure/repositories/memory"
	redisrepo "chatgate/internal/infrastructure/repositories/redis"
	"chatgate/internal/infrastructure/repositories/sqlite"
	"chatgate/pkg/config"
	distlock "chatgate/pkg/distributed"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory picks the document store backend with fallback support
type RepositoryFactory struct {
	driver      string
	cfg         *config.Config
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to the configured backend. A redis backend
// that cannot be reached falls back to memory.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: cfg.Storage.Driver,
		cfg:    cfg,
		logger: logger,
	}

	if factory.driver == config.DriverRedis {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			cfg.Redis.Prefix,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory store",
				"error", err,
			)
			factory.driver = config.DriverMemory
		} else {
			factory.redisClient = client
		}
	}

	logger.Infow("document store selected", "driver", factory.driver)
	return factory, nil
}

func (f *RepositoryFactory) Driver() string {
	return f.driver
}

// CreateDocumentStore builds the store. For redis the returned start func
// relays remote writes and must run for the life of the server; it is nil
// for the other drivers.
func (f *RepositoryFactory) CreateDocumentStore() (ports.DocumentStore, func(ctx context.Context) error, error) {
	switch f.driver {
	case config.DriverRedis:
		bus := distributed.NewEventBus(f.redisClient, uuid.New().String(), f.cfg.Redis.Channel, f.logger)
		store := redisrepo.NewRedisDocumentStore(f.redisClient, bus, f.cfg.Redis.Prefix, f.logger)
		return store, store.Start, nil
	case config.DriverSQLite:
		store, err := sqlite.NewSQLiteDocumentStore(f.cfg.Storage.SQLitePath, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil, nil
	default:
		return memory.NewMemoryDocumentStore(), nil, nil
	}
}

// CreateLocker returns a Redis lock shared by every server when the store is
// Redis, and a process-local one otherwise.
func (f *RepositoryFactory) CreateLocker() ports.Locker {
	if f.redisClient != nil {
		return distlock.NewRedisLocker(f.redisClient, f.cfg.Redis.Prefix, 10*time.Second)
	}
	return distlock.NewLocalLocker()
}

// Close closes the Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
