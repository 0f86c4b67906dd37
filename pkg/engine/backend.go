package engine

import (
	"context"
	"fmt"

	"github.com/ethpandaops/posintel/pkg/clickhouse"
	"github.com/ethpandaops/posintel/pkg/insights"
	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/store"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Backend holds the connections and the runner shared by the long running
// service and the one-shot CLI commands
type Backend struct {
	log logrus.FieldLogger

	ClickHouse clickhouse.ClientInterface
	Store      *store.ClickHouse
	// Redis is nil when no Redis URL is configured
	Redis  *goredis.Client
	Runner *pipeline.Runner
}

// NewBackend connects the clients described by cfg and builds the pipeline
// runner. Without Redis, stages are not locked and insights are not cached.
func NewBackend(log logrus.FieldLogger, cfg *Config) (*Backend, error) {
	b := &Backend{log: log.WithField("component", "backend")}

	chClient, err := clickhouse.NewClient(log, &cfg.ClickHouse)
	if err != nil {
		return nil, fmt.Errorf("failed to setup ClickHouse client: %w", err)
	}

	b.ClickHouse = chClient
	b.Store = store.NewClickHouse(log, chClient, cfg.ClickHouse.DatabaseName())

	var (
		locker pipeline.Locker
		cache  goredis.Cmdable
	)

	if cfg.Redis.URL != "" {
		opts, err := cfg.Redis.Options()
		if err != nil {
			return nil, err
		}

		b.Redis = goredis.NewClient(opts)
		locker = pipeline.NewRedisLocker(log, b.Redis, cfg.Redis.Prefix)
		cache = b.Redis
	}

	var generator *insights.Generator

	if cfg.Insights.Enabled {
		generator, err = insights.NewFromConfig(log, &cfg.Insights, cache, cfg.Redis.Prefix)
		if err != nil {
			b.closeRedis()
			return nil, fmt.Errorf("failed to create insight generator: %w", err)
		}
	}

	runner, err := pipeline.NewRunner(log, &cfg.Pipeline, generator, locker)
	if err != nil {
		b.closeRedis()
		return nil, err
	}

	b.Runner = runner

	return b, nil
}

// Start checks connectivity and creates the schema
func (b *Backend) Start(ctx context.Context) error {
	if err := b.ClickHouse.Start(); err != nil {
		return fmt.Errorf("failed to start ClickHouse client: %w", err)
	}

	if b.Redis != nil {
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach Redis: %w", err)
		}
	}

	if err := b.Store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// Close releases every connection
func (b *Backend) Close() error {
	b.closeRedis()

	return b.ClickHouse.Stop()
}

func (b *Backend) closeRedis() {
	if b.Redis == nil {
		return
	}

	if err := b.Redis.Close(); err != nil {
		b.log.WithError(err).Warn("Failed to close Redis client")
	}

	b.Redis = nil
}
