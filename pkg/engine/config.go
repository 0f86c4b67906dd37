// Package engine wires the posintel services together
package engine

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/posintel/pkg/api"
	"github.com/ethpandaops/posintel/pkg/clickhouse"
	"github.com/ethpandaops/posintel/pkg/insights"
	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/redis"
	"github.com/ethpandaops/posintel/pkg/scheduler"
	"github.com/ethpandaops/posintel/pkg/worker"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRedisURLRequired is returned when a Redis backed service is enabled without Redis
	ErrRedisURLRequired = errors.New("redis URL is required by the worker and the scheduler")
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Dependencies
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	Redis      redis.Config      `yaml:"redis"`

	// Pipeline stages
	Pipeline pipeline.Config `yaml:"pipeline"`
	Insights insights.Config `yaml:"insights"`

	// Services
	Scheduler scheduler.Config `yaml:"scheduler"`
	Worker    worker.Config    `yaml:"worker"`
	API       api.Config       `yaml:"api"`
}

// Validate validates the configuration. Redis is optional for one-shot runs;
// services that need it are checked by RequireRedis.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}

	if c.Redis.URL != "" {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}

	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}

	if err := c.Pipeline.Validate(); err != nil {
		return err
	}

	if err := c.Insights.Validate(); err != nil {
		return err
	}

	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	if err := c.Worker.Validate(); err != nil {
		return err
	}

	return c.API.Validate()
}

// RequireRedis checks Redis is configured when the worker or the scheduler runs
func (c *Config) RequireRedis() error {
	if (c.Worker.Enabled || c.Scheduler.Enabled) && c.Redis.URL == "" {
		return ErrRedisURLRequired
	}

	return nil
}
