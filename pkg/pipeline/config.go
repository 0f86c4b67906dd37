package pipeline

import (
	"errors"
	"time"

	"github.com/ethpandaops/posintel/pkg/aggregator"
	"github.com/ethpandaops/posintel/pkg/decision"
	"github.com/ethpandaops/posintel/pkg/detection"
)

// ErrInvalidLockTTL is returned when the stage lock TTL is not positive
var ErrInvalidLockTTL = errors.New("lock TTL must be positive")

// Config configures every stage of the pipeline
type Config struct {
	Aggregation aggregator.Config `yaml:"aggregation"`
	Detection   detection.Config  `yaml:"detection"`
	Decision    decision.Config   `yaml:"decision"`
	// LockTTL bounds how long a crashed run can hold a stage lock
	LockTTL time.Duration `yaml:"lockTTL" default:"30m"`
}

// Validate checks the configuration of every stage
func (c *Config) Validate() error {
	if err := c.Aggregation.Validate(); err != nil {
		return err
	}

	if err := c.Detection.Validate(); err != nil {
		return err
	}

	if err := c.Decision.Validate(); err != nil {
		return err
	}

	if c.LockTTL <= 0 {
		return ErrInvalidLockTTL
	}

	return nil
}
