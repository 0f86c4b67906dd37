package detection

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/posintel/pkg/rolling"
)

var (
	// ErrInvalidParallelism is returned when parallelism is not positive
	ErrInvalidParallelism = errors.New("parallelism must be positive")
	// ErrInvalidThreshold is returned when a rule threshold is negative
	ErrInvalidThreshold = errors.New("threshold must not be negative")
)

// Config holds the settings of every detection rule
type Config struct {
	// Parallelism bounds how many (store, item) series are scanned at once
	Parallelism int            `yaml:"parallelism" default:"1"`
	Spike       SpikeConfig    `yaml:"spike"`
	LowStock    LowStockConfig `yaml:"lowStock"`
}

// SpikeConfig configures the rolling z-score sales spike rule
type SpikeConfig struct {
	Window     int     `yaml:"window" default:"7"`
	MinPeriods int     `yaml:"minPeriods" default:"3"`
	Threshold  float64 `yaml:"threshold" default:"2.0"`
}

// LowStockConfig configures the low-stock/high-demand rule. The rule needs an
// external stock level table and only runs when enabled.
type LowStockConfig struct {
	Enabled         bool    `yaml:"enabled" default:"false"`
	StockThreshold  float64 `yaml:"stockThreshold" default:"10"`
	DemandThreshold float64 `yaml:"demandThreshold" default:"50"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Parallelism <= 0 {
		return ErrInvalidParallelism
	}

	if err := c.Spike.Validate(); err != nil {
		return fmt.Errorf("spike: %w", err)
	}

	return nil
}

// Validate checks the spike window and threshold
func (c *SpikeConfig) Validate() error {
	if err := rolling.Validate(c.Window, c.MinPeriods); err != nil {
		return err
	}

	if c.Threshold < 0 {
		return ErrInvalidThreshold
	}

	return nil
}
