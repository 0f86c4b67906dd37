package worker

import (
	"errors"
	"time"
)

var (
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)

// Config contains worker-specific settings
type Config struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// Concurrency bounds the pipeline runs processed at once. Stage locks
	// serialize runs of the same stage regardless.
	Concurrency     int           `yaml:"concurrency" default:"1"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"30s"`
	// TaskTimeout bounds a single pipeline run
	TaskTimeout time.Duration `yaml:"taskTimeout" default:"1h"`
	// Retention keeps completed runs inspectable through the API
	Retention time.Duration `yaml:"retention" default:"24h"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Enabled && c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
