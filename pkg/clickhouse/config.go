// Package clickhouse provides a ClickHouse HTTP interface client
package clickhouse

import (
	"errors"
	"os"
	"time"
)

// Static errors for configuration validation
var (
	ErrURLRequired      = errors.New("URL is required")
	ErrDatabaseRequired = errors.New("database is required")
)

// Config contains ClickHouse connection settings
type Config struct {
	URL           string        `yaml:"url" default:"http://localhost:8123"`
	Database      string        `yaml:"database" default:"posintel"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	QueryTimeout  time.Duration `yaml:"queryTimeout" default:"30s"`
	InsertTimeout time.Duration `yaml:"insertTimeout" default:"5m"`
	KeepAlive     time.Duration `yaml:"keepAlive" default:"30s"`
	Debug         bool          `yaml:"debug"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.Database == "" {
		return ErrDatabaseRequired
	}

	return nil
}

// SetDefaults fills unset timeouts
func (c *Config) SetDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}

	if c.InsertTimeout == 0 {
		c.InsertTimeout = 5 * time.Minute
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
}

// DatabaseName returns the physical database name. If POSINTEL_DATABASE_PREFIX
// is set it is prepended to the configured database, which keeps parallel
// test runs apart.
func (c *Config) DatabaseName() string {
	if prefix := os.Getenv("POSINTEL_DATABASE_PREFIX"); prefix != "" {
		return prefix + c.Database
	}

	return c.Database
}
