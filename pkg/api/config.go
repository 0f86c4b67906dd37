// Package api provides the REST API exposing the pipeline tables and run submission
package api

import "errors"

// ErrAPIAddrRequired is returned when API is enabled but no address is configured
var ErrAPIAddrRequired = errors.New("api address is required when API is enabled")

// Config represents API service configuration
type Config struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Addr    string `yaml:"addr" default:":8080"`
	// AllowOrigins lists the origins of presentation layers allowed to read the tables
	AllowOrigins []string `yaml:"allowOrigins" default:"[\"*\"]"`
}

// Validate validates the API configuration
func (c *Config) Validate() error {
	if c.Enabled && c.Addr == "" {
		return ErrAPIAddrRequired
	}

	return nil
}
