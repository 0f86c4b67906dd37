// Package scheduler triggers pipeline runs on a cron schedule
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrScheduleRequired is returned when the scheduler is enabled without a schedule
	ErrScheduleRequired = errors.New("schedule is required")
	// ErrInvalidLease is returned when the leader lease cannot be renewed in time
	ErrInvalidLease = errors.New("renew interval must be positive and shorter than the lease TTL")
)

// Config defines scheduler configuration
type Config struct {
	Enabled bool `yaml:"enabled" default:"false"`
	// Schedule is a standard cron expression or descriptor such as "@daily"
	Schedule string `yaml:"schedule" default:"0 6 * * *"`
	Timezone string `yaml:"timezone" default:"UTC"`
	// Stages to run on every trigger, empty for every stage
	Stages []string `yaml:"stages"`
	// MinInterval suppresses a trigger that follows the last one too closely,
	// for example after a leader handover
	MinInterval   time.Duration `yaml:"minInterval" default:"1m"`
	LeaseTTL      time.Duration `yaml:"leaseTTL" default:"10s"`
	RenewInterval time.Duration `yaml:"renewInterval" default:"3s"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Schedule == "" {
		return ErrScheduleRequired
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.RenewInterval <= 0 || c.RenewInterval >= c.LeaseTTL {
		return ErrInvalidLease
	}

	return nil
}

// Location resolves the schedule timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return loc, nil
}
