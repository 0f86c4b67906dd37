package decision

import (
	"errors"

	"github.com/ethpandaops/posintel/pkg/rolling"
)

// ErrInvalidCoverage is returned when the coverage target is not positive
var ErrInvalidCoverage = errors.New("coverage days must be positive")

// Config controls the replenishment estimate
type Config struct {
	// Window and MinPeriods define the trailing average of daily quantity
	Window     int `yaml:"window" default:"7"`
	MinPeriods int `yaml:"minPeriods" default:"3"`
	// CoverageDays is the number of days of average demand the target stock covers
	CoverageDays float64 `yaml:"coverageDays" default:"7"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := rolling.Validate(c.Window, c.MinPeriods); err != nil {
		return err
	}

	if c.CoverageDays <= 0 {
		return ErrInvalidCoverage
	}

	return nil
}
