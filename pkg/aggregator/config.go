package aggregator

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BucketDay groups transactions by calendar day
	BucketDay = "day"
	// BucketWeek groups transactions by ISO week starting Monday
	BucketWeek = "week"
)

// Config controls how raw transactions are bucketed
type Config struct {
	// Bucket is "day", "week" or a Go duration such as "6h"
	Bucket   string `yaml:"bucket" default:"day"`
	Timezone string `yaml:"timezone" default:"UTC"`
}

// Validate checks the bucket and timezone can be resolved
func (c *Config) Validate() error {
	_, err := c.ResolveBucket()

	return err
}

// ResolveBucket parses the configured bucket in the configured timezone
func (c *Config) ResolveBucket() (Bucket, error) {
	loc := time.UTC

	if c.Timezone != "" {
		l, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return Bucket{}, fmt.Errorf("%w: %q: %w", ErrInvalidTimezone, c.Timezone, err)
		}

		loc = l
	}

	return ParseBucket(c.Bucket, loc)
}

type bucketKind int

const (
	kindDay bucketKind = iota
	kindWeek
	kindFixed
)

// Bucket maps timestamps onto the start of the fixed-width interval containing them
type Bucket struct {
	kind  bucketKind
	width time.Duration
	loc   *time.Location
}

// Daily is the default calendar-day bucket in UTC
//
//nolint:gochecknoglobals // Immutable default bucket
var Daily = Bucket{kind: kindDay, loc: time.UTC}

// ParseBucket parses a bucket specification. An empty spec means one day.
func ParseBucket(spec string, loc *time.Location) (Bucket, error) {
	if loc == nil {
		loc = time.UTC
	}

	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", BucketDay, "d", "1d":
		return Bucket{kind: kindDay, loc: loc}, nil
	case BucketWeek, "w", "1w":
		return Bucket{kind: kindWeek, loc: loc}, nil
	}

	width, err := time.ParseDuration(spec)
	if err != nil {
		return Bucket{}, fmt.Errorf("%w: %q", ErrInvalidBucket, spec)
	}

	if width <= 0 {
		return Bucket{}, fmt.Errorf("%w: %q must be positive", ErrInvalidBucket, spec)
	}

	return Bucket{kind: kindFixed, width: width, loc: loc}, nil
}

// Location returns the timezone buckets are aligned in
func (b Bucket) Location() *time.Location {
	if b.loc == nil {
		return time.UTC
	}

	return b.loc
}

// Start returns the start of the bucket containing t
func (b Bucket) Start(t time.Time) time.Time {
	loc := b.Location()
	local := t.In(loc)

	switch b.kind {
	case kindWeek:
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7

		return day.AddDate(0, 0, -offset)
	case kindFixed:
		// Widths up to a day restart at every local midnight, longer widths
		// count from local midnight of 1970-01-01
		origin := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		if b.width > 24*time.Hour {
			origin = time.Date(1970, time.January, 1, 0, 0, 0, 0, loc)
		}

		elapsed := t.Sub(origin)

		r := elapsed % b.width
		if r < 0 {
			r += b.width
		}

		return t.Add(-r).In(loc)
	default:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
}

func (b Bucket) String() string {
	switch b.kind {
	case kindWeek:
		return BucketWeek
	case kindFixed:
		return b.width.String()
	default:
		return BucketDay
	}
}
