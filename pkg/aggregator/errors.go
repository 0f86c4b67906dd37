package aggregator

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema is wrapped by every SchemaError
	ErrSchema = errors.New("schema error")
	// ErrInvalidBucket is returned when a bucket specification cannot be parsed
	ErrInvalidBucket = errors.New("invalid bucket")
	// ErrInvalidTimezone is returned when the configured timezone is unknown
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// SchemaError reports a raw row that is missing a required column or carries
// a value that cannot be cast to the column type
type SchemaError struct {
	Column string
	Row    int
	Value  any
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: row %d: missing required column %q", ErrSchema, e.Row, e.Column)
	}

	return fmt.Sprintf("%s: row %d: column %q value %v: %v", ErrSchema, e.Row, e.Column, e.Value, e.Err)
}

// Is reports ErrSchema as the error class
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
