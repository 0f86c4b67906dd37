package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	errNotNumeric   = errors.New("not numeric")
	errNotTimestamp = errors.New("not a timestamp")
	errMissing      = errors.New("missing value")
)

// toFloat casts a raw value. missing is true for nil, empty strings and NaN.
func toFloat(v any) (value float64, missing bool, err error) {
	switch x := v.(type) {
	case nil:
		return 0, true, nil
	case *float64:
		if x == nil {
			return 0, true, nil
		}
	case string:
		v = strings.TrimSpace(x)
		if v == "" {
			return 0, true, nil
		}
	}

	value, err = cast.ToFloat64E(v)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", errNotNumeric, err)
	}

	if math.IsNaN(value) {
		return 0, true, nil
	}

	return value, false, nil
}

func toString(v any) (string, error) {
	return cast.ToStringE(v)
}

// toTime reads zone-less strings in loc. Numbers are unix seconds and may
// carry a fractional part.
func toTime(v any, loc *time.Location) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, errMissing
	case *time.Time:
		if x == nil {
			return time.Time{}, errMissing
		}
	case float64:
		return unixSeconds(x), nil
	case json.Number:
		secs, err := x.Float64()
		if err != nil {
			return time.Time{}, errNotTimestamp
		}

		return unixSeconds(secs), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, errMissing
		}

		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			return unixSeconds(secs), nil
		}

		v = s
	}

	t, err := cast.ToTimeInDefaultLocationE(v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errNotTimestamp, err)
	}

	return t, nil
}

func unixSeconds(secs float64) time.Time {
	whole, frac := math.Modf(secs)

	return time.Unix(int64(whole), int64(frac*1e9))
}
