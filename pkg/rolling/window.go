// Package rolling provides trailing-window statistics over ordered values
package rolling

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWindow is returned for a non-positive size or out-of-range min periods
var ErrInvalidWindow = errors.New("invalid rolling window")

// Stats describes the trailing window after a push. Mean is defined once the
// window holds at least min periods values; Std additionally needs two values.
type Stats struct {
	Count  int
	Mean   float64
	Std    float64
	MeanOK bool
	StdOK  bool
}

// Window keeps the last Size values pushed. It is not safe for concurrent use;
// each (store, item) series gets its own window.
type Window struct {
	size       int
	minPeriods int
	buf        []float64
	next       int
	count      int
}

// Validate checks a window size and min periods pair
func Validate(size, minPeriods int) error {
	if size < 1 {
		return fmt.Errorf("%w: size %d must be at least 1", ErrInvalidWindow, size)
	}

	if minPeriods < 1 || minPeriods > size {
		return fmt.Errorf("%w: min periods %d must be between 1 and %d", ErrInvalidWindow, minPeriods, size)
	}

	return nil
}

// NewWindow creates a window of the given size and min periods
func NewWindow(size, minPeriods int) (*Window, error) {
	if err := Validate(size, minPeriods); err != nil {
		return nil, err
	}

	return &Window{
		size:       size,
		minPeriods: minPeriods,
		buf:        make([]float64, size),
	}, nil
}

// Reset empties the window
func (w *Window) Reset() {
	w.next = 0
	w.count = 0
}

// Push adds v and returns the statistics of the trailing window including v
func (w *Window) Push(v float64) Stats {
	w.buf[w.next] = v
	w.next = (w.next + 1) % w.size

	if w.count < w.size {
		w.count++
	}

	return w.stats()
}

func (w *Window) values() []float64 {
	if w.count < w.size {
		return w.buf[:w.count]
	}

	return w.buf
}

func (w *Window) stats() Stats {
	s := Stats{Count: w.count}
	if w.count < w.minPeriods {
		return s
	}

	vals := w.values()

	lo, hi := vals[0], vals[0]
	sum := 0.0

	for _, v := range vals {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	s.Mean = sum / float64(w.count)
	s.MeanOK = !math.IsNaN(s.Mean) && !math.IsInf(s.Mean, 0)

	if w.count < 2 {
		return s
	}

	s.StdOK = true

	// Identical values have no spread; skip the subtraction so rounding in the
	// mean cannot leak a tiny non-zero deviation.
	if lo == hi {
		return s
	}

	sq := 0.0
	for _, v := range vals {
		d := v - s.Mean
		sq += d * d
	}

	s.Std = math.Sqrt(sq / float64(w.count-1))
	s.StdOK = s.MeanOK && !math.IsNaN(s.Std) && !math.IsInf(s.Std, 0)

	return s
}
