package rolling

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow_Validation(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		minPeriods int
		wantErr    bool
	}{
		{name: "valid", size: 7, minPeriods: 3},
		{name: "min periods equals size", size: 3, minPeriods: 3},
		{name: "zero size", size: 0, minPeriods: 1, wantErr: true},
		{name: "zero min periods", size: 7, minPeriods: 0, wantErr: true},
		{name: "min periods above size", size: 3, minPeriods: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWindow(tt.size, tt.minPeriods)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidWindow)
				assert.Nil(t, w)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, w)
		})
	}
}

func TestWindow_MinPeriods(t *testing.T) {
	w, err := NewWindow(7, 3)
	require.NoError(t, err)

	s := w.Push(1)
	assert.False(t, s.MeanOK)
	assert.False(t, s.StdOK)

	s = w.Push(2)
	assert.False(t, s.MeanOK)

	s = w.Push(3)
	assert.True(t, s.MeanOK)
	assert.True(t, s.StdOK)
	assert.InDelta(t, 2.0, s.Mean, 1e-12)
	assert.InDelta(t, 1.0, s.Std, 1e-12)
}

func TestWindow_Trailing(t *testing.T) {
	w, err := NewWindow(3, 1)
	require.NoError(t, err)

	for _, v := range []float64{100, 1, 2, 3} {
		w.Push(v)
	}

	// 100 has left the window
	s := w.Push(4)
	assert.Equal(t, 3, s.Count)
	assert.InDelta(t, 3.0, s.Mean, 1e-12)
	assert.InDelta(t, 1.0, s.Std, 1e-12)
}

func TestWindow_SingleValueHasNoStd(t *testing.T) {
	w, err := NewWindow(5, 1)
	require.NoError(t, err)

	s := w.Push(42)
	assert.True(t, s.MeanOK)
	assert.Equal(t, 42.0, s.Mean)
	assert.False(t, s.StdOK)
}

func TestWindow_ConstantValuesHaveZeroStd(t *testing.T) {
	for _, v := range []float64{10, 0.1, 1.0 / 3.0, -7.25, 1e15 + 0.3} {
		w, err := NewWindow(7, 3)
		require.NoError(t, err)

		var s Stats
		for i := 0; i < 10; i++ {
			s = w.Push(v)
		}

		assert.True(t, s.StdOK)
		assert.Equal(t, 0.0, s.Std, "value %v", v)
	}
}

func TestWindow_SampleStd(t *testing.T) {
	w, err := NewWindow(7, 3)
	require.NoError(t, err)

	var s Stats
	for _, v := range []float64{10, 10, 10, 10, 10, 10, 100} {
		s = w.Push(v)
	}

	// mean = 160/7, sample variance over 7 points
	mean := 160.0 / 7.0
	sq := 6*math.Pow(10-mean, 2) + math.Pow(100-mean, 2)
	assert.InDelta(t, mean, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(sq/6), s.Std, 1e-9)
}

func TestWindow_Reset(t *testing.T) {
	w, err := NewWindow(3, 2)
	require.NoError(t, err)

	w.Push(1)
	w.Push(2)
	w.Reset()

	s := w.Push(5)
	assert.Equal(t, 1, s.Count)
	assert.False(t, s.MeanOK)
}
