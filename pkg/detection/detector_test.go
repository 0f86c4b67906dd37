package detection

import (
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	return &Config{
		Parallelism: 1,
		Spike:       SpikeConfig{Window: 7, MinPeriods: 3, Threshold: 2.0},
		LowStock:    LowStockConfig{Enabled: true, StockThreshold: 10, DemandThreshold: 50},
	}
}

func series(store, item string, values ...float64) []pos.DailySeriesPoint {
	points := make([]pos.DailySeriesPoint, 0, len(values))
	for i, v := range values {
		points = append(points, pos.DailySeriesPoint{
			StoreID:  store,
			ItemID:   item,
			Day:      time.Date(2024, time.January, i+1, 0, 0, 0, 0, time.UTC),
			Quantity: v,
			NetSales: v,
		})
	}

	return points
}

func TestDetectSpikes_SingleSpike(t *testing.T) {
	points := series("S1", "I1", 10, 10, 10, 10, 10, 10, 10, 100, 10, 10)

	alerts, err := DetectSpikes(points, defaultConfig().Spike)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, pos.AlertTypeSalesSpike, alert.AlertType)
	assert.Equal(t, 8, alert.Day.Day())
	require.NotNil(t, alert.NetSales)
	assert.Equal(t, 100.0, *alert.NetSales)
	require.NotNil(t, alert.ZScore)
	assert.GreaterOrEqual(t, *alert.ZScore, 2.0)
	assert.Nil(t, alert.Quantity)
	assert.Nil(t, alert.StockQuantity)
}

func TestDetectSpikes_ConstantSeriesNeverAlerts(t *testing.T) {
	for _, threshold := range []float64{0, 0.5, 2} {
		for _, v := range []float64{0, 10, 0.1, 1.0 / 3.0} {
			points := series("S1", "I1", v, v, v, v, v, v, v, v, v)
			cfg := SpikeConfig{Window: 7, MinPeriods: 3, Threshold: threshold}

			alerts, err := DetectSpikes(points, cfg)
			require.NoError(t, err)
			assert.Empty(t, alerts, "value %v threshold %v", v, threshold)
		}
	}
}

func TestDetectSpikes_InsufficientHistory(t *testing.T) {
	// Two points never reach min periods of 3
	points := series("S1", "I1", 1, 1000)

	alerts, err := DetectSpikes(points, SpikeConfig{Window: 7, MinPeriods: 3, Threshold: 0})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestDetectSpikes_SortsBeforeRolling(t *testing.T) {
	points := series("S1", "I1", 10, 10, 10, 10, 10, 10, 10, 100, 10, 10)
	shuffled := []pos.DailySeriesPoint{points[7], points[2], points[9], points[0], points[5], points[1], points[8], points[3], points[6], points[4]}

	alerts, err := DetectSpikes(shuffled, defaultConfig().Spike)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 8, alerts[0].Day.Day())
}

func TestDetectSpikes_GroupsAreIndependent(t *testing.T) {
	points := append(series("S1", "I1", 10, 10, 10), series("S1", "I2", 100, 100, 100)...)

	alerts, err := DetectSpikes(points, defaultConfig().Spike)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestDetectLowStockHighDemand(t *testing.T) {
	demand := append(series("S1", "I1", 60, 40), series("S2", "I2", 60)...)
	stock := []pos.StockLevel{
		{StoreID: "S1", ItemID: "I1", StockQuantity: 10},
		{StoreID: "S1", ItemID: "I1", StockQuantity: 999},
	}

	alerts := DetectLowStockHighDemand(demand, stock, defaultConfig().LowStock)
	require.Len(t, alerts, 1)

	assert.Equal(t, "S1", alerts[0].StoreID)
	assert.Equal(t, pos.AlertTypeLowStockHighDemand, alerts[0].AlertType)
	assert.Equal(t, 60.0, *alerts[0].Quantity)
	assert.Equal(t, 10.0, *alerts[0].StockQuantity)
	assert.Nil(t, alerts[0].ZScore)
}

func TestDetectLowStockHighDemand_MissingStockSuppresses(t *testing.T) {
	demand := series("S2", "I2", 60)

	alerts := DetectLowStockHighDemand(demand, nil, defaultConfig().LowStock)
	assert.Empty(t, alerts)
}

func TestDetector_Detect(t *testing.T) {
	points := series("S1", "I1", 10, 10, 10, 10, 10, 10, 10, 100, 10, 10)
	stock := []pos.StockLevel{{StoreID: "S1", ItemID: "I1", StockQuantity: 5}}

	t.Run("union of both rules", func(t *testing.T) {
		d, err := NewDetector(logrus.New(), defaultConfig())
		require.NoError(t, err)

		alerts, err := d.Detect(points, stock)
		require.NoError(t, err)
		require.Len(t, alerts, 2)

		// Both rules fire for day 8 and are kept as separate rows
		assert.Equal(t, pos.AlertTypeSalesSpike, alerts[0].AlertType)
		assert.Equal(t, pos.AlertTypeLowStockHighDemand, alerts[1].AlertType)
		assert.True(t, alerts[0].Day.Equal(alerts[1].Day))
	})

	t.Run("low stock disabled", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.LowStock.Enabled = false

		d, err := NewDetector(logrus.New(), cfg)
		require.NoError(t, err)

		alerts, err := d.Detect(points, stock)
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, pos.AlertTypeSalesSpike, alerts[0].AlertType)
	})
}

func TestDetector_ParallelMatchesSequential(t *testing.T) {
	var points []pos.DailySeriesPoint
	for i := 0; i < 25; i++ {
		values := []float64{5, 6, 5, 7, 5, 6, float64(40 + i), 5, 6, 5}
		points = append(points, series("S1", fmt.Sprintf("I%02d", i), values...)...)
	}

	sequential, err := NewDetector(logrus.New(), defaultConfig())
	require.NoError(t, err)

	cfg := defaultConfig()
	cfg.Parallelism = 8
	parallel, err := NewDetector(logrus.New(), cfg)
	require.NoError(t, err)

	want, err := sequential.Detect(points, nil)
	require.NoError(t, err)

	got, err := parallel.Detect(points, nil)
	require.NoError(t, err)

	require.Len(t, want, 25)
	assert.Equal(t, want, got)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(_ *Config) {}},
		{name: "zero parallelism", mutate: func(c *Config) { c.Parallelism = 0 }, wantErr: ErrInvalidParallelism},
		{name: "negative threshold", mutate: func(c *Config) { c.Spike.Threshold = -1 }, wantErr: ErrInvalidThreshold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
