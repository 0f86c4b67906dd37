package decision

import (
	"testing"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := NewEngine(logrus.New(), &Config{Window: 7, MinPeriods: 3, CoverageDays: 7})
	require.NoError(t, err)

	return e
}

func day(d int) time.Time {
	return time.Date(2024, time.February, d, 0, 0, 0, 0, time.UTC)
}

func quantities(store, item string, values ...float64) []pos.DailySeriesPoint {
	points := make([]pos.DailySeriesPoint, 0, len(values))
	for i, v := range values {
		points = append(points, pos.DailySeriesPoint{StoreID: store, ItemID: item, Day: day(i + 1), Quantity: v, NetSales: v * 2})
	}

	return points
}

func TestRecommendedAction(t *testing.T) {
	tests := []struct {
		name     string
		qty      *float64
		expected string
	}{
		{name: "undefined", qty: nil, expected: "No replenishment needed; monitor trend."},
		{name: "zero", qty: pos.Float(0), expected: "No replenishment needed; monitor trend."},
		{name: "negative", qty: pos.Float(-3), expected: "No replenishment needed; monitor trend."},
		{name: "whole", qty: pos.Float(135), expected: "Replenish 135 units and monitor promotion impact."},
		{name: "truncates", qty: pos.Float(12.99), expected: "Replenish 12 units and monitor promotion impact."},
		{name: "below one unit", qty: pos.Float(0.4), expected: "Replenish 0 units and monitor promotion impact."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RecommendedAction(tt.qty))
		})
	}
}

func TestStockProxy_UsesLatestDay(t *testing.T) {
	points := quantities("S1", "I1", 4, 9, 2)
	// Out of order input
	points[0], points[2] = points[2], points[0]

	stock := StockProxy(points)
	assert.Equal(t, 2.0, stock[pos.SeriesKey{StoreID: "S1", ItemID: "I1"}])
}

func TestReplenishment_Scenarios(t *testing.T) {
	key := pos.SeriesKey{StoreID: "S1", ItemID: "I1"}

	tests := []struct {
		name     string
		values   []float64
		stock    float64
		expected float64
		action   string
	}{
		{
			name:     "average 20 with stock 5",
			values:   []float64{20, 20, 20},
			stock:    5,
			expected: 135,
			action:   "Replenish 135 units and monitor promotion impact.",
		},
		{
			name:     "stock covers the target",
			values:   []float64{10, 10, 10, 10},
			stock:    75,
			expected: 0,
			action:   "No replenishment needed; monitor trend.",
		},
		{
			name:     "average 10 with stock 15",
			values:   []float64{10, 10, 10},
			stock:    15,
			expected: 55,
			action:   "Replenish 55 units and monitor promotion impact.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := quantities("S1", "I1", tt.values...)

			out, err := newEngine(t).Replenishment(points, map[pos.SeriesKey]float64{key: tt.stock})
			require.NoError(t, err)

			last := points[len(points)-1].PointKey()
			require.Contains(t, out, last)
			assert.InDelta(t, tt.expected, out[last], 1e-9)

			qty := out[last]
			assert.Equal(t, tt.action, RecommendedAction(&qty))
		})
	}
}

func TestReplenishment_ShortHistoryIsUndefined(t *testing.T) {
	points := quantities("S1", "I1", 50, 50)

	out, err := newEngine(t).Replenishment(points, StockProxy(points))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestBuildDecisions_OnePerAlert(t *testing.T) {
	points := append(quantities("S1", "I1", 10, 12, 30, 5), quantities("S2", "I2", 60)...)

	alerts := []pos.Alert{
		{StoreID: "S1", ItemID: "I1", Day: day(3), AlertType: pos.AlertTypeSalesSpike, NetSales: pos.Float(60), ZScore: pos.Float(2.1)},
		{StoreID: "S1", ItemID: "I1", Day: day(3), AlertType: pos.AlertTypeLowStockHighDemand, Quantity: pos.Float(30), StockQuantity: pos.Float(5)},
		{StoreID: "S2", ItemID: "I2", Day: day(1), AlertType: pos.AlertTypeSalesSpike},
		// No matching series point at all
		{StoreID: "S9", ItemID: "I9", Day: day(1), AlertType: pos.AlertTypeSalesSpike},
	}

	insights := []pos.InsightText{
		{StoreID: "S1", ItemID: "I1", Day: day(3), AlertType: pos.AlertTypeSalesSpike, Text: "promotion"},
		{StoreID: "S1", ItemID: "I1", Day: day(3), AlertType: pos.AlertTypeSalesSpike, Text: "duplicate"},
		{StoreID: "S2", ItemID: "I2", Day: day(2), AlertType: pos.AlertTypeSalesSpike, Text: "other day"},
	}

	decisions, err := newEngine(t).BuildDecisions(points, alerts, insights)
	require.NoError(t, err)
	require.Len(t, decisions, len(alerts))

	// S1/I1 day 3: avg(10,12,30) = 52/3, stock proxy = 5 (latest day)
	expected := 52.0/3.0*7 - 5

	spike := decisions[0]
	assert.Equal(t, pos.AlertTypeSalesSpike, spike.AlertType)
	require.NotNil(t, spike.InsightText)
	assert.Equal(t, "promotion", *spike.InsightText)
	assert.InDelta(t, expected, spike.ReplenishmentQuantity, 1e-9)
	assert.Equal(t, "Replenish 116 units and monitor promotion impact.", spike.RecommendedAction)

	lowStock := decisions[1]
	assert.Equal(t, pos.AlertTypeLowStockHighDemand, lowStock.AlertType)
	assert.Nil(t, lowStock.InsightText, "insight join includes the alert type")
	assert.InDelta(t, expected, lowStock.ReplenishmentQuantity, 1e-9)

	short := decisions[2]
	assert.Nil(t, short.InsightText)
	assert.Equal(t, 0.0, short.ReplenishmentQuantity)
	assert.Equal(t, ActionMonitor, short.RecommendedAction)

	missing := decisions[3]
	assert.Equal(t, "S9", missing.StoreID)
	assert.Equal(t, ActionMonitor, missing.RecommendedAction)
}

func TestBuildDecisions_Empty(t *testing.T) {
	decisions, err := newEngine(t).BuildDecisions(quantities("S1", "I1", 1, 2, 3), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, decisions)
	assert.Empty(t, decisions)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, (&Config{Window: 7, MinPeriods: 3, CoverageDays: 7}).Validate())
	assert.ErrorIs(t, (&Config{Window: 7, MinPeriods: 3, CoverageDays: 0}).Validate(), ErrInvalidCoverage)
	assert.Error(t, (&Config{Window: 2, MinPeriods: 3, CoverageDays: 7}).Validate())
}
