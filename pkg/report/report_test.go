package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestWriteDecisionsCSV(t *testing.T) {
	insight := "Promotion, likely weekend"
	decisions := []pos.Decision{
		{StoreID: "S1", ItemID: "I1", Day: day(4), AlertType: pos.AlertTypeSalesSpike, InsightText: &insight, ReplenishmentQuantity: 135, RecommendedAction: "Replenish 135 units and monitor promotion impact."},
		{StoreID: "S2", ItemID: "I9", Day: day(5), AlertType: pos.AlertTypeLowStockHighDemand, RecommendedAction: "No replenishment needed; monitor trend."},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteDecisionsCSV(&buf, decisions))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, decisionColumns, records[0])
	assert.Equal(t, []string{"S1", "I1", "2024-03-04", "sales_spike", insight, "135", "Replenish 135 units and monitor promotion impact."}, records[1])
	assert.Equal(t, "", records[2][4])
	assert.Equal(t, "0", records[2][5])
}

func TestWriteAlertsCSV(t *testing.T) {
	alerts := []pos.Alert{
		{StoreID: "S1", ItemID: "I1", Day: day(4), AlertType: pos.AlertTypeSalesSpike, NetSales: pos.Float(250.5), ZScore: pos.Float(2.25)},
		{StoreID: "S1", ItemID: "I1", Day: day(4), AlertType: pos.AlertTypeLowStockHighDemand, Quantity: pos.Float(60), StockQuantity: pos.Float(8)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAlertsCSV(&buf, alerts))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"S1", "I1", "2024-03-04", "sales_spike", "250.5", "2.25", "", ""}, records[1])
	assert.Equal(t, []string{"S1", "I1", "2024-03-04", "low_stock_high_demand", "", "", "60", "8"}, records[2])
}

func TestWriteSeriesCSV(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	points := []pos.DailySeriesPoint{
		{StoreID: "S1", ItemID: "I1", Day: day(4), Quantity: 12, NetSales: 118.75},
		{StoreID: "S1", ItemID: "I1", Day: time.Date(2024, time.March, 5, 0, 0, 0, 0, kolkata), Quantity: 0, NetSales: -3.5},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSeriesCSV(&buf, points))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"store_id", "item_id", "day", "quantity", "net_sales"}, records[0])
	assert.Equal(t, []string{"S1", "I1", "2024-03-04", "12", "118.75"}, records[1])
	assert.Equal(t, []string{"S1", "I1", "2024-03-05", "0", "-3.5"}, records[2], "local midnight keeps its calendar day")
}

func TestWriteDecisionsCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDecisionsCSV(&buf, nil))
	assert.Equal(t, strings.Join(decisionColumns, ",")+"\n", buf.String())
}

func TestPrintDecisions(t *testing.T) {
	var buf bytes.Buffer
	err := PrintDecisions(&buf, []pos.Decision{
		{StoreID: "S1", ItemID: "I1", Day: day(4), AlertType: pos.AlertTypeSalesSpike, ReplenishmentQuantity: 12.5, RecommendedAction: "Replenish 12 units and monitor promotion impact."},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "STORE"))
	assert.Contains(t, lines[1], "2024-03-04")
	assert.Contains(t, lines[1], "12.5")
}

func TestPrintResult(t *testing.T) {
	result := &pipeline.Result{
		RunID:    "run-1",
		Duration: time.Second,
		Stages: []pipeline.StageResult{
			{Name: pipeline.StageAggregate, Status: pipeline.StatusSuccess, Rows: 10},
			{Name: pipeline.StageInsights, Status: pipeline.StatusSkipped},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintResult(&buf, result))

	out := buf.String()
	assert.Contains(t, out, "Run run-1 took 1s")
	assert.Contains(t, out, "aggregate")
	assert.Contains(t, out, "skipped")
}
