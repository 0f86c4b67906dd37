package store

import (
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
)

const (
	// Formats accepted by DateTime64(3) and DateTime columns in JSONEachRow
	timestampLayout = "2006-01-02 15:04:05.000"
	dayLayout       = "2006-01-02 15:04:05"
	// ClickHouse renders both column types without a zone
	readLayout = "2006-01-02 15:04:05.999999999"
)

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatDay(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(readLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}

	return t, nil
}

type transactionRow struct {
	TransactionID string   `json:"transaction_id"`
	StoreID       string   `json:"store_id"`
	ItemID        string   `json:"item_id"`
	Quantity      *float64 `json:"quantity"`
	UnitPrice     float64  `json:"unit_price"`
	Discount      *float64 `json:"discount"`
	Timestamp     string   `json:"timestamp"`
}

func newTransactionRow(tx pos.RawTransaction) transactionRow {
	return transactionRow{
		TransactionID: tx.TransactionID,
		StoreID:       tx.StoreID,
		ItemID:        tx.ItemID,
		Quantity:      tx.Quantity,
		UnitPrice:     tx.UnitPrice,
		Discount:      tx.Discount,
		Timestamp:     formatTimestamp(tx.Timestamp),
	}
}

func (r transactionRow) raw() (pos.RawRow, error) {
	ts, err := parseTime(r.Timestamp)
	if err != nil {
		return nil, err
	}

	return pos.RawTransaction{
		TransactionID: r.TransactionID,
		StoreID:       r.StoreID,
		ItemID:        r.ItemID,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice,
		Discount:      r.Discount,
		Timestamp:     ts,
	}.Row(), nil
}

type seriesRow struct {
	StoreID  string  `json:"store_id"`
	ItemID   string  `json:"item_id"`
	Day      string  `json:"day"`
	Quantity float64 `json:"quantity"`
	NetSales float64 `json:"net_sales"`
}

func newSeriesRow(p pos.DailySeriesPoint) seriesRow {
	return seriesRow{
		StoreID:  p.StoreID,
		ItemID:   p.ItemID,
		Day:      formatDay(p.Day),
		Quantity: p.Quantity,
		NetSales: p.NetSales,
	}
}

func (r seriesRow) point() (pos.DailySeriesPoint, error) {
	day, err := parseTime(r.Day)
	if err != nil {
		return pos.DailySeriesPoint{}, err
	}

	return pos.DailySeriesPoint{
		StoreID:  r.StoreID,
		ItemID:   r.ItemID,
		Day:      day,
		Quantity: r.Quantity,
		NetSales: r.NetSales,
	}, nil
}

type alertRow struct {
	StoreID       string   `json:"store_id"`
	ItemID        string   `json:"item_id"`
	Day           string   `json:"day"`
	AlertType     string   `json:"alert_type"`
	NetSales      *float64 `json:"net_sales"`
	ZScore        *float64 `json:"z_score"`
	Quantity      *float64 `json:"quantity"`
	StockQuantity *float64 `json:"stock_quantity"`
	Seq           uint32   `json:"seq"`
}

func newAlertRow(seq int, a pos.Alert) alertRow {
	return alertRow{
		StoreID:       a.StoreID,
		ItemID:        a.ItemID,
		Day:           formatDay(a.Day),
		AlertType:     string(a.AlertType),
		NetSales:      a.NetSales,
		ZScore:        a.ZScore,
		Quantity:      a.Quantity,
		StockQuantity: a.StockQuantity,
		Seq:           uint32(seq), //nolint:gosec // row index
	}
}

func (r alertRow) alert() (pos.Alert, error) {
	day, err := parseTime(r.Day)
	if err != nil {
		return pos.Alert{}, err
	}

	return pos.Alert{
		StoreID:       r.StoreID,
		ItemID:        r.ItemID,
		Day:           day,
		AlertType:     pos.AlertType(r.AlertType),
		NetSales:      r.NetSales,
		ZScore:        r.ZScore,
		Quantity:      r.Quantity,
		StockQuantity: r.StockQuantity,
	}, nil
}

type insightRow struct {
	StoreID   string `json:"store_id"`
	ItemID    string `json:"item_id"`
	Day       string `json:"day"`
	AlertType string `json:"alert_type"`
	Insight   string `json:"insight"`
}

func newInsightRow(in pos.InsightText) insightRow {
	return insightRow{
		StoreID:   in.StoreID,
		ItemID:    in.ItemID,
		Day:       formatDay(in.Day),
		AlertType: string(in.AlertType),
		Insight:   in.Text,
	}
}

func (r insightRow) insight() (pos.InsightText, error) {
	day, err := parseTime(r.Day)
	if err != nil {
		return pos.InsightText{}, err
	}

	return pos.InsightText{
		StoreID:   r.StoreID,
		ItemID:    r.ItemID,
		Day:       day,
		AlertType: pos.AlertType(r.AlertType),
		Text:      r.Insight,
	}, nil
}

type decisionRow struct {
	StoreID               string  `json:"store_id"`
	ItemID                string  `json:"item_id"`
	Day                   string  `json:"day"`
	AlertType             string  `json:"alert_type"`
	Insight               *string `json:"insight"`
	ReplenishmentQuantity float64 `json:"replenishment_quantity"`
	RecommendedAction     string  `json:"recommended_action"`
	Seq                   uint32  `json:"seq"`
}

func newDecisionRow(seq int, d pos.Decision) decisionRow {
	return decisionRow{
		StoreID:               d.StoreID,
		ItemID:                d.ItemID,
		Day:                   formatDay(d.Day),
		AlertType:             string(d.AlertType),
		Insight:               d.InsightText,
		ReplenishmentQuantity: d.ReplenishmentQuantity,
		RecommendedAction:     d.RecommendedAction,
		Seq:                   uint32(seq), //nolint:gosec // row index
	}
}

func (r decisionRow) decision() (pos.Decision, error) {
	day, err := parseTime(r.Day)
	if err != nil {
		return pos.Decision{}, err
	}

	return pos.Decision{
		StoreID:               r.StoreID,
		ItemID:                r.ItemID,
		Day:                   day,
		AlertType:             pos.AlertType(r.AlertType),
		InsightText:           r.Insight,
		ReplenishmentQuantity: r.ReplenishmentQuantity,
		RecommendedAction:     r.RecommendedAction,
	}, nil
}
