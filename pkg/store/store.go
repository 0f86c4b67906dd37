// Package store provides the table storage capability the pipeline stages
// read from and publish to
package store

import (
	"context"
	"errors"

	"github.com/ethpandaops/posintel/pkg/pos"
)

// Table names
const (
	TableTransactions = "transactions"
	TableStockLevels  = "stock_levels"
	TableDailySeries  = "daily_series"
	TableAlerts       = "alerts"
	TableInsights     = "insights"
	TableDecisions    = "decisions"
)

// ErrUnknownTable is returned for a table name the store does not manage
var ErrUnknownTable = errors.New("unknown table")

// Tables lists every managed table
//
//nolint:gochecknoglobals // Read-only table list
var Tables = []string{
	TableTransactions,
	TableStockLevels,
	TableDailySeries,
	TableAlerts,
	TableInsights,
	TableDecisions,
}

// Filter narrows reads to a store, an item or an alert type. Empty fields
// match everything.
type Filter struct {
	StoreID   string
	ItemID    string
	AlertType pos.AlertType
}

func (f Filter) match(storeID, itemID string, alertType pos.AlertType) bool {
	if f.StoreID != "" && f.StoreID != storeID {
		return false
	}

	if f.ItemID != "" && f.ItemID != itemID {
		return false
	}

	return f.AlertType == "" || f.AlertType == alertType
}

// Store reads and writes the pipeline tables. Replace writers publish the
// new rows as a whole: readers observe either the previous table or the new
// one, and a failed replace leaves the previous table in place.
type Store interface {
	// Transactions returns every raw transaction row
	Transactions(ctx context.Context) ([]pos.RawRow, error)
	// AppendTransactions appends raw transactions without deduplication
	AppendTransactions(ctx context.Context, txs []pos.RawTransaction) error

	StockLevels(ctx context.Context) ([]pos.StockLevel, error)
	ReplaceStockLevels(ctx context.Context, levels []pos.StockLevel) error

	DailySeries(ctx context.Context, filter Filter) ([]pos.DailySeriesPoint, error)
	ReplaceDailySeries(ctx context.Context, points []pos.DailySeriesPoint) error

	Alerts(ctx context.Context, filter Filter) ([]pos.Alert, error)
	ReplaceAlerts(ctx context.Context, alerts []pos.Alert) error

	Insights(ctx context.Context, filter Filter) ([]pos.InsightText, error)
	ReplaceInsights(ctx context.Context, insights []pos.InsightText) error

	Decisions(ctx context.Context, filter Filter) ([]pos.Decision, error)
	ReplaceDecisions(ctx context.Context, decisions []pos.Decision) error

	// Stores and Items list the distinct identifiers of the daily series
	Stores(ctx context.Context) ([]string, error)
	Items(ctx context.Context, storeID string) ([]string, error)
}
