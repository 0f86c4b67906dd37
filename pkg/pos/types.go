// Package pos defines the point-of-sale records that flow between pipeline stages
package pos

import (
	"time"
)

// Raw transaction column names
const (
	ColumnTransactionID = "transaction_id"
	ColumnStoreID       = "store_id"
	ColumnItemID        = "item_id"
	ColumnQuantity      = "quantity"
	ColumnUnitPrice     = "unit_price"
	ColumnDiscount      = "discount"
	ColumnTimestamp     = "timestamp"
)

// RawColumns lists every column a raw transaction row must carry
//
//nolint:gochecknoglobals // Read-only column list
var RawColumns = []string{
	ColumnTransactionID,
	ColumnStoreID,
	ColumnItemID,
	ColumnQuantity,
	ColumnUnitPrice,
	ColumnDiscount,
	ColumnTimestamp,
}

// AlertType identifies the detection rule that produced an alert
type AlertType string

const (
	// AlertTypeSalesSpike is emitted when net sales jump above the rolling z-score threshold
	AlertTypeSalesSpike AlertType = "sales_spike"
	// AlertTypeLowStockHighDemand is emitted when demand is high while stock is low
	AlertTypeLowStockHighDemand AlertType = "low_stock_high_demand"
)

// RawRow is a single raw transaction row as read from storage. Values are
// loosely typed; the aggregator coerces them.
type RawRow map[string]any

// RawTransaction is a typed transaction record written by the ingestion path.
// Missing quantity or discount values are nil.
type RawTransaction struct {
	TransactionID string    `json:"transaction_id"`
	StoreID       string    `json:"store_id"`
	ItemID        string    `json:"item_id"`
	Quantity      *float64  `json:"quantity"`
	UnitPrice     float64   `json:"unit_price"`
	Discount      *float64  `json:"discount"`
	Timestamp     time.Time `json:"timestamp"`
}

// Row converts the transaction into its raw storage representation
func (t RawTransaction) Row() RawRow {
	row := RawRow{
		ColumnTransactionID: t.TransactionID,
		ColumnStoreID:       t.StoreID,
		ColumnItemID:        t.ItemID,
		ColumnQuantity:      nil,
		ColumnUnitPrice:     t.UnitPrice,
		ColumnDiscount:      nil,
		ColumnTimestamp:     t.Timestamp,
	}

	if t.Quantity != nil {
		row[ColumnQuantity] = *t.Quantity
	}

	if t.Discount != nil {
		row[ColumnDiscount] = *t.Discount
	}

	return row
}

// Transaction is a cleaned transaction with all numeric fields resolved
type Transaction struct {
	TransactionID string
	StoreID       string
	ItemID        string
	Quantity      float64
	UnitPrice     float64
	Discount      float64
	NetSales      float64
	Timestamp     time.Time
}

// SeriesKey identifies a single (store, item) series
type SeriesKey struct {
	StoreID string
	ItemID  string
}

// PointKey identifies a single bucket of a (store, item) series
type PointKey struct {
	StoreID string
	ItemID  string
	Day     int64 // unix seconds of the bucket start
}

// NewPointKey builds a point key from its parts
func NewPointKey(storeID, itemID string, day time.Time) PointKey {
	return PointKey{StoreID: storeID, ItemID: itemID, Day: day.Unix()}
}

// DailySeriesPoint is the aggregated quantity and net sales of one bucket
type DailySeriesPoint struct {
	StoreID  string    `json:"store_id"`
	ItemID   string    `json:"item_id"`
	Day      time.Time `json:"day"`
	Quantity float64   `json:"quantity"`
	NetSales float64   `json:"net_sales"`
}

// SeriesKey returns the (store, item) key of the point
func (p DailySeriesPoint) SeriesKey() SeriesKey {
	return SeriesKey{StoreID: p.StoreID, ItemID: p.ItemID}
}

// PointKey returns the (store, item, day) key of the point
func (p DailySeriesPoint) PointKey() PointKey {
	return NewPointKey(p.StoreID, p.ItemID, p.Day)
}

// StockLevel is the on-hand stock of an item at a store
type StockLevel struct {
	StoreID       string  `json:"store_id"`
	ItemID        string  `json:"item_id"`
	StockQuantity float64 `json:"stock_quantity"`
}

// Alert is a single fired detection rule. Metric fields are only set by the
// rule that uses them.
type Alert struct {
	StoreID       string    `json:"store_id"`
	ItemID        string    `json:"item_id"`
	Day           time.Time `json:"day"`
	AlertType     AlertType `json:"alert_type"`
	NetSales      *float64  `json:"net_sales"`
	ZScore        *float64  `json:"z_score"`
	Quantity      *float64  `json:"quantity"`
	StockQuantity *float64  `json:"stock_quantity"`
}

// PointKey returns the (store, item, day) key of the alert
func (a Alert) PointKey() PointKey {
	return NewPointKey(a.StoreID, a.ItemID, a.Day)
}

// InsightKey returns the (store, item, day, alert type) key of the alert
func (a Alert) InsightKey() InsightKey {
	return InsightKey{PointKey: a.PointKey(), AlertType: a.AlertType}
}

// InsightKey identifies the insight text attached to one alert
type InsightKey struct {
	PointKey
	AlertType AlertType
}

// InsightText is the explanation generated for one alert
type InsightText struct {
	StoreID   string    `json:"store_id"`
	ItemID    string    `json:"item_id"`
	Day       time.Time `json:"day"`
	AlertType AlertType `json:"alert_type"`
	Text      string    `json:"insight"`
}

// InsightKey returns the join key of the insight
func (i InsightText) InsightKey() InsightKey {
	return InsightKey{PointKey: NewPointKey(i.StoreID, i.ItemID, i.Day), AlertType: i.AlertType}
}

// Decision is the recommended action for one alert
type Decision struct {
	StoreID               string    `json:"store_id"`
	ItemID                string    `json:"item_id"`
	Day                   time.Time `json:"day"`
	AlertType             AlertType `json:"alert_type"`
	InsightText           *string   `json:"insight"`
	ReplenishmentQuantity float64   `json:"replenishment_quantity"`
	RecommendedAction     string    `json:"recommended_action"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
