// Package aggregator cleans raw transactions and aggregates them into a
// per-store, per-item bucketed sales series
package aggregator

import (
	"sort"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/sirupsen/logrus"
)

// Aggregator turns raw transaction rows into a daily series
type Aggregator struct {
	log    logrus.FieldLogger
	bucket Bucket
}

// New creates an aggregator from configuration
func New(log logrus.FieldLogger, cfg *Config) (*Aggregator, error) {
	bucket, err := cfg.ResolveBucket()
	if err != nil {
		return nil, err
	}

	return &Aggregator{
		log:    log.WithField("component", "aggregator"),
		bucket: bucket,
	}, nil
}

// Bucket returns the bucket the aggregator groups by
func (a *Aggregator) Bucket() Bucket {
	return a.bucket
}

// Run cleans rows and aggregates them into the series
func (a *Aggregator) Run(rows []pos.RawRow) ([]pos.DailySeriesPoint, error) {
	cleaned, err := Clean(rows, a.bucket.Location())
	if err != nil {
		return nil, err
	}

	if dropped := len(rows) - len(cleaned); dropped > 0 {
		a.log.WithField("duplicates", dropped).Debug("Dropped duplicate transactions")
	}

	series := Aggregate(cleaned, a.bucket)

	a.log.WithFields(logrus.Fields{
		"transactions": len(cleaned),
		"points":       len(series),
		"bucket":       a.bucket.String(),
	}).Info("Aggregated transactions")

	return series, nil
}

type dedupKey struct {
	transactionID string
	itemID        string
	timestamp     int64
}

// Clean validates and coerces raw rows, drops duplicate
// (transaction_id, item_id, timestamp) rows keeping the first, fills missing
// quantity and discount with zero and computes net sales. Timestamps without
// a zone are read in loc (UTC when nil).
func Clean(rows []pos.RawRow, loc *time.Location) ([]pos.Transaction, error) {
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[dedupKey]struct{}, len(rows))
	out := make([]pos.Transaction, 0, len(rows))

	for i, row := range rows {
		tx, err := cleanRow(i, row, loc)
		if err != nil {
			return nil, err
		}

		key := dedupKey{
			transactionID: tx.TransactionID,
			itemID:        tx.ItemID,
			timestamp:     tx.Timestamp.UnixNano(),
		}
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}

		out = append(out, tx)
	}

	return out, nil
}

func cleanRow(index int, row pos.RawRow, loc *time.Location) (pos.Transaction, error) {
	for _, column := range pos.RawColumns {
		if _, ok := row[column]; !ok {
			return pos.Transaction{}, &SchemaError{Column: column, Row: index}
		}
	}

	var (
		tx  pos.Transaction
		err error
	)

	ids := []struct {
		column string
		dest   *string
	}{
		{pos.ColumnTransactionID, &tx.TransactionID},
		{pos.ColumnStoreID, &tx.StoreID},
		{pos.ColumnItemID, &tx.ItemID},
	}
	for _, id := range ids {
		if *id.dest, err = toString(row[id.column]); err != nil {
			return pos.Transaction{}, &SchemaError{Column: id.column, Row: index, Value: row[id.column], Err: err}
		}
	}

	price, missing, err := toFloat(row[pos.ColumnUnitPrice])
	if err == nil && missing {
		err = errMissing
	}

	if err != nil {
		return pos.Transaction{}, &SchemaError{Column: pos.ColumnUnitPrice, Row: index, Value: row[pos.ColumnUnitPrice], Err: err}
	}

	quantity, _, err := toFloat(row[pos.ColumnQuantity])
	if err != nil {
		return pos.Transaction{}, &SchemaError{Column: pos.ColumnQuantity, Row: index, Value: row[pos.ColumnQuantity], Err: err}
	}

	discount, _, err := toFloat(row[pos.ColumnDiscount])
	if err != nil {
		return pos.Transaction{}, &SchemaError{Column: pos.ColumnDiscount, Row: index, Value: row[pos.ColumnDiscount], Err: err}
	}

	ts, err := toTime(row[pos.ColumnTimestamp], loc)
	if err != nil {
		return pos.Transaction{}, &SchemaError{Column: pos.ColumnTimestamp, Row: index, Value: row[pos.ColumnTimestamp], Err: err}
	}

	tx.UnitPrice = price
	tx.Quantity = quantity
	tx.Discount = discount
	tx.Timestamp = ts
	tx.NetSales = (price - discount) * quantity

	return tx, nil
}

type bucketSum struct {
	quantity float64
	netSales float64
}

// Aggregate sums quantity and net sales per (store, item, bucket). Buckets
// without transactions are not emitted. The result is ordered by
// (store_id, item_id, day).
func Aggregate(txs []pos.Transaction, bucket Bucket) []pos.DailySeriesPoint {
	// Summation order is fixed so repeated runs produce identical floats
	ordered := make([]pos.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}

		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}

		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}

		return a.TransactionID < b.TransactionID
	})

	sums := make(map[pos.PointKey]*bucketSum)
	starts := make(map[pos.PointKey]time.Time)
	keys := make([]pos.PointKey, 0)

	for _, tx := range ordered {
		start := bucket.Start(tx.Timestamp)
		key := pos.NewPointKey(tx.StoreID, tx.ItemID, start)

		sum, ok := sums[key]
		if !ok {
			sum = &bucketSum{}
			sums[key] = sum
			starts[key] = start

			keys = append(keys, key)
		}

		sum.quantity += tx.Quantity
		sum.netSales += tx.NetSales
	}

	series := make([]pos.DailySeriesPoint, 0, len(keys))
	for _, key := range keys {
		series = append(series, pos.DailySeriesPoint{
			StoreID:  key.StoreID,
			ItemID:   key.ItemID,
			Day:      starts[key],
			Quantity: sums[key].quantity,
			NetSales: sums[key].netSales,
		})
	}

	pos.SortSeries(series)

	return series
}
