// Package ingest loads point-of-sale exports into the raw transaction table
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
)

var (
	// ErrMissingColumn is returned when a required CSV column is absent
	ErrMissingColumn = errors.New("missing column")
	// ErrInvalidValue is returned when a CSV cell cannot be parsed
	ErrInvalidValue = errors.New("invalid value")
)

// Column aliases used by POS exports
//
//nolint:gochecknoglobals // Read-only alias table
var columnAliases = map[string]string{
	"sku":            pos.ColumnItemID,
	"qty":            pos.ColumnQuantity,
	"price":          pos.ColumnUnitPrice,
	"dt":             pos.ColumnTimestamp,
	"stock_qty":      "stock_quantity",
	"stock":          "stock_quantity",
	"transaction":    pos.ColumnTransactionID,
	"transaction_no": pos.ColumnTransactionID,
}

//nolint:gochecknoglobals // Read-only layout list
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// header maps canonical column names to their CSV index
type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	names, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	h := make(header, len(names))

	for i, name := range names {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}

		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}

	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	return h, nil
}

func (h header) cell(record []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(record) {
		return ""
	}

	return strings.TrimSpace(record[i])
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	return cr
}

// ReadCSV parses a transaction export. The header names the columns;
// sku, qty and price are accepted for item_id, quantity and unit_price.
// Empty quantity or discount cells, and a missing discount column, are kept
// as missing values. Timestamps without a zone are read in loc (UTC when
// nil).
func ReadCSV(r io.Reader, loc *time.Location) ([]pos.RawTransaction, error) {
	if loc == nil {
		loc = time.UTC
	}

	cr := newCSVReader(r)

	h, err := readHeader(cr,
		pos.ColumnTransactionID, pos.ColumnStoreID, pos.ColumnItemID,
		pos.ColumnQuantity, pos.ColumnUnitPrice, pos.ColumnTimestamp)
	if err != nil {
		return nil, err
	}

	var out []pos.RawTransaction

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		line, _ := cr.FieldPos(0)

		tx, err := parseTransaction(h, record, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		out = append(out, tx)
	}

	return out, nil
}

func parseTransaction(h header, record []string, loc *time.Location) (pos.RawTransaction, error) {
	tx := pos.RawTransaction{
		TransactionID: h.cell(record, pos.ColumnTransactionID),
		StoreID:       h.cell(record, pos.ColumnStoreID),
		ItemID:        h.cell(record, pos.ColumnItemID),
	}

	var err error

	if tx.Quantity, err = optionalFloat(h, record, pos.ColumnQuantity); err != nil {
		return tx, err
	}

	if tx.Discount, err = optionalFloat(h, record, pos.ColumnDiscount); err != nil {
		return tx, err
	}

	price, err := optionalFloat(h, record, pos.ColumnUnitPrice)
	if err != nil {
		return tx, err
	}

	if price == nil {
		return tx, fmt.Errorf("%w: %s is empty", ErrInvalidValue, pos.ColumnUnitPrice)
	}

	tx.UnitPrice = *price

	if tx.Timestamp, err = parseTimestamp(h.cell(record, pos.ColumnTimestamp), loc); err != nil {
		return tx, err
	}

	return tx, nil
}

func optionalFloat(h header, record []string, col string) (*float64, error) {
	s := h.cell(record, col)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return nil, nil //nolint:nilnil // missing value
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidValue, col, s)
	}

	return &v, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s is empty", ErrInvalidValue, pos.ColumnTimestamp)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, pos.ColumnTimestamp, s)
}

// ReadStockCSV parses a stock level export with store_id, item_id (or sku)
// and stock_quantity (or stock_qty) columns
func ReadStockCSV(r io.Reader) ([]pos.StockLevel, error) {
	cr := newCSVReader(r)

	h, err := readHeader(cr, pos.ColumnStoreID, pos.ColumnItemID, "stock_quantity")
	if err != nil {
		return nil, err
	}

	var out []pos.StockLevel

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}

		line, _ := cr.FieldPos(0)

		qty, err := optionalFloat(h, record, "stock_quantity")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		// Unknown stock is not a level of zero
		if qty == nil {
			continue
		}

		out = append(out, pos.StockLevel{
			StoreID:       h.cell(record, pos.ColumnStoreID),
			ItemID:        h.cell(record, pos.ColumnItemID),
			StockQuantity: *qty,
		})
	}

	return out, nil
}
