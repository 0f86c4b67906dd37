package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethpandaops/posintel/pkg/pos"
)

// Memory keeps every table in process memory. Reads and writes copy their
// rows, including pointer fields, so callers never share state with the store.
type Memory struct {
	mu sync.RWMutex

	transactions []pos.RawRow
	stock        []pos.StockLevel
	series       []pos.DailySeriesPoint
	alerts       []pos.Alert
	insights     []pos.InsightText
	decisions    []pos.Decision
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{}
}

// AppendRawRows appends loosely typed rows, for example rows read from a
// source that does not go through the typed ingestion path
func (m *Memory) AppendRawRows(rows []pos.RawRow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		m.transactions = append(m.transactions, copyRow(row))
	}
}

// Transactions returns copies of every raw row in insertion order
func (m *Memory) Transactions(_ context.Context) ([]pos.RawRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pos.RawRow, 0, len(m.transactions))
	for _, row := range m.transactions {
		out = append(out, copyRow(row))
	}

	return out, nil
}

// AppendTransactions appends typed transactions without deduplicating
func (m *Memory) AppendTransactions(_ context.Context, txs []pos.RawTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range txs {
		m.transactions = append(m.transactions, tx.Row())
	}

	return nil
}

// StockLevels returns the current stock snapshot
func (m *Memory) StockLevels(_ context.Context) ([]pos.StockLevel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return clone(m.stock), nil
}

// ReplaceStockLevels swaps the stock snapshot
func (m *Memory) ReplaceStockLevels(_ context.Context, levels []pos.StockLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stock = clone(levels)

	return nil
}

// DailySeries returns the series points matching filter
func (m *Memory) DailySeries(_ context.Context, filter Filter) ([]pos.DailySeriesPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pos.DailySeriesPoint, 0, len(m.series))
	for _, p := range m.series {
		if filter.match(p.StoreID, p.ItemID, "") {
			out = append(out, p)
		}
	}

	return out, nil
}

// ReplaceDailySeries swaps the daily series table
func (m *Memory) ReplaceDailySeries(_ context.Context, points []pos.DailySeriesPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.series = clone(points)

	return nil
}

// Alerts returns deep copies of the alerts matching filter
func (m *Memory) Alerts(_ context.Context, filter Filter) ([]pos.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pos.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.match(a.StoreID, a.ItemID, a.AlertType) {
			out = append(out, copyAlert(a))
		}
	}

	return out, nil
}

// ReplaceAlerts swaps the alerts table
func (m *Memory) ReplaceAlerts(_ context.Context, alerts []pos.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alerts = cloneWith(alerts, copyAlert)

	return nil
}

// Insights returns the insight texts matching filter
func (m *Memory) Insights(_ context.Context, filter Filter) ([]pos.InsightText, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pos.InsightText, 0, len(m.insights))
	for _, in := range m.insights {
		if filter.match(in.StoreID, in.ItemID, in.AlertType) {
			out = append(out, in)
		}
	}

	return out, nil
}

// ReplaceInsights swaps the insights table
func (m *Memory) ReplaceInsights(_ context.Context, insights []pos.InsightText) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insights = clone(insights)

	return nil
}

// Decisions returns deep copies of the decisions matching filter
func (m *Memory) Decisions(_ context.Context, filter Filter) ([]pos.Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]pos.Decision, 0, len(m.decisions))
	for _, d := range m.decisions {
		if filter.match(d.StoreID, d.ItemID, d.AlertType) {
			out = append(out, copyDecision(d))
		}
	}

	return out, nil
}

// ReplaceDecisions swaps the decisions table
func (m *Memory) ReplaceDecisions(_ context.Context, decisions []pos.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decisions = cloneWith(decisions, copyDecision)

	return nil
}

// Stores returns the distinct store ids present in the daily series
func (m *Memory) Stores(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.series))
	for _, p := range m.series {
		ids = append(ids, p.StoreID)
	}

	return distinct(ids), nil
}

// Items returns the distinct item ids of storeID, or of every store when
// storeID is empty
func (m *Memory) Items(_ context.Context, storeID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.series))
	for _, p := range m.series {
		if storeID == "" || p.StoreID == storeID {
			ids = append(ids, p.ItemID)
		}
	}

	return distinct(ids), nil
}

func clone[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)

	return out
}

func cloneWith[T any](in []T, cp func(T) T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = cp(v)
	}

	return out
}

func copyAlert(a pos.Alert) pos.Alert {
	a.NetSales = copyPtr(a.NetSales)
	a.ZScore = copyPtr(a.ZScore)
	a.Quantity = copyPtr(a.Quantity)
	a.StockQuantity = copyPtr(a.StockQuantity)

	return a
}

func copyDecision(d pos.Decision) pos.Decision {
	d.InsightText = copyPtr(d.InsightText)

	return d
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}

	v := *p

	return &v
}

func copyRow(row pos.RawRow) pos.RawRow {
	out := make(pos.RawRow, len(row))
	for k, v := range row {
		out[k] = v
	}

	return out
}

func distinct(ids []string) []string {
	sort.Strings(ids)

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}

		out = append(out, id)
	}

	return out
}
