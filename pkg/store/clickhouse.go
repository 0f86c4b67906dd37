package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethpandaops/posintel/pkg/clickhouse"
	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/sirupsen/logrus"
)

const (
	stagingSuffix = "_staging"
	// DefaultBatchSize is the number of rows sent per INSERT
	DefaultBatchSize = 10000
)

// ClickHouse stores the pipeline tables in a ClickHouse database. A replace
// fills a staging table and swaps it with the published one using EXCHANGE
// TABLES, which needs an Atomic database.
type ClickHouse struct {
	log       logrus.FieldLogger
	client    clickhouse.ClientInterface
	database  string
	batchSize int

	// Serializes replaces of the same table within this process
	locks map[string]*sync.Mutex
}

var _ Store = (*ClickHouse)(nil)

// NewClickHouse creates a ClickHouse backed store
func NewClickHouse(log logrus.FieldLogger, client clickhouse.ClientInterface, database string) *ClickHouse {
	locks := make(map[string]*sync.Mutex, len(Tables))
	for _, table := range Tables {
		locks[table] = &sync.Mutex{}
	}

	return &ClickHouse{
		log:       log.WithField("component", "store"),
		client:    client,
		database:  database,
		batchSize: DefaultBatchSize,
		locks:     locks,
	}
}

// WithBatchSize sets the number of rows per INSERT
func (s *ClickHouse) WithBatchSize(n int) *ClickHouse {
	if n > 0 {
		s.batchSize = n
	}

	return s
}

// EnsureSchema creates the database and every table if missing
func (s *ClickHouse) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.Execute(ctx, "CREATE DATABASE IF NOT EXISTS "+clickhouse.QuoteIdentifier(s.database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", s.database, err)
	}

	for _, table := range Tables {
		ddl, err := renderDDL(s.database, table)
		if err != nil {
			return err
		}

		if _, err := s.client.Execute(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	s.log.WithField("database", s.database).Info("Schema ready")

	return nil
}

func (s *ClickHouse) table(name string) string {
	return clickhouse.TableName(s.database, name)
}

// replace publishes rows as the new content of table
func (s *ClickHouse) replace(ctx context.Context, table string, rows []interface{}) error {
	lock, ok := s.locks[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	lock.Lock()
	defer lock.Unlock()

	published := s.table(table)
	staging := s.table(table + stagingSuffix)

	if _, err := s.client.Execute(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("failed to drop stale staging table: %w", err)
	}

	if _, err := s.client.Execute(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", staging, published)); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}

	if err := s.insert(ctx, staging, rows); err != nil {
		s.dropStaging(staging)

		return err
	}

	if _, err := s.client.Execute(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", staging, published)); err != nil {
		s.dropStaging(staging)

		return fmt.Errorf("failed to publish %s: %w", table, err)
	}

	// The staging name now holds the previous content
	s.dropStaging(staging)

	observability.RecordClickHouseRows(table, "replace", float64(len(rows)))

	s.log.WithFields(logrus.Fields{
		"table": table,
		"rows":  len(rows),
	}).Debug("Replaced table")

	return nil
}

func (s *ClickHouse) dropStaging(staging string) {
	// The caller's context may already be cancelled
	if _, err := s.client.Execute(context.Background(), "DROP TABLE IF EXISTS "+staging); err != nil {
		s.log.WithError(err).WithField("table", staging).Warn("Failed to drop staging table")
	}
}

func (s *ClickHouse) insert(ctx context.Context, table string, rows []interface{}) error {
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))

		if err := s.client.BulkInsert(ctx, table, rows[start:end]); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d into %s: %w", start, end, table, err)
		}
	}

	return nil
}

func (s *ClickHouse) selectQuery(table, columns string, filter Filter, withAlertType bool, orderBy string) string {
	var where []string

	if filter.StoreID != "" {
		where = append(where, "store_id = "+clickhouse.QuoteString(filter.StoreID))
	}

	if filter.ItemID != "" {
		where = append(where, "item_id = "+clickhouse.QuoteString(filter.ItemID))
	}

	if withAlertType && filter.AlertType != "" {
		where = append(where, "alert_type = "+clickhouse.QuoteString(string(filter.AlertType)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", columns, s.table(table))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	return query + " ORDER BY " + orderBy
}

// Transactions reads every raw transaction row
func (s *ClickHouse) Transactions(ctx context.Context) ([]pos.RawRow, error) {
	query := fmt.Sprintf(
		"SELECT transaction_id, store_id, item_id, quantity, unit_price, discount, timestamp FROM %s ORDER BY store_id, item_id, timestamp, transaction_id",
		s.table(TableTransactions))

	var rows []transactionRow
	if err := s.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	out := make([]pos.RawRow, 0, len(rows))

	for _, r := range rows {
		raw, err := r.raw()
		if err != nil {
			return nil, err
		}

		out = append(out, raw)
	}

	return out, nil
}

// AppendTransactions inserts typed transactions in batches
func (s *ClickHouse) AppendTransactions(ctx context.Context, txs []pos.RawTransaction) error {
	rows := make([]interface{}, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, newTransactionRow(tx))
	}

	if err := s.insert(ctx, s.table(TableTransactions), rows); err != nil {
		return err
	}

	observability.RecordClickHouseRows(TableTransactions, "append", float64(len(rows)))

	return nil
}

// StockLevels reads the stock snapshot
func (s *ClickHouse) StockLevels(ctx context.Context) ([]pos.StockLevel, error) {
	query := fmt.Sprintf("SELECT store_id, item_id, stock_quantity FROM %s ORDER BY store_id, item_id", s.table(TableStockLevels))

	var levels []pos.StockLevel
	if err := s.client.QueryMany(ctx, query, &levels); err != nil {
		return nil, fmt.Errorf("failed to read stock levels: %w", err)
	}

	return levels, nil
}

// ReplaceStockLevels publishes a new stock snapshot
func (s *ClickHouse) ReplaceStockLevels(ctx context.Context, levels []pos.StockLevel) error {
	rows := make([]interface{}, 0, len(levels))
	for _, l := range levels {
		rows = append(rows, l)
	}

	return s.replace(ctx, TableStockLevels, rows)
}

// DailySeries reads the series points matching filter ordered by key and day
func (s *ClickHouse) DailySeries(ctx context.Context, filter Filter) ([]pos.DailySeriesPoint, error) {
	query := s.selectQuery(TableDailySeries,
		"store_id, item_id, day, quantity, net_sales",
		filter, false, "store_id, item_id, day")

	var rows []seriesRow
	if err := s.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to read daily series: %w", err)
	}

	out := make([]pos.DailySeriesPoint, 0, len(rows))

	for _, r := range rows {
		p, err := r.point()
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, nil
}

// ReplaceDailySeries publishes a new daily series table
func (s *ClickHouse) ReplaceDailySeries(ctx context.Context, points []pos.DailySeriesPoint) error {
	rows := make([]interface{}, 0, len(points))
	for _, p := range points {
		rows = append(rows, newSeriesRow(p))
	}

	return s.replace(ctx, TableDailySeries, rows)
}

// Alerts reads the alerts matching filter in publish order
func (s *ClickHouse) Alerts(ctx context.Context, filter Filter) ([]pos.Alert, error) {
	query := s.selectQuery(TableAlerts,
		"store_id, item_id, day, alert_type, net_sales, z_score, quantity, stock_quantity, seq",
		filter, true, "seq")

	var rows []alertRow
	if err := s.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}

	out := make([]pos.Alert, 0, len(rows))

	for _, r := range rows {
		a, err := r.alert()
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	return out, nil
}

// ReplaceAlerts publishes a new alerts table
func (s *ClickHouse) ReplaceAlerts(ctx context.Context, alerts []pos.Alert) error {
	rows := make([]interface{}, 0, len(alerts))
	for i, a := range alerts {
		rows = append(rows, newAlertRow(i, a))
	}

	return s.replace(ctx, TableAlerts, rows)
}

// Insights reads the insight texts matching filter
func (s *ClickHouse) Insights(ctx context.Context, filter Filter) ([]pos.InsightText, error) {
	query := s.selectQuery(TableInsights,
		"store_id, item_id, day, alert_type, insight",
		filter, true, "store_id, item_id, day, alert_type")

	var rows []insightRow
	if err := s.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to read insights: %w", err)
	}

	out := make([]pos.InsightText, 0, len(rows))

	for _, r := range rows {
		in, err := r.insight()
		if err != nil {
			return nil, err
		}

		out = append(out, in)
	}

	return out, nil
}

// ReplaceInsights publishes a new insights table
func (s *ClickHouse) ReplaceInsights(ctx context.Context, insights []pos.InsightText) error {
	rows := make([]interface{}, 0, len(insights))
	for _, in := range insights {
		rows = append(rows, newInsightRow(in))
	}

	return s.replace(ctx, TableInsights, rows)
}

// Decisions reads the decisions matching filter in publish order
func (s *ClickHouse) Decisions(ctx context.Context, filter Filter) ([]pos.Decision, error) {
	query := s.selectQuery(TableDecisions,
		"store_id, item_id, day, alert_type, insight, replenishment_quantity, recommended_action, seq",
		filter, true, "seq")

	var rows []decisionRow
	if err := s.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to read decisions: %w", err)
	}

	out := make([]pos.Decision, 0, len(rows))

	for _, r := range rows {
		d, err := r.decision()
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, nil
}

// ReplaceDecisions publishes a new decisions table
func (s *ClickHouse) ReplaceDecisions(ctx context.Context, decisions []pos.Decision) error {
	rows := make([]interface{}, 0, len(decisions))
	for i, d := range decisions {
		rows = append(rows, newDecisionRow(i, d))
	}

	return s.replace(ctx, TableDecisions, rows)
}

// Stores returns the distinct store ids of the daily series
func (s *ClickHouse) Stores(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "store_id", "")
}

// Items returns the distinct item ids of storeID, or of every store when
// storeID is empty
func (s *ClickHouse) Items(ctx context.Context, storeID string) ([]string, error) {
	return s.distinct(ctx, "item_id", storeID)
}

func (s *ClickHouse) distinct(ctx context.Context, column, storeID string) ([]string, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s AS id FROM %s", column, s.table(TableDailySeries))
	if storeID != "" {
		query += " WHERE store_id = " + clickhouse.QuoteString(storeID)
	}

	query += " ORDER BY id"

	var rows []struct {
		ID string `json:"id"`
	}
	if err := s.client.QueryMany(ctx, query, &rows); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", column, err)
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}

	return out, nil
}
