package store

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethpandaops/posintel/pkg/clickhouse"
)

// Column definitions and sort keys of every table. The rendered statement
// receives the quoted table name as .Table.
//
//nolint:gochecknoglobals // Read-only schema definitions
var tableDDL = map[string]string{
	TableTransactions: `CREATE TABLE IF NOT EXISTS {{ .Table }} (
    transaction_id String,
    store_id String,
    item_id String,
    quantity Nullable(Float64),
    unit_price Float64,
    discount Nullable(Float64),
    timestamp DateTime64(3, 'UTC'),
    inserted_at DateTime DEFAULT now()
) ENGINE = MergeTree
ORDER BY (store_id, item_id, timestamp, transaction_id)`,

	TableStockLevels: `CREATE TABLE IF NOT EXISTS {{ .Table }} (
    store_id String,
    item_id String,
    stock_quantity Float64
) ENGINE = MergeTree
ORDER BY (store_id, item_id)`,

	TableDailySeries: `CREATE TABLE IF NOT EXISTS {{ .Table }} (
    store_id String,
    item_id String,
    day DateTime('UTC'),
    quantity Float64,
    net_sales Float64
) ENGINE = MergeTree
ORDER BY (store_id, item_id, day)`,

	TableAlerts: `CREATE TABLE IF NOT EXISTS {{ .Table }} (
    store_id String,
    item_id String,
    day DateTime('UTC'),
    alert_type LowCardinality(String),
{{- range list "net_sales" "z_score" "quantity" "stock_quantity" }}
    {{ . }} Nullable(Float64),
{{- end }}
    seq UInt32
) ENGINE = MergeTree
ORDER BY (store_id, item_id, day, seq)`,

	TableInsights: `CREATE TABLE IF NOT EXISTS {{ .Table }} (
    store_id String,
    item_id String,
    day DateTime('UTC'),
    alert_type LowCardinality(String),
    insight String
) ENGINE = MergeTree
ORDER BY (store_id, item_id, day, alert_type)`,

	TableDecisions: `CREATE TABLE IF NOT EXISTS {{ .Table }} (
    store_id String,
    item_id String,
    day DateTime('UTC'),
    alert_type LowCardinality(String),
    insight Nullable(String),
    replenishment_quantity Float64,
    recommended_action String,
    seq UInt32
) ENGINE = MergeTree
ORDER BY (store_id, item_id, day, seq)`,
}

// renderDDL renders the CREATE TABLE statement of table in database
func renderDDL(database, table string) (string, error) {
	ddl, ok := tableDDL[table]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	tmpl, err := template.New(table).Funcs(sprig.TxtFuncMap()).Parse(ddl)
	if err != nil {
		return "", fmt.Errorf("failed to parse schema of %s: %w", table, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]interface{}{
		"Table": clickhouse.TableName(database, table),
	}); err != nil {
		return "", fmt.Errorf("failed to render schema of %s: %w", table, err)
	}

	return buf.String(), nil
}
