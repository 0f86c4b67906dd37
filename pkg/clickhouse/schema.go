package clickhouse

import (
	"context"
	"fmt"
	"strings"
)

// QuoteIdentifier quotes a database, table or column name
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteString quotes a string literal
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)

	return "'" + r.Replace(s) + "'"
}

// TableName returns the fully qualified, quoted table name
func TableName(database, table string) string {
	return QuoteIdentifier(database) + "." + QuoteIdentifier(table)
}

// TableExists checks if a table exists in the given database
func TableExists(ctx context.Context, client ClientInterface, database, table string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT count() AS count
		FROM system.tables
		WHERE database = %s AND name = %s
	`, QuoteString(database), QuoteString(table))

	var result struct {
		Count uint64 `json:"count,string"`
	}

	if err := client.QueryOne(ctx, query, &result); err != nil {
		return false, err
	}

	return result.Count > 0, nil
}
