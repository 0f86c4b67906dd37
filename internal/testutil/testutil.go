// Package testutil provides test utilities for posintel, including:
//   - a fake ClickHouse HTTP interface (clickhouse.go)
//   - miniredis helpers for Redis backed code (miniredis.go)
//   - point-of-sale fixtures (fixtures.go)
//
// None of the helpers need Docker.
package testutil
