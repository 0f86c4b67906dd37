package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// StagesTotal tracks the total number of pipeline stage executions
	StagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_stages_total",
			Help: "Total number of pipeline stage executions",
		},
		[]string{"stage", "status"}, // status: success, failed, skipped
	)

	// StageDuration measures stage execution duration in seconds
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "posintel_stage_duration_seconds",
			Help:    "Pipeline stage execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"stage", "status"},
	)

	// StagesRunning tracks the number of currently running stages
	StagesRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "posintel_stages_running",
			Help: "Number of currently running pipeline stages",
		},
		[]string{"stage"},
	)

	// StageRows tracks the number of rows a stage last published
	StageRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "posintel_stage_rows",
			Help: "Number of rows published by the last successful stage run",
		},
		[]string{"stage"},
	)

	// AlertsTotal counts alerts produced per rule
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_alerts_total",
			Help: "Total number of alerts produced",
		},
		[]string{"alert_type"},
	)

	// InsightRequests counts insight provider calls
	InsightRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_insight_requests_total",
			Help: "Total number of insight provider calls",
		},
		[]string{"status"}, // status: success, failed, cached
	)

	// InsightDuration measures insight provider latency
	InsightDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "posintel_insight_duration_seconds",
			Help:    "Insight provider latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~50s
		},
		[]string{"status"},
	)

	// ClickHouseQueries counts total number of ClickHouse queries executed
	ClickHouseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_clickhouse_queries_total",
			Help: "Total number of ClickHouse queries executed",
		},
		[]string{"query_type", "status"}, // query_type: select, insert, execute; status: success, error
	)

	// ClickHouseQueryDuration measures ClickHouse query execution time
	ClickHouseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "posintel_clickhouse_query_duration_seconds",
			Help:    "ClickHouse query execution time",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"query_type"},
	)

	// ClickHouseRowsProcessed counts total number of rows written
	ClickHouseRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_clickhouse_rows_processed_total",
			Help: "Total number of rows written to ClickHouse",
		},
		[]string{"table", "operation"}, // operation: append, replace
	)

	// TasksEnqueued counts total number of pipeline runs enqueued
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_tasks_enqueued_total",
			Help: "Total number of pipeline runs enqueued",
		},
		[]string{"trigger"}, // trigger: schedule, api, cli
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posintel_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordStageStart records the start of a stage
func RecordStageStart(stage string) {
	StagesRunning.WithLabelValues(stage).Inc()
}

// RecordStageComplete records stage completion
func RecordStageComplete(stage, status string, duration float64) {
	StagesRunning.WithLabelValues(stage).Dec()
	StagesTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordStageSkipped records a stage that did not run
func RecordStageSkipped(stage string) {
	StagesTotal.WithLabelValues(stage, "skipped").Inc()
}

// RecordStageRows records the number of rows a stage published
func RecordStageRows(stage string, rows int) {
	StageRows.WithLabelValues(stage).Set(float64(rows))
}

// RecordAlert records a produced alert
func RecordAlert(alertType string) {
	AlertsTotal.WithLabelValues(alertType).Inc()
}

// RecordInsight records an insight provider call
func RecordInsight(status string, duration float64) {
	InsightRequests.WithLabelValues(status).Inc()
	InsightDuration.WithLabelValues(status).Observe(duration)
}

// RecordClickHouseQuery records ClickHouse query metrics
func RecordClickHouseQuery(queryType, status string, duration float64) {
	ClickHouseQueries.WithLabelValues(queryType, status).Inc()
	ClickHouseQueryDuration.WithLabelValues(queryType).Observe(duration)
}

// RecordClickHouseRows records rows written
func RecordClickHouseRows(table, operation string, count float64) {
	ClickHouseRowsProcessed.WithLabelValues(table, operation).Add(count)
}

// RecordTaskEnqueued records a pipeline run enqueue
func RecordTaskEnqueued(trigger string) {
	TasksEnqueued.WithLabelValues(trigger).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
