// Package observability holds the Prometheus metrics of the pipeline
package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

//nolint:gochecknoglobals // Singleton metrics server
var (
	metricsServer *http.Server
	metricsMu     sync.Mutex
)

// StartMetricsServer serves /metrics on addr. It is a no-op when addr is empty
// or a server is already running.
func StartMetricsServer(log logrus.FieldLogger, addr string) {
	if addr == "" {
		return
	}

	metricsMu.Lock()
	defer metricsMu.Unlock()

	if metricsServer != nil {
		return
	}

	sm := http.NewServeMux()
	sm.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 15 * time.Second,
		Handler:           sm,
	}
	metricsServer = srv

	go func() {
		log.WithField("addr", addr).Info("Starting metrics server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
}

// StopMetricsServer shuts the metrics server down if it is running
func StopMetricsServer(ctx context.Context) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if metricsServer == nil {
		return nil
	}

	err := metricsServer.Shutdown(ctx)
	metricsServer = nil

	return err
}
