package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"time"

	"github.com/ethpandaops/posintel/pkg/api"
	"github.com/ethpandaops/posintel/pkg/api/handlers"
	"github.com/ethpandaops/posintel/pkg/observability"
	r "github.com/ethpandaops/posintel/pkg/redis"
	"github.com/ethpandaops/posintel/pkg/scheduler"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/ethpandaops/posintel/pkg/worker"
	"github.com/sirupsen/logrus"
)

// Service runs the worker, the scheduler and the API in one process
type Service struct {
	config *Config
	log    *logrus.Logger

	backend   *Backend
	queue     *tasks.QueueManager
	scheduler scheduler.Service
	worker    worker.Service
	api       api.Service

	// Servers
	healthServer *http.Server
	pprofServer  *http.Server
}

// NewService creates the engine service
func NewService(log *logrus.Logger, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.RequireRedis(); err != nil {
		return nil, err
	}

	backend, err := NewBackend(log, cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		log:     log,
		config:  cfg,
		backend: backend,
	}

	var runQueue handlers.RunQueue

	if backend.Redis != nil {
		asynqOpt := r.AsynqClientOpt(backend.Redis.Options())
		queueName := cfg.Redis.PrefixQueue(tasks.DefaultQueue)

		s.queue = tasks.NewQueueManager(asynqOpt, queueName, cfg.Worker.TaskTimeout, cfg.Worker.Retention)
		runQueue = s.queue

		handler := tasks.NewTaskHandler(log, backend.Runner, backend.Store)

		s.worker, err = worker.NewService(log, &cfg.Worker, asynqOpt, queueName, handler)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker service: %w", err)
		}

		if cfg.Scheduler.Enabled {
			s.scheduler, err = scheduler.NewService(log, &cfg.Scheduler, backend.Redis, cfg.Redis.Prefix, s.queue)
			if err != nil {
				return nil, fmt.Errorf("failed to create scheduler service: %w", err)
			}
		}
	}

	s.api = api.NewService(&cfg.API, backend.Store, runQueue, log)

	return s, nil
}

// Start initializes and starts every service
func (a *Service) Start() error {
	a.log.Info("Starting posintel engine...")

	ctx := context.Background()

	observability.StartMetricsServer(a.log, a.config.MetricsAddr)

	if a.config.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	if a.config.PProfAddr != "" {
		a.startPProf()
	}

	if err := a.backend.Start(ctx); err != nil {
		return err
	}

	if a.worker != nil {
		if err := a.worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	if err := a.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API service: %w", err)
	}

	a.log.Info("posintel engine started successfully")

	return nil
}

// Stop gracefully shuts down every service
func (a *Service) Stop() error {
	a.log.Info("Shutting down engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopService := func(name string, stopFunc func() error) {
		if err := stopFunc(); err != nil {
			a.log.WithError(err).Errorf("Failed to stop %s", name)
		}
	}

	// 1. Stop scheduler first (stop creating new runs)
	if a.scheduler != nil {
		stopService("scheduler service", a.scheduler.Stop)
	}

	// 2. Stop worker (finish in-flight runs)
	if a.worker != nil {
		stopService("worker service", a.worker.Stop)
	}

	// 3. Stop API
	stopService("API service", a.api.Stop)

	// 4. Close queue and backend connections, nothing uses them anymore
	if a.queue != nil {
		stopService("queue manager", a.queue.Close)
	}

	if err := a.backend.Close(); err != nil {
		a.log.WithError(err).Error("Failed to close backend")
		return err
	}

	if a.healthServer != nil {
		stopService("health check server", func() error { return a.healthServer.Shutdown(ctx) })
	}

	if a.pprofServer != nil {
		stopService("pprof server", func() error { return a.pprofServer.Shutdown(ctx) })
	}

	stopService("metrics server", func() error { return observability.StopMetricsServer(ctx) })

	return nil
}

func (a *Service) startHealthCheck() {
	a.log.WithField("addr", a.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, req *http.Request) {
		if _, err := a.backend.ClickHouse.Execute(req.Context(), "SELECT 1"); err != nil {
			http.Error(w, "clickhouse unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	a.healthServer = &http.Server{
		Addr:              a.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Health check server failed")
		}
	}()
}

func (a *Service) startPProf() {
	a.log.WithField("addr", a.config.PProfAddr).Info("Starting pprof server")

	a.pprofServer = &http.Server{
		Addr:              a.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := a.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("Pprof server failed")
		}
	}()
}
