// Package worker processes queued pipeline runs
package worker

import (
	"context"
	"fmt"

	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the worker service
type Service interface {
	// Start initializes and starts the worker service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

// service runs an Asynq server dispatching pipeline run tasks
type service struct {
	config *Config
	log    logrus.FieldLogger

	handler  *tasks.TaskHandler
	redisOpt *asynq.RedisClientOpt
	queue    string

	server *asynq.Server
}

// NewService creates a new worker service consuming queue
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *asynq.RedisClientOpt, queue string, handler *tasks.TaskHandler) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:      log.WithField("service", "worker"),
		config:   cfg,
		handler:  handler,
		redisOpt: redisOpt,
		queue:    queue,
	}, nil
}

// Mux returns the task routes of the worker
func (s *service) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range s.handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	return mux
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Worker service is disabled")
		return nil
	}

	srv := asynq.NewServer(*s.redisOpt, asynq.Config{
		Concurrency:     s.config.Concurrency,
		Queues:          map[string]int{s.queue: 10},
		ShutdownTimeout: s.config.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			s.log.WithError(err).WithField("task_type", task.Type()).Error("Pipeline run task failed")
		}),
	})

	if err := srv.Start(s.Mux()); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	s.server = srv

	s.log.WithFields(logrus.Fields{
		"queue":       s.queue,
		"concurrency": s.config.Concurrency,
	}).Info("Worker service started successfully")

	return nil
}

// Stop gracefully shuts down the worker service
func (s *service) Stop() error {
	if s.server != nil {
		s.server.Shutdown()
	}

	s.log.Info("Worker service stopped successfully")

	return nil
}

var _ Service = (*service)(nil)
