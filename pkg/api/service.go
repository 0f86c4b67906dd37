package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/posintel/pkg/api/handlers"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"
)

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	app    *fiber.App
	server *http.Server
	config *Config
	log    logrus.FieldLogger
}

// NewService creates the API service. queue may be nil when runs cannot be
// submitted from this process.
func NewService(cfg *Config, st store.Store, queue handlers.RunQueue, log logrus.FieldLogger) Service {
	log = log.WithField("service", "api")

	return &service{
		config: cfg,
		app:    NewApp(handlers.NewServer(st, queue, log), log, cfg.AllowOrigins),
		log:    log,
	}
}

// NewApp builds the Fiber app serving /api/v1. Empty allowOrigins allows any
// origin.
func NewApp(server *handlers.Server, log logrus.FieldLogger, allowOrigins []string) *fiber.App {
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "posintel API",
	})

	setupMiddleware(app, log, allowOrigins)

	handlers.RegisterRoutes(app.Group("/api/v1"), server)

	return app
}

// Start starts the API server
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")
		return nil
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           adaptor.FiberApp(s.app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
