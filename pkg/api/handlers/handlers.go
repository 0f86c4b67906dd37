// Package handlers implements the request handlers of the posintel API
package handlers

import (
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// RunQueue submits pipeline runs and reports their state
type RunQueue interface {
	tasks.Enqueuer
	RunStatus(runID string) (*tasks.RunStatus, error)
}

// Server serves the pipeline tables and run submission
type Server struct {
	store store.Store
	queue RunQueue
	log   logrus.FieldLogger
}

// NewServer creates a new API server instance. queue may be nil, in which
// case run submission answers 503.
func NewServer(st store.Store, queue RunQueue, log logrus.FieldLogger) *Server {
	return &Server{
		store: st,
		queue: queue,
		log:   log.WithField("component", "api.handlers"),
	}
}

// RegisterRoutes mounts every handler on router
func RegisterRoutes(router fiber.Router, s *Server) {
	router.Get("/health", s.Health)

	router.Get("/stores", s.ListStores)
	router.Get("/items", s.ListItems)

	router.Get("/series", s.ListSeries)
	router.Get("/alerts", s.ListAlerts)
	router.Get("/insights", s.ListInsights)
	router.Get("/decisions", s.ListDecisions)

	router.Post("/runs", s.CreateRun)
	router.Get("/runs/:id", s.GetRun)
}
