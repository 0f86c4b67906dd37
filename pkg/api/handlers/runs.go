package handlers

import (
	"errors"
	"time"

	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// CreateRunRequest is the body of POST /api/v1/runs
type CreateRunRequest struct {
	// Stages to run, empty for every stage
	Stages []string `json:"stages"`
}

// CreateRunResponse acknowledges an enqueued run
type CreateRunResponse struct {
	RunID  string   `json:"run_id"`
	TaskID string   `json:"task_id"`
	Queue  string   `json:"queue"`
	Stages []string `json:"stages"`
}

// CreateRun handles POST /api/v1/runs
func (s *Server) CreateRun(c fiber.Ctx) error {
	if s.queue == nil {
		return ErrQueueUnavailable
	}

	var req CreateRunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	graph, err := pipeline.NewGraph()
	if err != nil {
		return err
	}

	stages, err := graph.Order(req.Stages...)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	payload := tasks.RunPayload{
		RunID:      uuid.NewString(),
		Stages:     req.Stages,
		Trigger:    tasks.TriggerAPI,
		EnqueuedAt: time.Now().UTC(),
	}

	info, err := s.queue.EnqueueRun(c.Context(), payload)
	if err != nil {
		s.log.WithError(err).Error("Failed to enqueue run")

		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return fiber.NewError(fiber.StatusConflict, "run already enqueued")
		}

		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(CreateRunResponse{
		RunID:  payload.RunID,
		TaskID: info.ID,
		Queue:  info.Queue,
		Stages: stages,
	})
}

// GetRun handles GET /api/v1/runs/:id
func (s *Server) GetRun(c fiber.Ctx) error {
	if s.queue == nil {
		return ErrQueueUnavailable
	}

	status, err := s.queue.RunStatus(c.Params("id"))
	if err != nil {
		if errors.Is(err, tasks.ErrRunNotFound) {
			return ErrRunNotFound
		}

		return err
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
