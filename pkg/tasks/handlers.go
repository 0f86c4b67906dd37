package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Runner executes pipeline runs
type Runner interface {
	RunWithID(ctx context.Context, runID string, st store.Store, stages ...string) (*pipeline.Result, error)
}

// TaskHandler processes pipeline run tasks
type TaskHandler struct {
	log    logrus.FieldLogger
	runner Runner
	store  store.Store
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(log logrus.FieldLogger, runner Runner, st store.Store) *TaskHandler {
	return &TaskHandler{
		log:    log.WithField("component", "task-handler"),
		runner: runner,
		store:  st,
	}
}

// HandleRun processes a pipeline run task
func (h *TaskHandler) HandleRun(ctx context.Context, t *asynq.Task) error {
	var payload RunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := payload.Validate(); err != nil {
		observability.RecordError("task-handler", "invalid_payload")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log := h.log.WithFields(logrus.Fields{
		"run_id":  payload.RunID,
		"trigger": payload.Trigger,
		"stages":  payload.Stages,
	})

	log.WithField("queued_for", time.Since(payload.EnqueuedAt).String()).Info("Starting pipeline run task")

	result, err := h.runner.RunWithID(ctx, payload.RunID, h.store, payload.Stages...)

	// The result is written even for a failed run so the failed stage is visible
	if result != nil {
		h.writeResult(log, t, result)
	}

	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownStage) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}

		return err
	}

	return nil
}

func (h *TaskHandler) writeResult(log logrus.FieldLogger, t *asynq.Task, result *pipeline.Result) {
	w := t.ResultWriter()
	if w == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal run result")
		return
	}

	if _, err := w.Write(data); err != nil {
		log.WithError(err).Warn("Failed to write run result")
	}
}

// Routes returns the task handler routes for Asynq
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypePipelineRun: h.HandleRun,
	}
}
