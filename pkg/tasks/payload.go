// Package tasks queues and processes pipeline runs using Asynq
package tasks

import (
	"errors"
	"fmt"
	"time"
)

const (
	// TypePipelineRun is the task type of a pipeline run
	TypePipelineRun = "pipeline:run"
	// DefaultQueue is the queue pipeline runs are enqueued on
	DefaultQueue = "pipeline"
)

// Triggers
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// ErrRunIDRequired is returned for a payload without run id
var ErrRunIDRequired = errors.New("run id is required")

// RunPayload is the payload of a pipeline run task
type RunPayload struct {
	RunID string `json:"run_id"`
	// Stages to run, empty for every stage
	Stages     []string  `json:"stages,omitempty"`
	Trigger    string    `json:"trigger"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UniqueID returns the Asynq task id of the run
func (p RunPayload) UniqueID() string {
	return fmt.Sprintf("run:%s", p.RunID)
}

// Validate checks the payload can be processed
func (p RunPayload) Validate() error {
	if p.RunID == "" {
		return ErrRunIDRequired
	}

	return nil
}
