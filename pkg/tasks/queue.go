package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrRunNotFound is returned when the queue holds no task for a run
var ErrRunNotFound = errors.New("run not found")

// Enqueuer submits pipeline runs
type Enqueuer interface {
	EnqueueRun(ctx context.Context, payload RunPayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RunStatus is the queue state of a run
type RunStatus struct {
	RunID         string          `json:"run_id"`
	State         string          `json:"state"`
	Retried       int             `json:"retried"`
	LastError     string          `json:"last_error,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	NextProcessAt *time.Time      `json:"next_process_at,omitempty"`
}

// QueueManager manages task queuing
type QueueManager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
	retention time.Duration
}

// NewQueueManager creates a new queue manager. Runs are enqueued on queue
// with the given processing timeout and kept for retention once completed.
func NewQueueManager(redisOpt *asynq.RedisClientOpt, queue string, timeout, retention time.Duration) *QueueManager {
	if queue == "" {
		queue = DefaultQueue
	}

	return &QueueManager{
		client:    asynq.NewClient(*redisOpt),
		inspector: asynq.NewInspector(*redisOpt),
		queue:     queue,
		timeout:   timeout,
		retention: retention,
	}
}

// Queue returns the queue name runs are enqueued on
func (q *QueueManager) Queue() string {
	return q.queue
}

// EnqueueRun enqueues a pipeline run. A payload without run id gets a new
// one. Enqueueing a run id twice fails with asynq.ErrTaskIDConflict.
func (q *QueueManager) EnqueueRun(ctx context.Context, payload RunPayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if payload.RunID == "" {
		payload.RunID = uuid.NewString()
	}

	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(TypePipelineRun, data)

	defaultOpts := []asynq.Option{
		asynq.TaskID(payload.UniqueID()),
		asynq.Queue(q.queue),
		asynq.MaxRetry(3),
	}

	if q.timeout > 0 {
		defaultOpts = append(defaultOpts, asynq.Timeout(q.timeout))
	}

	if q.retention > 0 {
		defaultOpts = append(defaultOpts, asynq.Retention(q.retention))
	}

	allOpts := defaultOpts
	allOpts = append(allOpts, opts...)

	info, err := q.client.EnqueueContext(ctx, task, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue run %s: %w", payload.RunID, err)
	}

	observability.RecordTaskEnqueued(payload.Trigger)

	return info, nil
}

// RunStatus returns the queue state of a run
func (q *QueueManager) RunStatus(runID string) (*RunStatus, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, RunPayload{RunID: runID}.UniqueID())
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}

		return nil, err
	}

	return statusFromInfo(runID, info), nil
}

func statusFromInfo(runID string, info *asynq.TaskInfo) *RunStatus {
	status := &RunStatus{
		RunID:     runID,
		State:     info.State.String(),
		Retried:   info.Retried,
		LastError: info.LastErr,
	}

	if !info.CompletedAt.IsZero() {
		completed := info.CompletedAt
		status.CompletedAt = &completed
	}

	if !info.NextProcessAt.IsZero() {
		next := info.NextProcessAt
		status.NextProcessAt = &next
	}

	if len(info.Result) > 0 && json.Valid(info.Result) {
		status.Result = json.RawMessage(info.Result)
	}

	return status
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}

	return q.client.Close()
}

var _ Enqueuer = (*QueueManager)(nil)
