package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethpandaops/posintel/pkg/engine"
	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/tasks"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	enqueueRunID  string
	enqueueStages []string
)

// runsCmd represents the runs command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Queue pipeline runs and inspect their state",
	Long:  `Commands for enqueueing pipeline runs on the worker queue and reading their status.`,
}

// enqueueCmd enqueues a run for the workers
//
//nolint:gochecknoglobals // Cobra commands are typically global
var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue a pipeline run for the workers",
	Long: `Enqueue adds a pipeline run to the worker queue. A run id can only be
enqueued once while the run is retained.

Examples:
  # Enqueue every stage
  posintel runs enqueue --config config.yaml

  # Regenerate insights and decisions under a known id
  posintel runs enqueue --config config.yaml --id backfill-2024-01 --stages insights,decide`,
	RunE: runEnqueue,
}

// runStatusCmd prints the queue state of a run
//
//nolint:gochecknoglobals // Cobra commands are typically global
var runStatusCmd = &cobra.Command{
	Use:   "status RUN_ID",
	Short: "Show the queue state and result of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunStatus,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(enqueueCmd)
	runsCmd.AddCommand(runStatusCmd)

	enqueueCmd.Flags().StringVar(&enqueueRunID, "id", "", "Run id, generated when empty")
	enqueueCmd.Flags().StringSliceVar(&enqueueStages, "stages", nil, "Stages to run (aggregate, detect, insights, decide), all when empty")
}

func newQueueManager(cfg *engine.Config) (*tasks.QueueManager, error) {
	if cfg.Redis.URL == "" {
		return nil, engine.ErrRedisURLRequired
	}

	if err := cfg.Redis.Validate(); err != nil {
		return nil, err
	}

	opts, err := cfg.Redis.AsynqOptions()
	if err != nil {
		return nil, err
	}

	return tasks.NewQueueManager(
		opts,
		cfg.Redis.PrefixQueue(tasks.DefaultQueue),
		cfg.Worker.TaskTimeout,
		cfg.Worker.Retention,
	), nil
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Reject unknown stages before they reach a worker
	graph, err := pipeline.NewGraph()
	if err != nil {
		return err
	}

	if _, err := graph.Order(enqueueStages...); err != nil {
		return err
	}

	queue, err := newQueueManager(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close queue manager")
		}
	}()

	info, err := queue.EnqueueRun(context.Background(), tasks.RunPayload{
		RunID:   enqueueRunID,
		Stages:  enqueueStages,
		Trigger: tasks.TriggerCLI,
	})
	if err != nil {
		return err
	}

	logger.WithField("task_id", info.ID).WithField("queue", info.Queue).Info("Enqueued pipeline run")

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), info.ID)

	return nil
}

func runRunStatus(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	queue, err := newQueueManager(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close queue manager")
		}
	}()

	status, err := queue.RunStatus(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(status)
}
