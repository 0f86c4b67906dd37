package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/posintel/pkg/engine"
	"github.com/ethpandaops/posintel/pkg/report"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var runStages []string

// runCmd runs the pipeline once against ClickHouse
//
//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once against ClickHouse",
	Long: `Run executes the pipeline stages in this process, without the queue.
Stage outputs replace the published tables.

Examples:
  # Run every stage
  posintel run --config config.yaml

  # Rebuild alerts and decisions from the existing daily series
  posintel run --config config.yaml --stages detect,decide`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runStages, "stages", nil, "Stages to run (aggregate, detect, insights, decide), all when empty")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if validationErr := cfg.Validate(); validationErr != nil {
		return validationErr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := engine.NewBackend(logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close backend")
		}
	}()

	if err := backend.Start(ctx); err != nil {
		return err
	}

	result, runErr := backend.Runner.Run(ctx, backend.Store, runStages...)
	if result != nil {
		if err := report.PrintResult(cmd.OutOrStdout(), result); err != nil {
			return errors.Join(runErr, err)
		}
	}

	return runErr
}
