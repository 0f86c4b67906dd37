package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/posintel/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the posintel engine",
	Long: `Start the long running engine: the queue worker, the scheduler (when enabled),
the HTTP API and the metrics, health and pprof servers.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded")

	svc, err := engine.NewService(logger, cfg)
	if err != nil {
		return err
	}

	if err := svc.Start(); err != nil {
		if stopErr := svc.Stop(); stopErr != nil {
			logger.WithError(stopErr).Error("Failed to stop engine after start failure")
		}

		return err
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	return svc.Stop()
}
