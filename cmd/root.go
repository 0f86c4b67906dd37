// Package cmd contains the CLI commands for posintel
package cmd

import (
	"fmt"
	"os"

	"github.com/ethpandaops/posintel/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile string
	logger  *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "posintel",
	Short: "POS intelligence - Turn point-of-sale transactions into replenishment decisions",
	Long: `posintel aggregates raw point-of-sale transactions into daily series,
detects sales spikes and low stock under high demand, asks a language model
for a short explanation of each alert and recommends a replenishment action.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults are used when empty)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error, fatal, panic)")

	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func initConfig() {
	logLevel, err := rootCmd.PersistentFlags().GetString("log-level")
	if err != nil {
		logLevel = "info"
	}

	level, parseErr := logrus.ParseLevel(logLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, defaulting to info")
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
}

// loadConfig reads the configuration file. The logging level of the file
// applies unless --log-level was given.
func loadConfig(cmd *cobra.Command) (*engine.Config, error) {
	cfg, err := engine.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("invalid logging level: %w", err)
		}

		logger.SetLevel(level)
	}

	return cfg, nil
}
