package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethpandaops/posintel/pkg/ingest"
	"github.com/ethpandaops/posintel/pkg/insights"
	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/report"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	analyzeStockFile    string
	analyzeTimezone     string
	analyzeOutput       string
	analyzeAlertsOutput string
	analyzeSeriesOutput string
)

// analyzeCmd runs the pipeline in memory over CSV files
//
//nolint:gochecknoglobals // Cobra commands are typically global
var analyzeCmd = &cobra.Command{
	Use:   "analyze transactions.csv [transactions.csv...]",
	Short: "Run the pipeline in memory over transaction CSV files",
	Long: `Analyze runs every stage over CSV exports without ClickHouse or Redis and
prints the resulting decisions. Insights are generated only when enabled in
the configuration.

Examples:
  # Print decisions as a table
  posintel analyze transactions.csv

  # Write decisions and alerts as CSV, with a stock snapshot
  posintel analyze transactions.csv --stock stock.csv --output decisions.csv --alerts-output alerts.csv

  # Also export the aggregated daily series
  posintel analyze transactions.csv --series-output series.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeStockFile, "stock", "", "Stock snapshot CSV for the low stock rule")
	analyzeCmd.Flags().StringVar(&analyzeTimezone, "timezone", "UTC", "Timezone of timestamps without an offset")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write decisions as CSV to this file instead of printing a table")
	analyzeCmd.Flags().StringVar(&analyzeAlertsOutput, "alerts-output", "", "Write alerts as CSV to this file")
	analyzeCmd.Flags().StringVar(&analyzeSeriesOutput, "series-output", "", "Write the daily series as CSV to this file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	loc, err := time.LoadLocation(analyzeTimezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", analyzeTimezone, err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if validationErr := cfg.Insights.Validate(); validationErr != nil {
		return validationErr
	}

	ctx := context.Background()
	mem := store.NewMemory()
	ingester := ingest.NewIngester(logger, mem, 0)

	for _, path := range args {
		if _, err := ingestFile(ctx, ingester, path, loc); err != nil {
			return err
		}
	}

	if analyzeStockFile != "" {
		if err := loadStock(ctx, mem, analyzeStockFile); err != nil {
			return err
		}
	}

	var generator *insights.Generator

	if cfg.Insights.Enabled {
		generator, err = insights.NewFromConfig(logger, &cfg.Insights, nil, cfg.Redis.Prefix)
		if err != nil {
			return err
		}
	}

	runner, err := pipeline.NewRunner(logger, &cfg.Pipeline, generator, nil)
	if err != nil {
		return err
	}

	if _, err := runner.Run(ctx, mem); err != nil {
		return err
	}

	decisions, err := mem.Decisions(ctx, store.Filter{})
	if err != nil {
		return err
	}

	if analyzeAlertsOutput != "" {
		alerts, err := mem.Alerts(ctx, store.Filter{})
		if err != nil {
			return err
		}

		if err := writeFile(analyzeAlertsOutput, func(w io.Writer) error {
			return report.WriteAlertsCSV(w, alerts)
		}); err != nil {
			return err
		}
	}

	if analyzeSeriesOutput != "" {
		series, err := mem.DailySeries(ctx, store.Filter{})
		if err != nil {
			return err
		}

		if err := writeFile(analyzeSeriesOutput, func(w io.Writer) error {
			return report.WriteSeriesCSV(w, series)
		}); err != nil {
			return err
		}
	}

	if analyzeOutput == "" {
		return report.PrintDecisions(cmd.OutOrStdout(), decisions)
	}

	return writeFile(analyzeOutput, func(w io.Writer) error {
		return report.WriteDecisionsCSV(w, decisions)
	})
}

func loadStock(ctx context.Context, st store.Store, path string) error {
	f, err := os.Open(path) //nolint:gosec // User-provided file path
	if err != nil {
		return err
	}
	defer f.Close()

	levels, err := ingest.ReadStockCSV(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	return st.ReplaceStockLevels(ctx, levels)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path) //nolint:gosec // User-provided file path
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return f.Close()
}
