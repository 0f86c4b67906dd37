package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethpandaops/posintel/pkg/engine"
	"github.com/ethpandaops/posintel/pkg/ingest"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	ingestTimezone  string
	ingestBatchSize int
	ingestStockFile string
)

var errNothingToIngest = errors.New("no transaction file or stock file given")

// ingestCmd loads transaction CSV files into ClickHouse
//
//nolint:gochecknoglobals // Cobra commands are typically global
var ingestCmd = &cobra.Command{
	Use:   "ingest [transactions.csv...]",
	Short: "Append POS transactions from CSV files to ClickHouse",
	Long: `Ingest appends the rows of transaction CSV files to the raw transaction
table. Rows are not deduplicated; the aggregate stage drops duplicate
transactions. A stock snapshot CSV replaces the stock level table.

Examples:
  # Append a day of transactions
  posintel ingest --config config.yaml transactions-2024-01-01.csv

  # Replace the stock snapshot only
  posintel ingest --config config.yaml --stock stock.csv`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVar(&ingestTimezone, "timezone", "UTC", "Timezone of timestamps without an offset")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", ingest.DefaultBatchSize, "Transactions appended per insert")
	ingestCmd.Flags().StringVar(&ingestStockFile, "stock", "", "Stock snapshot CSV (store_id, item_id, stock_quantity)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if len(args) == 0 && ingestStockFile == "" {
		return errNothingToIngest
	}

	loc, err := time.LoadLocation(ingestTimezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", ingestTimezone, err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if validationErr := cfg.Validate(); validationErr != nil {
		return validationErr
	}

	ctx := context.Background()

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

	ingester := ingest.NewIngester(logger, backend.Store, ingestBatchSize)

	for _, path := range args {
		n, err := ingestFile(ctx, ingester, path, loc)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d transactions\n", path, n)
	}

	if ingestStockFile == "" {
		return nil
	}

	if err := loadStock(ctx, backend.Store, ingestStockFile); err != nil {
		return err
	}

	logger.WithField("file", ingestStockFile).Info("Replaced stock levels")

	return nil
}

func ingestFile(ctx context.Context, ingester *ingest.Ingester, path string, loc *time.Location) (int, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided file path
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := ingester.IngestCSV(ctx, f, loc)
	if err != nil {
		return n, fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	return n, nil
}
