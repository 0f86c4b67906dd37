package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of transactions appended per call
const DefaultBatchSize = 10000

// Appender is the write side of the raw transaction table
type Appender interface {
	AppendTransactions(ctx context.Context, txs []pos.RawTransaction) error
}

// Ingester appends transactions in batches. It does not deduplicate; the
// aggregator drops duplicates when it cleans the table.
type Ingester struct {
	log       logrus.FieldLogger
	appender  Appender
	batchSize int
}

// NewIngester creates an ingester. A non-positive batch size uses
// DefaultBatchSize.
func NewIngester(log logrus.FieldLogger, appender Appender, batchSize int) *Ingester {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Ingester{
		log:       log.WithField("component", "ingester"),
		appender:  appender,
		batchSize: batchSize,
	}
}

// Ingest appends txs and returns the number of transactions written. On
// error, batches before the failing one stay written.
func (i *Ingester) Ingest(ctx context.Context, txs []pos.RawTransaction) (int, error) {
	written := 0

	for start := 0; start < len(txs); start += i.batchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		end := min(start+i.batchSize, len(txs))

		if err := i.appender.AppendTransactions(ctx, txs[start:end]); err != nil {
			return written, fmt.Errorf("failed to append batch at %d: %w", start, err)
		}

		written = end

		i.log.WithField("written", written).Debug("Appended batch")
	}

	i.log.WithField("transactions", written).Info("Ingested transactions")

	return written, nil
}

// IngestCSV reads a transaction export and ingests it
func (i *Ingester) IngestCSV(ctx context.Context, r io.Reader, loc *time.Location) (int, error) {
	txs, err := ReadCSV(r, loc)
	if err != nil {
		return 0, err
	}

	return i.Ingest(ctx, txs)
}
