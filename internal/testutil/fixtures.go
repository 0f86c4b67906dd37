package testutil

import (
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/pos"
)

// Day returns midnight UTC of day d of January 2024
func Day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

// DailyTransactions returns one transaction per day for (store, item), the
// first on January 1st 2024 at noon UTC. Each transaction sells quantity
// units at unit price netSales/quantity with no discount, so the daily series
// reproduces netSales exactly.
func DailyTransactions(store, item string, quantity float64, netSales ...float64) []pos.RawTransaction {
	txs := make([]pos.RawTransaction, 0, len(netSales))

	for i, v := range netSales {
		q := quantity

		txs = append(txs, pos.RawTransaction{
			TransactionID: fmt.Sprintf("%s-%s-%03d", store, item, i+1),
			StoreID:       store,
			ItemID:        item,
			Quantity:      &q,
			UnitPrice:     v / quantity,
			Timestamp:     Day(i + 1).Add(12 * time.Hour),
		})
	}

	return txs
}

// SpikeTransactions returns ten days of sales with a single spike on day 8
func SpikeTransactions(store, item string) []pos.RawTransaction {
	return DailyTransactions(store, item, 1, 10, 10, 10, 10, 10, 10, 10, 100, 10, 10)
}
