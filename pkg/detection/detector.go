// Package detection flags anomalous points of the aggregated sales series
package detection

import (
	"math"

	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/ethpandaops/posintel/pkg/rolling"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Detector runs every enabled rule over a series and unions the alerts
type Detector struct {
	log logrus.FieldLogger
	cfg *Config
}

// NewDetector creates a detector
func NewDetector(log logrus.FieldLogger, cfg *Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Detector{
		log: log.WithField("component", "detector"),
		cfg: cfg,
	}, nil
}

// LowStockEnabled reports whether the low-stock rule runs
func (d *Detector) LowStockEnabled() bool {
	return d.cfg.LowStock.Enabled
}

// Detect returns the spike alerts followed by the low-stock alerts. Alerts are
// not deduplicated across rules.
func (d *Detector) Detect(series []pos.DailySeriesPoint, stock []pos.StockLevel) ([]pos.Alert, error) {
	keys, groups := pos.GroupSeries(series)

	alerts, err := detectSpikes(keys, groups, d.cfg.Spike, d.cfg.Parallelism)
	if err != nil {
		return nil, err
	}

	spikes := len(alerts)

	lowStock := 0

	if d.cfg.LowStock.Enabled {
		if len(stock) == 0 {
			d.log.Warn("Low stock rule enabled but no stock levels were supplied")
		}

		low := DetectLowStockHighDemand(series, stock, d.cfg.LowStock)
		lowStock = len(low)

		alerts = append(alerts, low...)
	}

	d.log.WithFields(logrus.Fields{
		"series":    len(keys),
		"points":    len(series),
		"spikes":    spikes,
		"low_stock": lowStock,
	}).Info("Detection complete")

	return alerts, nil
}

// DetectSpikes flags points whose net sales sit at least threshold rolling
// standard deviations above the rolling mean of the trailing window
func DetectSpikes(series []pos.DailySeriesPoint, cfg SpikeConfig) ([]pos.Alert, error) {
	keys, groups := pos.GroupSeries(series)

	return detectSpikes(keys, groups, cfg, 1)
}

func detectSpikes(keys []pos.SeriesKey, groups map[pos.SeriesKey][]pos.DailySeriesPoint, cfg SpikeConfig, parallelism int) ([]pos.Alert, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	results := make([][]pos.Alert, len(keys))

	var g errgroup.Group

	g.SetLimit(max(parallelism, 1))

	for i, key := range keys {
		points := groups[key]

		g.Go(func() error {
			found, err := spikesInSeries(points, cfg)
			if err != nil {
				return err
			}

			results[i] = found

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	alerts := make([]pos.Alert, 0)
	for _, found := range results {
		alerts = append(alerts, found...)
	}

	return alerts, nil
}

// spikesInSeries scans one (store, item) series ordered by day
func spikesInSeries(points []pos.DailySeriesPoint, cfg SpikeConfig) ([]pos.Alert, error) {
	window, err := rolling.NewWindow(cfg.Window, cfg.MinPeriods)
	if err != nil {
		return nil, err
	}

	var alerts []pos.Alert

	for _, p := range points {
		stats := window.Push(p.NetSales)

		// Undefined or zero spread never alerts
		if !stats.StdOK || stats.Std == 0 {
			continue
		}

		z := (p.NetSales - stats.Mean) / stats.Std
		if math.IsNaN(z) || math.IsInf(z, 0) || z < cfg.Threshold {
			continue
		}

		alerts = append(alerts, pos.Alert{
			StoreID:   p.StoreID,
			ItemID:    p.ItemID,
			Day:       p.Day,
			AlertType: pos.AlertTypeSalesSpike,
			NetSales:  pos.Float(p.NetSales),
			ZScore:    pos.Float(z),
		})
	}

	return alerts, nil
}

// DetectLowStockHighDemand left-joins stock levels onto the series by
// (store, item) and flags points with stock at or below the stock threshold
// and quantity at or above the demand threshold. Points without a stock level
// never alert. The first stock level of a duplicated key wins.
func DetectLowStockHighDemand(series []pos.DailySeriesPoint, stock []pos.StockLevel, cfg LowStockConfig) []pos.Alert {
	levels := make(map[pos.SeriesKey]float64, len(stock))
	for _, s := range stock {
		key := pos.SeriesKey{StoreID: s.StoreID, ItemID: s.ItemID}
		if _, ok := levels[key]; ok {
			continue
		}

		levels[key] = s.StockQuantity
	}

	sorted := make([]pos.DailySeriesPoint, len(series))
	copy(sorted, series)
	pos.SortSeries(sorted)

	alerts := make([]pos.Alert, 0)

	for _, p := range sorted {
		level, ok := levels[p.SeriesKey()]
		if !ok || math.IsNaN(level) {
			continue
		}

		if level <= cfg.StockThreshold && p.Quantity >= cfg.DemandThreshold {
			alerts = append(alerts, pos.Alert{
				StoreID:       p.StoreID,
				ItemID:        p.ItemID,
				Day:           p.Day,
				AlertType:     pos.AlertTypeLowStockHighDemand,
				Quantity:      pos.Float(p.Quantity),
				StockQuantity: pos.Float(level),
			})
		}
	}

	return alerts
}
