// Package decision turns alerts into recommended replenishment actions
package decision

import (
	"fmt"
	"math"

	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/ethpandaops/posintel/pkg/rolling"
	"github.com/sirupsen/logrus"
)

const (
	replenishTemplate = "Replenish %d units and monitor promotion impact."
	// ActionMonitor is recommended when no replenishment is needed or known
	ActionMonitor = "No replenishment needed; monitor trend."
)

// Engine builds one decision per alert
type Engine struct {
	log logrus.FieldLogger
	cfg *Config
}

// NewEngine creates a decision engine
func NewEngine(log logrus.FieldLogger, cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		log: log.WithField("component", "decision"),
		cfg: cfg,
	}, nil
}

// RecommendedAction renders the action for a replenishment quantity. A nil or
// non-positive quantity means no replenishment. The unit count is truncated
// toward zero.
func RecommendedAction(replenishment *float64) string {
	if replenishment == nil || math.IsNaN(*replenishment) || *replenishment <= 0 {
		return ActionMonitor
	}

	return fmt.Sprintf(replenishTemplate, int64(math.Trunc(*replenishment)))
}

// StockProxy returns the quantity of the most recent point of every
// (store, item) series. It stands in for an inventory feed.
func StockProxy(series []pos.DailySeriesPoint) map[pos.SeriesKey]float64 {
	keys, groups := pos.GroupSeries(series)

	stock := make(map[pos.SeriesKey]float64, len(keys))
	for _, key := range keys {
		points := groups[key]
		stock[key] = points[len(points)-1].Quantity
	}

	return stock
}

// Replenishment estimates, per point, the quantity needed to cover
// CoverageDays of trailing average demand given the stock level of the
// series. Points whose average is undefined, or whose series has no stock
// level, are absent from the result.
func (e *Engine) Replenishment(series []pos.DailySeriesPoint, stock map[pos.SeriesKey]float64) (map[pos.PointKey]float64, error) {
	keys, groups := pos.GroupSeries(series)
	out := make(map[pos.PointKey]float64, len(series))

	for _, key := range keys {
		level, ok := stock[key]
		if !ok {
			continue
		}

		window, err := rolling.NewWindow(e.cfg.Window, e.cfg.MinPeriods)
		if err != nil {
			return nil, err
		}

		for _, p := range groups[key] {
			stats := window.Push(p.Quantity)
			if !stats.MeanOK {
				continue
			}

			target := stats.Mean * e.cfg.CoverageDays
			out[p.PointKey()] = math.Max(0, target-level)
		}
	}

	return out, nil
}

// BuildDecisions left-joins alerts with insights on (store, item, day,
// alert type) and with the replenishment estimate on (store, item, day). It
// returns exactly one decision per alert, in alert order.
func (e *Engine) BuildDecisions(series []pos.DailySeriesPoint, alerts []pos.Alert, insights []pos.InsightText) ([]pos.Decision, error) {
	replenishment, err := e.Replenishment(series, StockProxy(series))
	if err != nil {
		return nil, err
	}

	texts := make(map[pos.InsightKey]string, len(insights))
	for _, in := range insights {
		key := in.InsightKey()
		if _, ok := texts[key]; ok {
			continue
		}

		texts[key] = in.Text
	}

	decisions := make([]pos.Decision, 0, len(alerts))
	withInsight := 0
	replenish := 0

	for _, alert := range alerts {
		d := pos.Decision{
			StoreID:   alert.StoreID,
			ItemID:    alert.ItemID,
			Day:       alert.Day,
			AlertType: alert.AlertType,
		}

		if text, ok := texts[alert.InsightKey()]; ok {
			d.InsightText = &text
			withInsight++
		}

		var qty *float64
		if v, ok := replenishment[alert.PointKey()]; ok {
			qty = &v
			d.ReplenishmentQuantity = v
		}

		d.RecommendedAction = RecommendedAction(qty)
		if d.RecommendedAction != ActionMonitor {
			replenish++
		}

		decisions = append(decisions, d)
	}

	e.log.WithFields(logrus.Fields{
		"decisions":    len(decisions),
		"with_insight": withInsight,
		"replenish":    replenish,
	}).Info("Built decisions")

	return decisions, nil
}
