// Package report renders pipeline outputs as CSV files and terminal tables
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/ethpandaops/posintel/pkg/pipeline"
	"github.com/ethpandaops/posintel/pkg/pos"
)

const dayLayout = "2006-01-02"

//nolint:gochecknoglobals // Read-only column sets
var (
	decisionColumns = []string{"store_id", "item_id", "day", "alert_type", "insight", "replenishment_quantity", "recommended_action"}
	alertColumns    = []string{"store_id", "item_id", "day", "alert_type", "net_sales", "z_score", "quantity", "stock_quantity"}
	seriesColumns   = []string{"store_id", "item_id", "day", "quantity", "net_sales"}
)

// WriteDecisionsCSV writes decisions with a header row. A missing insight is
// an empty cell.
func WriteDecisionsCSV(w io.Writer, decisions []pos.Decision) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(decisionColumns); err != nil {
		return err
	}

	for _, d := range decisions {
		record := []string{
			d.StoreID,
			d.ItemID,
			d.Day.Format(dayLayout),
			string(d.AlertType),
			optionalString(d.InsightText),
			formatFloat(d.ReplenishmentQuantity),
			d.RecommendedAction,
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// WriteAlertsCSV writes alerts with a header row. Metrics that do not apply
// to the alert type are empty cells.
func WriteAlertsCSV(w io.Writer, alerts []pos.Alert) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(alertColumns); err != nil {
		return err
	}

	for _, a := range alerts {
		record := []string{
			a.StoreID,
			a.ItemID,
			a.Day.Format(dayLayout),
			string(a.AlertType),
			optionalFloat(a.NetSales),
			optionalFloat(a.ZScore),
			optionalFloat(a.Quantity),
			optionalFloat(a.StockQuantity),
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// WriteSeriesCSV writes the daily series with a header row. Days are rendered
// in their own location.
func WriteSeriesCSV(w io.Writer, points []pos.DailySeriesPoint) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(seriesColumns); err != nil {
		return err
	}

	for _, p := range points {
		if err := cw.Write([]string{
			p.StoreID,
			p.ItemID,
			p.Day.Format(dayLayout),
			formatFloat(p.Quantity),
			formatFloat(p.NetSales),
		}); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// PrintDecisions renders decisions as an aligned table
func PrintDecisions(w io.Writer, decisions []pos.Decision) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STORE\tITEM\tDAY\tALERT\tREPLENISH\tACTION\tINSIGHT")

	for _, d := range decisions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.StoreID, d.ItemID, d.Day.Format(dayLayout), d.AlertType,
			strconv.FormatFloat(d.ReplenishmentQuantity, 'f', 1, 64), d.RecommendedAction,
			optionalString(d.InsightText))
	}

	return tw.Flush()
}

// PrintResult renders the per-stage outcome of a pipeline run
func PrintResult(w io.Writer, result *pipeline.Result) error {
	if _, err := fmt.Fprintf(w, "Run %s took %s\n", result.RunID, result.Duration); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STAGE\tSTATUS\tROWS\tDURATION\tERROR")

	for _, s := range result.Stages {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.Name, s.Status, s.Rows, s.Duration, s.Error)
	}

	return tw.Flush()
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func optionalFloat(v *float64) string {
	if v == nil {
		return ""
	}

	return formatFloat(*v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
