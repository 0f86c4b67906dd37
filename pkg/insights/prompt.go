package insights

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethpandaops/posintel/pkg/pos"
)

const promptTemplate = `You are a POS trends analyst for a retail chain.
Analyze the following sales history for item {{ .Alert.ItemID }} at store {{ .Alert.StoreID }}.

History:
{{- range .History }}
{{ .Day.Format "2006-01-02" }} - qty: {{ .Quantity }}, net_sales: {{ printf "%.2f" .NetSales }}
{{- else }}
(no history)
{{- end }}

An alert was triggered on {{ .Alert.Day.Format "2006-01-02" }} for type '{{ .Alert.AlertType | toString }}'
{{- with .Alert.NetSales }} with net_sales={{ printf "%.2f" (deref .) }}{{ end }}
{{- with .Alert.ZScore }} (z-score {{ printf "%.2f" (deref .) }}){{ end }}
{{- with .Alert.Quantity }} with quantity={{ deref . }}{{ end }}
{{- with .Alert.StockQuantity }} and stock on hand={{ deref . }}{{ end }}.

1. Explain why this {{ .Alert.AlertType | toString | replace "_" " " }} might have occurred (consider promotions, seasonality, price changes, or external factors).
2. Identify any cross-item relationships or cannibalization candidates.
3. Provide 2-3 concise recommendations for the retail manager.
Respond in clear, business-friendly language.`

// PromptBuilder renders the analyst prompt for an alert
type PromptBuilder struct {
	tmpl          *template.Template
	historyPoints int
}

// NewPromptBuilder parses the prompt template. historyPoints bounds the number
// of trailing series points included in the prompt.
func NewPromptBuilder(historyPoints int) (*PromptBuilder, error) {
	funcs := sprig.TxtFuncMap()
	funcs["deref"] = func(v *float64) float64 { return *v }

	tmpl, err := template.New("insight").Funcs(funcs).Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}

	return &PromptBuilder{tmpl: tmpl, historyPoints: historyPoints}, nil
}

// Build renders the prompt for alert. history must be the (store, item)
// series of the alert ordered by day; only points up to the alert day are
// used.
func (b *PromptBuilder) Build(alert pos.Alert, history []pos.DailySeriesPoint) (string, error) {
	end := 0
	for end < len(history) && !history[end].Day.After(alert.Day) {
		end++
	}

	start := max(0, end-b.historyPoints)

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, map[string]interface{}{
		"Alert":   alert,
		"History": history[start:end],
	}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}
