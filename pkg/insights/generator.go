package insights

import (
	"context"
	"time"

	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Generator asks the provider for one explanation per alert
type Generator struct {
	log      logrus.FieldLogger
	provider Provider
	prompts  *PromptBuilder
}

// NewGenerator creates a generator over provider
func NewGenerator(log logrus.FieldLogger, provider Provider, historyPoints int) (*Generator, error) {
	prompts, err := NewPromptBuilder(historyPoints)
	if err != nil {
		return nil, err
	}

	return &Generator{
		log:      log.WithField("component", "insights"),
		provider: provider,
		prompts:  prompts,
	}, nil
}

// NewFromConfig builds the provider chain described by cfg: the OpenAI
// compatible client, wrapped by the response bounds, the breaker, the rate
// limiter and, when a Redis client is given and the TTL is positive, the
// response cache.
func NewFromConfig(log logrus.FieldLogger, cfg *Config, client redis.Cmdable, keyPrefix string) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var provider Provider = NewOpenAIProvider(log, cfg)

	provider = Breaker(log, provider, cfg.Breaker)
	provider = RateLimited(provider, cfg.RequestsPerSecond, cfg.Burst)

	if client != nil && cfg.CacheTTL > 0 {
		provider = Cached(log, provider, client, keyPrefix, cfg.Model, cfg.CacheTTL)
	}

	provider = Bounded(provider, cfg.MaxPromptChars, cfg.MaxResponseChars)

	return NewGenerator(log, provider, cfg.HistoryPoints)
}

// Generate returns the insight texts of every alert the provider could
// explain. A failed alert is logged and left without insight. Only context
// cancellation is returned as an error.
func (g *Generator) Generate(ctx context.Context, alerts []pos.Alert, series []pos.DailySeriesPoint) ([]pos.InsightText, error) {
	_, groups := pos.GroupSeries(series)

	out := make([]pos.InsightText, 0, len(alerts))
	failed := 0

	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log := g.log.WithFields(logrus.Fields{
			"store_id":   alert.StoreID,
			"item_id":    alert.ItemID,
			"day":        alert.Day.Format(time.DateOnly),
			"alert_type": alert.AlertType,
		})

		prompt, err := g.prompts.Build(alert, groups[pos.SeriesKey{StoreID: alert.StoreID, ItemID: alert.ItemID}])
		if err != nil {
			return nil, err
		}

		start := time.Now()

		text, err := g.provider.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			failed++

			observability.RecordInsight("failed", time.Since(start).Seconds())
			observability.RecordError("insights", "provider")
			log.WithError(err).Warn("Insight unavailable")

			continue
		}

		observability.RecordInsight("success", time.Since(start).Seconds())

		out = append(out, pos.InsightText{
			StoreID:   alert.StoreID,
			ItemID:    alert.ItemID,
			Day:       alert.Day,
			AlertType: alert.AlertType,
			Text:      text,
		})
	}

	g.log.WithFields(logrus.Fields{
		"alerts":   len(alerts),
		"insights": len(out),
		"failed":   failed,
	}).Info("Generated insights")

	return out, nil
}
