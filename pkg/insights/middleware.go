package insights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/posintel/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Bounded truncates the prompt to maxPrompt runes before calling the provider
// and the response to maxResponse runes after it
func Bounded(p Provider, maxPrompt, maxResponse int) Provider {
	return ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		out, err := p.Generate(ctx, truncateRunes(prompt, maxPrompt))
		if err != nil {
			return "", err
		}

		return truncateRunes(out, maxResponse), nil
	})
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}

	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}

// Breaker fails fast once the provider has failed cfg.MaxFailures times in a
// row. The breaker half-opens after cfg.Timeout.
func Breaker(log logrus.FieldLogger, p Provider, cfg BreakerConfig) Provider {
	log = log.WithField("component", "insight_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "insights",
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Insight provider breaker changed state")
		},
		// Cancellation is not a provider failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		out, err := cb.Execute(func() (interface{}, error) {
			return p.Generate(ctx, prompt)
		})
		if err != nil {
			return "", err
		}

		text, _ := out.(string)

		return text, nil
	})
}

// RateLimited waits for a token before every call. A non-positive rps
// returns the provider unchanged.
func RateLimited(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}

	limiter := rate.NewLimiter(rate.Limit(rps), max(burst, 1))

	return ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		return p.Generate(ctx, prompt)
	})
}

// Cached stores responses in Redis keyed by the SHA-256 of the model and the
// prompt, so a full recompute over unchanged history does not query the
// model again. Redis failures fall through to the provider.
func Cached(log logrus.FieldLogger, p Provider, client redis.Cmdable, keyPrefix, model string, ttl time.Duration) Provider {
	log = log.WithField("component", "insight_cache")

	return ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		key := CacheKey(keyPrefix, model, prompt)

		cached, err := client.Get(ctx, key).Result()

		switch {
		case err == nil:
			observability.RecordInsight("cached", 0)

			return cached, nil
		case !errors.Is(err, redis.Nil):
			log.WithError(err).Warn("Failed to read insight cache")
		}

		out, err := p.Generate(ctx, prompt)
		if err != nil {
			return "", err
		}

		if err := client.Set(ctx, key, out, ttl).Err(); err != nil {
			log.WithError(err).Warn("Failed to write insight cache")
		}

		return out, nil
	})
}

// CacheKey returns the Redis key of a cached response
func CacheKey(prefix, model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	key := "insight:" + hex.EncodeToString(sum[:])

	if prefix == "" {
		return key
	}

	return prefix + ":" + key
}
