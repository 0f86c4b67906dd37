package insights

import (
	"errors"
	"time"
)

var (
	// ErrModelRequired is returned when insights are enabled without a model
	ErrModelRequired = errors.New("insights model is required")
	// ErrInvalidLimits is returned when a prompt or response limit is not positive
	ErrInvalidLimits = errors.New("insight prompt and response limits must be positive")
	// ErrInvalidHistory is returned when the history length is not positive
	ErrInvalidHistory = errors.New("insight history points must be positive")
	// ErrInvalidRate is returned when the request rate is negative
	ErrInvalidRate = errors.New("insight requests per second must not be negative")
)

// Config configures the insight provider chain
type Config struct {
	Enabled bool `yaml:"enabled" default:"false"`

	// BaseURL points at any OpenAI compatible server, for example a local
	// Llama deployment. Empty uses the public OpenAI endpoint.
	BaseURL      string        `yaml:"baseURL"`
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model" default:"meta-llama/Meta-Llama-3-8B-Instruct"`
	SystemPrompt string        `yaml:"systemPrompt" default:"You are a POS trends analyst for a retail chain."`
	MaxTokens    int           `yaml:"maxTokens" default:"512"`
	Temperature  float32       `yaml:"temperature" default:"0.2"`
	Timeout      time.Duration `yaml:"timeout" default:"60s"`

	MaxPromptChars   int `yaml:"maxPromptChars" default:"8000"`
	MaxResponseChars int `yaml:"maxResponseChars" default:"4000"`
	HistoryPoints    int `yaml:"historyPoints" default:"14"`

	// RequestsPerSecond of zero disables rate limiting
	RequestsPerSecond float64 `yaml:"requestsPerSecond" default:"0"`
	Burst             int     `yaml:"burst" default:"1"`

	// CacheTTL of zero disables the response cache
	CacheTTL time.Duration `yaml:"cacheTTL" default:"24h"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around the provider
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker
	MaxFailures uint32        `yaml:"maxFailures" default:"5"`
	Timeout     time.Duration `yaml:"timeout" default:"60s"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Model == "" {
		return ErrModelRequired
	}

	if c.MaxPromptChars <= 0 || c.MaxResponseChars <= 0 {
		return ErrInvalidLimits
	}

	if c.HistoryPoints <= 0 {
		return ErrInvalidHistory
	}

	if c.RequestsPerSecond < 0 {
		return ErrInvalidRate
	}

	if c.Burst < 1 {
		c.Burst = 1
	}

	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}

	return nil
}
