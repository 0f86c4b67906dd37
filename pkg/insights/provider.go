// Package insights produces free-text explanations for alerts through an
// external text generation model
package insights

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoChoices is returned when the model answers without any choice
	ErrNoChoices = errors.New("model returned no choices")
	// ErrEmptyResponse is returned when the model answers with blank text
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Provider turns a prompt into a response text
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f
func (f ProviderFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// OpenAIProvider talks to an OpenAI compatible chat completion endpoint
type OpenAIProvider struct {
	log    logrus.FieldLogger
	client *openai.Client
	cfg    *Config
}

// NewOpenAIProvider creates a chat completion provider
func NewOpenAIProvider(log logrus.FieldLogger, cfg *Config) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		log:    log.WithField("component", "openai_provider"),
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// Generate implements Provider
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	p.log.WithFields(logrus.Fields{
		"model":         resp.Model,
		"finish_reason": resp.Choices[0].FinishReason,
		"tokens":        resp.Usage.TotalTokens,
	}).Debug("Received completion")

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}
