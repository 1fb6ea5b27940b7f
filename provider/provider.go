// Package provider abstracts the external text-generation service. The core
// pipeline assumes nothing about it beyond this interface: a prompt in, text
// out, subject to latency, transient failures and rate limits.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mperelman/chronicle/config"
	openai_provider "github.com/mperelman/chronicle/provider/openai"
)

// Provider is the interface every generation backend must satisfy.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds the configured generation client.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm.api_key not set")
	}
	return openai_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
}

// transient is implemented by errors that are worth retrying.
type transient interface {
	Transient() bool
}

// IsTransient reports whether err represents a rate limit or a temporary
// service/network failure that a retry may clear.
func IsTransient(err error) bool {
	var tr transient
	if errors.As(err, &tr) {
		return tr.Transient()
	}
	// Plain network errors from the HTTP client are wrapped opaquely; treat
	// anything that is not a definitive API rejection as retryable.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Describe is a short label for logs.
func Describe(p Provider) string {
	return fmt.Sprintf("%T", p)
}
