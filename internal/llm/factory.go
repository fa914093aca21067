package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config selects and configures a provider.
type Config struct {
	Provider   string // "anthropic" (default) or "gemini"
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// New builds the configured provider wrapped with retries.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: no API key configured for provider %q", cfg.Provider)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var provider Provider
	switch cfg.Provider {
	case "", "anthropic":
		provider = NewAnthropic(httpClient, cfg.APIKey, cfg.BaseURL)
	case "gemini":
		baseURL := cfg.BaseURL
		if baseURL == DefaultAnthropicBaseURL {
			baseURL = ""
		}
		gemini, err := NewGemini(ctx, httpClient, cfg.APIKey, baseURL)
		if err != nil {
			return nil, err
		}
		provider = gemini
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	return WithRetry(provider, cfg.MaxRetries, logger), nil
}
