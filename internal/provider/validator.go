// Package provider validates user-supplied integration API keys against the
// provider's own API before they are stored.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/researchhub/identity/internal/model"
)

// KeyError reports a failed key validation. Retryable distinguishes a
// provider outage or network failure from a rejected key.
type KeyError struct {
	Provider  model.Provider
	Message   string
	Retryable bool
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Config holds validator settings. Base URLs are overridable for tests.
type Config struct {
	Timeout time.Duration

	PerplexityBaseURL string
	OpenAIBaseURL     string
	AnthropicBaseURL  string
	SerpAPIBaseURL    string
}

// Default provider endpoints.
const (
	defaultPerplexityBaseURL = "https://api.perplexity.ai"
	defaultOpenAIBaseURL     = "https://api.openai.com"
	defaultAnthropicBaseURL  = "https://api.anthropic.com"
	defaultSerpAPIBaseURL    = "https://serpapi.com"

	anthropicVersion = "2023-06-01"
)

// HTTPValidator checks keys with one lightweight authenticated request per
// provider.
type HTTPValidator struct {
	cfg    Config
	client *http.Client
}

// NewHTTPValidator creates a validator with the given configuration.
func NewHTTPValidator(cfg Config) *HTTPValidator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.PerplexityBaseURL == "" {
		cfg.PerplexityBaseURL = defaultPerplexityBaseURL
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = defaultOpenAIBaseURL
	}
	if cfg.AnthropicBaseURL == "" {
		cfg.AnthropicBaseURL = defaultAnthropicBaseURL
	}
	if cfg.SerpAPIBaseURL == "" {
		cfg.SerpAPIBaseURL = defaultSerpAPIBaseURL
	}

	return &HTTPValidator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// ValidateKey performs the provider-specific check for the given key.
// A nil return means the provider accepted the key.
func (v *HTTPValidator) ValidateKey(ctx context.Context, p model.Provider, key string) error {
	switch p {
	case model.ProviderPerplexity:
		return v.check(ctx, p, v.cfg.PerplexityBaseURL+"/models", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
		})
	case model.ProviderOpenAI:
		return v.check(ctx, p, v.cfg.OpenAIBaseURL+"/v1/models", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+key)
		})
	case model.ProviderAnthropic:
		return v.check(ctx, p, v.cfg.AnthropicBaseURL+"/v1/models", func(r *http.Request) {
			r.Header.Set("x-api-key", key)
			r.Header.Set("anthropic-version", anthropicVersion)
		})
	case model.ProviderSerpAPI:
		return v.check(ctx, p, v.cfg.SerpAPIBaseURL+"/account?api_key="+key, func(r *http.Request) {})
	default:
		// Unknown providers are rejected at the edge; this is a safety net.
		return &KeyError{Provider: p, Message: "unsupported provider"}
	}
}

// check issues the validation request and classifies the outcome.
func (v *HTTPValidator) check(ctx context.Context, p model.Provider, url string, decorate func(*http.Request)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	decorate(req)

	resp, err := v.client.Do(req)
	if err != nil {
		return &KeyError{
			Provider:  p,
			Message:   fmt.Sprintf("Unable to reach %s for validation. Please try again.", p.Label()),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &KeyError{
			Provider: p,
			Message:  fmt.Sprintf("%s rejected the API key. Double-check the value and try again.", p.Label()),
		}
	case resp.StatusCode >= 400:
		return &KeyError{
			Provider:  p,
			Message:   fmt.Sprintf("%s validation is unavailable right now. Retry shortly.", p.Label()),
			Retryable: true,
		}
	}
	return nil
}
