package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/researchhub/identity/internal/model"
)

func validatorForServer(srv *httptest.Server) *HTTPValidator {
	return NewHTTPValidator(Config{
		Timeout:           2 * time.Second,
		PerplexityBaseURL: srv.URL,
		OpenAIBaseURL:     srv.URL,
		AnthropicBaseURL:  srv.URL,
		SerpAPIBaseURL:    srv.URL,
	})
}

func TestValidateKey_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := validatorForServer(srv)

	for _, p := range model.Providers {
		if err := v.ValidateKey(context.Background(), p, "some-key"); err != nil {
			t.Errorf("ValidateKey(%s) = %v, want nil", p, err)
		}
	}
}

func TestValidateKey_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := validatorForServer(srv)

	err := v.ValidateKey(context.Background(), model.ProviderOpenAI, "bad-key")

	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected KeyError, got %v", err)
	}
	if keyErr.Retryable {
		t.Error("a 401 should not be retryable")
	}
	if keyErr.Provider != model.ProviderOpenAI {
		t.Errorf("expected provider openai, got %s", keyErr.Provider)
	}
}

func TestValidateKey_ProviderOutageIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v := validatorForServer(srv)

	err := v.ValidateKey(context.Background(), model.ProviderSerpAPI, "some-key")

	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected KeyError, got %v", err)
	}
	if !keyErr.Retryable {
		t.Error("a 503 should be retryable")
	}
}

func TestValidateKey_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	v := validatorForServer(srv)

	err := v.ValidateKey(context.Background(), model.ProviderPerplexity, "some-key")

	var keyErr *KeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("expected KeyError, got %v", err)
	}
	if !keyErr.Retryable {
		t.Error("network failure should be retryable")
	}
}

func TestValidateKey_SendsProviderHeaders(t *testing.T) {
	var gotAuth, gotAPIKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
	}))
	defer srv.Close()

	v := validatorForServer(srv)

	if err := v.ValidateKey(context.Background(), model.ProviderAnthropic, "sk-ant-123"); err != nil {
		t.Fatalf("ValidateKey failed: %v", err)
	}
	if gotAPIKey != "sk-ant-123" {
		t.Errorf("expected x-api-key header, got %q", gotAPIKey)
	}
	if gotVersion != anthropicVersion {
		t.Errorf("expected anthropic-version header, got %q", gotVersion)
	}

	if err := v.ValidateKey(context.Background(), model.ProviderOpenAI, "sk-123"); err != nil {
		t.Fatalf("ValidateKey failed: %v", err)
	}
	if gotAuth != "Bearer sk-123" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}
