package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mperelman/chronicle/config"
	openai_provider "github.com/mperelman/chronicle/provider/openai"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &openai_provider.StatusError{Code: 429}, true},
		{"server error", &openai_provider.StatusError{Code: 503}, true},
		{"bad request", &openai_provider.StatusError{Code: 400}, false},
		{"unauthorized", &openai_provider.StatusError{Code: 401}, false},
		{"network", errors.New("connection reset"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewProviderRequiresKey(t *testing.T) {
	if _, err := NewProvider(config.LLMConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"a narrative"}}]}`))
	}))
	defer srv.Close()

	c := openai_provider.NewClient("test-key", srv.URL, "gpt-4o-mini", 0.2, 0, 5*time.Second)
	got, err := c.Generate(context.Background(), "tell me")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "a narrative" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestOpenAIGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := openai_provider.NewClient("test-key", srv.URL, "gpt-4o-mini", 0.2, 0, 5*time.Second)
	_, err := c.Generate(context.Background(), "tell me")
	var se *openai_provider.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatal("a 429 must be retryable")
	}
}
