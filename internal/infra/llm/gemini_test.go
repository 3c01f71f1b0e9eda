package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/crewguard/internal/core/retry"
)

func TestGeminiProvider_Generate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "print("}, {"text": "'hi')"}]}}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 5}
		}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL+"/", "secret", 5*time.Second)
	resp, err := p.Generate(context.Background(), Request{
		Model:       "gemini-2.0-flash",
		System:      "You write code.",
		Messages:    []Message{{Content: "hello"}},
		Temperature: 0.7,
		MaxTokens:   2048,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "You write code." {
		t.Errorf("system instruction not sent: %+v", gotBody.SystemInstruction)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Role != "user" {
		t.Errorf("contents = %+v", gotBody.Contents)
	}
	if gotBody.GenerationConfig.MaxOutputTokens != 2048 {
		t.Errorf("max tokens = %d", gotBody.GenerationConfig.MaxOutputTokens)
	}

	if resp.Text != "print('hi')" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", resp.Model)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 5 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestGeminiProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		class  retry.Classification
	}{
		{"rate limited", 429, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`, retry.TransientRateLimit},
		{"exhausted on 403", 403, `{"error":{"code":403,"message":"try later","status":"RESOURCE_EXHAUSTED"}}`, retry.TransientRateLimit},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, retry.Fatal},
		{"unauthorized", 401, `unauthorized`, retry.Fatal},
		{"server error", 503, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, retry.TransientOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "30")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewGeminiProvider(srv.URL, "secret", 5*time.Second)
			_, err := p.Generate(context.Background(), Request{Model: "m", Messages: []Message{{Content: "x"}}})

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("status = %d", apiErr.StatusCode)
			}
			if apiErr.RetryAfter != "30" {
				t.Errorf("retry after = %q", apiErr.RetryAfter)
			}
			if got := retry.DefaultClassifier(err); got != tt.class {
				t.Errorf("class = %v, want %v", got, tt.class)
			}
		})
	}
}

func TestGeminiProvider_EmptyAndMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer srv.Close()

	p := NewGeminiProvider(srv.URL, "secret", time.Second)
	if _, err := p.Generate(context.Background(), Request{Model: "m"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}

	noKey := NewGeminiProvider(srv.URL, "", time.Second)
	_, err := noKey.Generate(context.Background(), Request{Model: "m"})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	if retry.DefaultClassifier(err) != retry.Fatal {
		t.Error("missing api key should be fatal")
	}
}
