package llm

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestGeminiProvider_Live(t *testing.T) {
	if os.Getenv("E2E_LIVE") != "true" {
		t.Skip("Skipping live test. Set E2E_LIVE=true to run.")
	}
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}

	p := NewGeminiProvider("", apiKey, time.Minute)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	resp, err := p.Generate(ctx, Request{
		Model:     "gemini-2.0-flash",
		Messages:  []Message{{Role: RoleUser, Content: "Reply with the single word: pong"}},
		MaxTokens: 16,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	t.Logf("reply=%q model=%s latency=%v", resp.Text, resp.Model, resp.Latency)
}
