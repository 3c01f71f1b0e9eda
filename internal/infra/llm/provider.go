// Package llm implements chat-completion providers.
//
// This package contains:
//   - Provider interface: core abstraction for a chat-completion endpoint
//   - GeminiProvider: generateContent over HTTP
//   - ScriptedProvider: replays canned replies (tests, dry runs)
//   - ResilientProvider: retry, request budget and fallback model around a Provider
package llm

import (
	"context"
	"time"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is a single chat-completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting returned by the API.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the generated reply.
type Response struct {
	Text    string
	Model   string
	Usage   Usage
	Latency time.Duration
}

// Provider defines the interface for any chat-completion backend.
type Provider interface {
	// Name returns provider identifier (e.g., "gemini")
	Name() string

	// Generate performs one request without retrying
	Generate(ctx context.Context, req Request) (Response, error)
}

// Settings are the generation parameters for one model.
type Settings struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Apply fills unset request fields from s.
func (s Settings) Apply(req Request) Request {
	if req.Model == "" {
		req.Model = s.Model
	}
	if req.Temperature == 0 {
		req.Temperature = s.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.MaxTokens
	}
	return req
}
