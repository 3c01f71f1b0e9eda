package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vietddude/crewguard/internal/core/retry"
)

var ErrEmptyResponse = errors.New("empty response from model")

var ErrNoAPIKey error = fatalError("api key not set")

// fatalError is a sentinel that waiting cannot fix.
type fatalError string

func (e fatalError) Error() string { return string(e) }
func (e fatalError) RetryClass() retry.Classification { return retry.Fatal }

// APIError is a non-2xx answer from the chat-completion API.
type APIError struct {
	StatusCode int
	Status     string // API status string, e.g. RESOURCE_EXHAUSTED
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// RetryClass classifies the error from its status, so callers never fall
// back to matching message text.
func (e *APIError) RetryClass() retry.Classification {
	status := strings.ToUpper(e.Status)
	switch {
	case e.StatusCode == http.StatusTooManyRequests, status == "RESOURCE_EXHAUSTED":
		return retry.TransientRateLimit
	case e.StatusCode == http.StatusBadRequest,
		e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusForbidden,
		e.StatusCode == http.StatusNotFound:
		return retry.Fatal
	default:
		return retry.TransientOther
	}
}
