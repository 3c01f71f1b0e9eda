package retry

import (
	"context"
	"errors"
	"strings"
)

// Classification tags a failed attempt.
type Classification int

const (
	TransientOther Classification = iota
	TransientRateLimit
	Fatal
)

func (c Classification) String() string {
	switch c {
	case TransientRateLimit:
		return "rate_limit"
	case TransientOther:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Transient reports whether waiting may resolve the failure.
func (c Classification) Transient() bool {
	return c == TransientRateLimit || c == TransientOther
}

// Classified is implemented by errors that know their own classification.
// Classifiers honour it before looking at message text.
type Classified interface {
	RetryClass() Classification
}

// Classifier determines the classification for a given error.
type Classifier func(err error) Classification

// DefaultRateLimitIndicators are matched against the lowercased error text.
var DefaultRateLimitIndicators = []string{
	"429",
	"rate limit",
	"rate_limit",
	"quota",
	"resource exhausted",
	"resource_exhausted",
	"resourceexhausted",
	"too many requests",
}

// DefaultFatalIndicators mark failures that waiting will not fix.
var DefaultFatalIndicators = []string{
	"invalid api key",
	"api key not valid",
	"api_key_invalid",
	"unauthenticated",
	"unauthorized",
	"permission denied",
	"permission_denied",
	"401",
	"403",
	"invalid argument",
	"invalid_argument",
	"malformed",
}

// DefaultClassifier uses the default indicator sets.
var DefaultClassifier = NewTextClassifier(nil, nil)

// NewTextClassifier builds a classifier matching the default indicators plus
// the given extra ones. Rate-limit indicators win over fatal ones, so a
// "403 quota exceeded" response is retried.
func NewTextClassifier(extraRateLimit, extraFatal []string) Classifier {
	rateLimit := lowerAll(append(append([]string{}, DefaultRateLimitIndicators...), extraRateLimit...))
	fatal := lowerAll(append(append([]string{}, DefaultFatalIndicators...), extraFatal...))

	return func(err error) Classification {
		if err == nil {
			return TransientOther
		}

		var c Classified
		if errors.As(err, &c) {
			return c.RetryClass()
		}
		if errors.Is(err, context.Canceled) {
			return Fatal
		}

		s := strings.ToLower(err.Error())
		if containsAny(s, rateLimit) {
			return TransientRateLimit
		}
		if containsAny(s, fatal) {
			return Fatal
		}
		// Network, 5xx, timeouts
		return TransientOther
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
