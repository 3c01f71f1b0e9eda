package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/crewguard/internal/core/retry"
	"github.com/vietddude/crewguard/internal/infra/budget"
	"github.com/vietddude/crewguard/internal/metrics"
)

// ResilientProvider retries a Provider through a retry.Controller, keeps
// request volume inside a budget and escalates to the quota policy and a
// fallback model once the primary one stays rate limited.
type ResilientProvider struct {
	provider   Provider
	controller *retry.Controller
	policy     retry.Policy
	budget     budget.Tracker
	sleeper    retry.Sleeper

	primary  Settings
	fallback *Settings
	quota    *retry.Policy
}

// ResilientOption configures a ResilientProvider.
type ResilientOption func(*ResilientProvider)

// WithBudget throttles requests with tracker.
func WithBudget(tracker budget.Tracker) ResilientOption {
	return func(r *ResilientProvider) {
		r.budget = tracker
	}
}

// WithFallback enables the fallback model.
func WithFallback(s Settings) ResilientOption {
	return func(r *ResilientProvider) {
		if s.Model != "" {
			r.fallback = &s
		}
	}
}

// WithQuotaPolicy retries with p once the primary policy runs out on rate
// limits, against the fallback model when one is set.
func WithQuotaPolicy(p retry.Policy) ResilientOption {
	return func(r *ResilientProvider) {
		r.quota = &p
	}
}

// WithThrottleSleeper sets the sleeper used for budget waits.
func WithThrottleSleeper(s retry.Sleeper) ResilientOption {
	return func(r *ResilientProvider) {
		if s != nil {
			r.sleeper = s
		}
	}
}

// NewResilientProvider wraps p.
func NewResilientProvider(
	p Provider,
	controller *retry.Controller,
	policy retry.Policy,
	primary Settings,
	opts ...ResilientOption,
) *ResilientProvider {
	r := &ResilientProvider{
		provider:   p,
		controller: controller,
		policy:     policy,
		primary:    primary,
		sleeper:    retry.ContextSleeper{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ResilientProvider) Name() string {
	return r.provider.Name()
}

// Generate sends req to the primary model. When the primary policy runs out
// on rate limits it escalates: the fallback model and the quota policy take
// over, whichever are configured.
func (r *ResilientProvider) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := r.generate(ctx, r.policy, r.primary.Apply(req))
	if err == nil || (r.fallback == nil && r.quota == nil) {
		return resp, err
	}

	var exhausted *retry.ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Class != retry.TransientRateLimit {
		return resp, err
	}

	settings, policy := r.primary, r.policy
	if r.fallback != nil {
		settings = *r.fallback
	}
	if r.quota != nil {
		policy = *r.quota
	}

	slog.Warn("Primary model rate limited, escalating",
		"primary", r.primary.Model,
		"model", settings.Model,
		"policy", policy.Name,
		"attempts", exhausted.Attempts,
	)
	esc := req
	esc.Model, esc.Temperature, esc.MaxTokens = "", 0, 0
	return r.generate(ctx, policy, settings.Apply(esc))
}

func (r *ResilientProvider) generate(ctx context.Context, policy retry.Policy, req Request) (Response, error) {
	return retry.Do(ctx, r.controller, policy, func(ctx context.Context) (Response, error) {
		if err := r.waitForBudget(ctx, req.Model); err != nil {
			return Response{}, err
		}

		// Rejected requests still count against the API quota.
		if r.budget != nil {
			r.budget.RecordCall(req.Model)
		}

		start := time.Now()
		resp, err := r.provider.Generate(ctx, req)
		metrics.ObserveLLMRequest(r.provider.Name(), req.Model, time.Since(start), err)
		return resp, err
	})
}

func (r *ResilientProvider) waitForBudget(ctx context.Context, model string) error {
	if r.budget == nil {
		return nil
	}
	delay := r.budget.GetThrottleDelay(model)
	if delay <= 0 {
		return nil
	}
	slog.Info("Request budget throttle", "model", model, "wait", delay)
	return r.sleeper.Sleep(ctx, delay)
}
