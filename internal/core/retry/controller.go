package retry

import (
	"context"
	"log/slog"
	"time"
)

// Call is the remote operation guarded by the controller.
type Call func(ctx context.Context) (any, error)

// Controller runs calls with bounded retry. It is safe for concurrent use;
// the only state shared between calls is the FailureCounter.
type Controller struct {
	classify Classifier
	sleeper  Sleeper
	observer Observer
	failures FailureCounter

	other    *Policy
	adaptive *Policy
}

// Option configures a Controller.
type Option func(*Controller)

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c Classifier) Option {
	return func(ctrl *Controller) {
		if c != nil {
			ctrl.classify = c
		}
	}
}

// WithSleeper replaces ContextSleeper.
func WithSleeper(s Sleeper) Option {
	return func(ctrl *Controller) {
		if s != nil {
			ctrl.sleeper = s
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(ctrl *Controller) {
		ctrl.observer = o
	}
}

// WithFailureCounter shares the consecutive failure count through fc.
func WithFailureCounter(fc FailureCounter) Option {
	return func(ctrl *Controller) {
		if fc != nil {
			ctrl.failures = fc
		}
	}
}

// WithOtherPolicy governs TransientOther failures with p instead of the
// policy passed to Invoke.
func WithOtherPolicy(p Policy) Option {
	return func(ctrl *Controller) {
		ctrl.other = &p
	}
}

// WithAdaptiveDelay suspends before the first attempt of every logical call
// for p.AdaptiveDelay(consecutive failures).
func WithAdaptiveDelay(p Policy) Option {
	return func(ctrl *Controller) {
		ctrl.adaptive = &p
	}
}

// NewController creates a controller with an in-memory failure counter.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		classify: DefaultClassifier,
		sleeper:  ContextSleeper{},
		failures: NewMemoryCounter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke executes call up to policy.MaxAttempts times.
//
// A Fatal failure is returned unchanged after one attempt. When the attempt
// budget runs out on transient failures the result is an *ExhaustedError.
// Cancellation is honoured only while the controller is waiting.
func (c *Controller) Invoke(ctx context.Context, policy Policy, call Call) (any, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	if c.adaptive != nil {
		delay := c.AdaptiveDelay(ctx)
		c.emit(Event{Kind: EventThrottle, Policy: policy.Name, Wait: delay})
		if err := c.sleeper.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		c.emit(Event{Kind: EventAttempt, Policy: policy.Name, Attempt: attempt + 1, MaxAttempts: policy.MaxAttempts})

		result, err := call(ctx)
		if err == nil {
			c.resetFailures(ctx)
			c.emit(Event{Kind: EventSuccess, Policy: policy.Name, Attempt: attempt + 1, MaxAttempts: policy.MaxAttempts})
			return result, nil
		}

		class := c.classify(err)
		if class == Fatal {
			c.emit(Event{Kind: EventFatal, Policy: policy.Name, Attempt: attempt + 1, MaxAttempts: policy.MaxAttempts, Class: class, Err: err})
			return nil, err
		}

		// The caller gave up while the call was in flight.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		active := policy
		if class == TransientOther && c.other != nil {
			active = *c.other
		}

		if attempt+1 >= active.MaxAttempts {
			c.incrementFailures(ctx)
			c.emit(Event{Kind: EventExhausted, Policy: active.Name, Attempt: attempt + 1, MaxAttempts: active.MaxAttempts, Class: class, Err: err})
			return nil, &ExhaustedError{
				Policy:   active.Name,
				Attempts: attempt + 1,
				Class:    class,
				LastErr:  err,
			}
		}

		wait := active.Wait(attempt)
		c.emit(Event{
			Kind:        EventRetry,
			Policy:      active.Name,
			Attempt:     attempt + 1,
			MaxAttempts: active.MaxAttempts,
			Wait:        wait,
			Class:       class,
			Err:         err,
		})
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// Do is the typed form of Controller.Invoke.
func Do[T any](ctx context.Context, c *Controller, policy Policy, call func(ctx context.Context) (T, error)) (T, error) {
	var out T
	_, err := c.Invoke(ctx, policy, func(ctx context.Context) (any, error) {
		v, err := call(ctx)
		if err != nil {
			return nil, err
		}
		out = v
		return nil, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ConsecutiveFailures returns the current failure count, or 0 if the
// counter cannot be read.
func (c *Controller) ConsecutiveFailures(ctx context.Context) int {
	n, err := c.failures.Load(ctx)
	if err != nil {
		slog.Warn("Failed to read failure counter", "error", err)
		return 0
	}
	return n
}

// AdaptiveDelay returns the pre-call throttle for the current failure count.
// Without an adaptive policy it is zero.
func (c *Controller) AdaptiveDelay(ctx context.Context) time.Duration {
	if c.adaptive == nil {
		return 0
	}
	return c.adaptive.AdaptiveDelay(c.ConsecutiveFailures(ctx))
}

// Pause suspends for max(floor, AdaptiveDelay). Used between pipeline steps.
func (c *Controller) Pause(ctx context.Context, floor time.Duration) error {
	d := max(floor, c.AdaptiveDelay(ctx))
	if d <= 0 {
		return ctx.Err()
	}
	c.emit(Event{Kind: EventThrottle, Policy: "pause", Wait: d})
	return c.sleeper.Sleep(ctx, d)
}

func (c *Controller) resetFailures(ctx context.Context) {
	if err := c.failures.Reset(ctx); err != nil {
		slog.Warn("Failed to reset failure counter", "error", err)
	}
}

func (c *Controller) incrementFailures(ctx context.Context) {
	if _, err := c.failures.Increment(ctx); err != nil {
		slog.Warn("Failed to increment failure counter", "error", err)
	}
}

func (c *Controller) emit(e Event) {
	if c.observer != nil {
		c.observer.OnEvent(e)
	}
}
