// Package retry implements bounded, adaptive retry around calls to a
// rate-limited, quota-bearing remote API.
//
// This package contains:
//   - Policy: immutable wait/attempt configuration (linear or exponential)
//   - Classifier: maps an error to TransientRateLimit, TransientOther or Fatal
//   - Controller: runs a call up to MaxAttempts times and tracks consecutive
//     failures across logical calls to drive an adaptive pre-call delay
//   - Sleeper: the suspension primitive, optionally reporting progress
package retry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Mode selects how waits grow between attempts.
type Mode string

const (
	ModeLinear      Mode = "linear"
	ModeExponential Mode = "exponential"
)

// Adaptive delays stop growing after this many consecutive failures.
const maxAdaptiveExponent = 5

// Policy defines retry behavior for one logical call.
type Policy struct {
	Name          string        `yaml:"name"`
	Mode          Mode          `yaml:"mode"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseWait      time.Duration `yaml:"base_wait"`
	StepIncrement time.Duration `yaml:"step_increment"` // linear mode only
	BackoffBase   float64       `yaml:"backoff_base"`   // exponential and adaptive
	MaxWait       time.Duration `yaml:"max_wait"`       // 0 = uncapped
}

// AgentPolicy retries a single LLM request: 60s, 90s, 120s, ...
var AgentPolicy = Policy{
	Name:          "agent",
	Mode:          ModeLinear,
	MaxAttempts:   10,
	BaseWait:      60 * time.Second,
	StepIncrement: 30 * time.Second,
	BackoffBase:   1,
}

// AgentOtherPolicy retries a single LLM request after a non rate-limit
// failure such as a 5xx or a dropped connection.
var AgentOtherPolicy = Policy{
	Name:        "agent-other",
	Mode:        ModeExponential,
	MaxAttempts: 3,
	BaseWait:    5 * time.Second,
	BackoffBase: 2,
	MaxWait:     20 * time.Second,
}

// CrewPolicy retries a whole pipeline run after a rate limit.
var CrewPolicy = Policy{
	Name:          "crew",
	Mode:          ModeLinear,
	MaxAttempts:   10,
	BaseWait:      60 * time.Second,
	StepIncrement: 30 * time.Second,
	BackoffBase:   1,
}

// CrewOtherPolicy retries a pipeline run after a non rate-limit failure.
var CrewOtherPolicy = Policy{
	Name:        "crew-other",
	Mode:        ModeExponential,
	MaxAttempts: 4,
	BaseWait:    20 * time.Second,
	BackoffBase: 2,
	MaxWait:     80 * time.Second,
}

// QuotaPolicy waits for sustained quota exhaustion to clear. It governs the
// second phase of a request once the first policy ran out on rate limits.
var QuotaPolicy = Policy{
	Name:        "quota",
	Mode:        ModeExponential,
	MaxAttempts: 10,
	BaseWait:    65 * time.Second,
	BackoffBase: 2,
	MaxWait:     5 * time.Minute,
}

// AdaptivePolicy throttles calls before the first attempt based on how many
// logical calls failed in a row.
var AdaptivePolicy = Policy{
	Name:        "adaptive",
	Mode:        ModeExponential,
	MaxAttempts: 1,
	BaseWait:    3 * time.Second,
	BackoffBase: 2,
	MaxWait:     5 * time.Minute,
}

var (
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

// Validate checks that the policy can drive a retry loop.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w %q: max_attempts must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.BaseWait <= 0 {
		return fmt.Errorf("%w %q: base_wait must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.StepIncrement < 0 {
		return fmt.Errorf("%w %q: step_increment must be >= 0", ErrInvalidPolicy, p.Name)
	}
	if p.MaxWait < 0 {
		return fmt.Errorf("%w %q: max_wait must be >= 0", ErrInvalidPolicy, p.Name)
	}
	if p.BackoffBase != 0 && p.BackoffBase < 1 {
		return fmt.Errorf("%w %q: backoff_base must be >= 1", ErrInvalidPolicy, p.Name)
	}

	switch p.Mode {
	case ModeLinear, "":
	case ModeExponential:
		if p.BackoffBase <= 1 {
			return fmt.Errorf("%w %q: exponential mode needs backoff_base > 1", ErrInvalidPolicy, p.Name)
		}
		if p.MaxWait <= 0 {
			return fmt.Errorf("%w %q: exponential mode needs max_wait", ErrInvalidPolicy, p.Name)
		}
	default:
		return fmt.Errorf("%w %q: unknown mode %q", ErrInvalidPolicy, p.Name, p.Mode)
	}
	return nil
}

// Wait returns how long to suspend after the failed attempt attemptIndex
// (0-based) before the next one.
func (p Policy) Wait(attemptIndex int) time.Duration {
	if attemptIndex < 0 {
		attemptIndex = 0
	}

	var wait time.Duration
	if p.Mode == ModeExponential {
		wait = p.scaled(attemptIndex)
	} else {
		wait = p.BaseWait + time.Duration(attemptIndex)*p.StepIncrement
	}
	return p.capped(wait)
}

// AdaptiveDelay returns the pre-call throttle for the given number of
// consecutive failed logical calls.
func (p Policy) AdaptiveDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures < 0 {
		consecutiveFailures = 0
	}
	return p.capped(p.scaled(min(consecutiveFailures, maxAdaptiveExponent)))
}

// Schedule lists the waits a caller would see if every attempt failed.
func (p Policy) Schedule() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	waits := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 0; i < p.MaxAttempts-1; i++ {
		waits = append(waits, p.Wait(i))
	}
	return waits
}

func (p Policy) scaled(exp int) time.Duration {
	base := p.BackoffBase
	if base < 1 {
		base = 1
	}
	d := float64(p.BaseWait) * math.Pow(base, float64(exp))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p Policy) capped(d time.Duration) time.Duration {
	if p.MaxWait > 0 && d > p.MaxWait {
		return p.MaxWait
	}
	return d
}
