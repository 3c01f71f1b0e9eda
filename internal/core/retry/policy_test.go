package retry

import (
	"errors"
	"testing"
	"time"
)

func TestPolicyWait(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		expect  time.Duration
	}{
		{"linear first", AgentPolicy, 0, 60 * time.Second},
		{"linear second", AgentPolicy, 1, 90 * time.Second},
		{"linear third", AgentPolicy, 2, 120 * time.Second},
		{"exponential first", QuotaPolicy, 0, 65 * time.Second},
		{"exponential second", QuotaPolicy, 1, 130 * time.Second},
		{"exponential third", QuotaPolicy, 2, 260 * time.Second},
		{"exponential capped", QuotaPolicy, 3, 5 * time.Minute},
		{"exponential far capped", QuotaPolicy, 200, 5 * time.Minute},
		{"linear capped", Policy{BaseWait: time.Second, StepIncrement: time.Second, MaxWait: 3 * time.Second}, 10, 3 * time.Second},
		{"negative attempt", AgentPolicy, -1, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Wait(tt.attempt); got != tt.expect {
				t.Errorf("Wait(%d) = %v, want %v", tt.attempt, got, tt.expect)
			}
		})
	}
}

func TestPolicyWait_ExponentialMonotonicAndCapped(t *testing.T) {
	policies := []Policy{
		QuotaPolicy,
		CrewOtherPolicy,
		{Mode: ModeExponential, BaseWait: 100 * time.Millisecond, BackoffBase: 1.5, MaxWait: 7 * time.Second},
	}
	for _, p := range policies {
		prev := time.Duration(0)
		for i := 0; i < 100; i++ {
			w := p.Wait(i)
			if w < prev {
				t.Fatalf("%s: Wait(%d)=%v < Wait(%d)=%v", p.Name, i, w, i-1, prev)
			}
			if w > p.MaxWait {
				t.Fatalf("%s: Wait(%d)=%v exceeds max %v", p.Name, i, w, p.MaxWait)
			}
			prev = w
		}
	}
}

func TestPolicyAdaptiveDelay(t *testing.T) {
	tests := []struct {
		failures int
		expect   time.Duration
	}{
		{0, 3 * time.Second},
		{1, 6 * time.Second},
		{3, 24 * time.Second},
		{5, 96 * time.Second},
		{6, 96 * time.Second},
		{50, 96 * time.Second},
	}
	for _, tt := range tests {
		if got := AdaptivePolicy.AdaptiveDelay(tt.failures); got != tt.expect {
			t.Errorf("AdaptiveDelay(%d) = %v, want %v", tt.failures, got, tt.expect)
		}
	}

	capped := Policy{BaseWait: 100 * time.Second, BackoffBase: 2, MaxWait: 300 * time.Second}
	if got := capped.AdaptiveDelay(5); got != 300*time.Second {
		t.Errorf("capped AdaptiveDelay = %v, want 300s", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	valid := []Policy{AgentPolicy, AgentOtherPolicy, CrewPolicy, CrewOtherPolicy, QuotaPolicy, AdaptivePolicy}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", p.Name, err)
		}
	}

	invalid := []Policy{
		{Name: "no attempts", BaseWait: time.Second},
		{Name: "no wait", MaxAttempts: 1},
		{Name: "negative step", MaxAttempts: 1, BaseWait: time.Second, StepIncrement: -time.Second},
		{Name: "exp base", Mode: ModeExponential, MaxAttempts: 1, BaseWait: time.Second, BackoffBase: 1, MaxWait: time.Minute},
		{Name: "exp cap", Mode: ModeExponential, MaxAttempts: 1, BaseWait: time.Second, BackoffBase: 2},
		{Name: "mode", Mode: "fibonacci", MaxAttempts: 1, BaseWait: time.Second},
	}
	for _, p := range invalid {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
			t.Errorf("%s: expected ErrInvalidPolicy, got %v", p.Name, err)
		}
	}
}

func TestPolicySchedule(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseWait: 10 * time.Second, StepIncrement: 5 * time.Second}
	got := p.Schedule()
	want := []time.Duration{10 * time.Second, 15 * time.Second, 20 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("Schedule() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Schedule()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if s := (Policy{MaxAttempts: 1, BaseWait: time.Second}).Schedule(); s != nil {
		t.Errorf("single attempt schedule = %v, want nil", s)
	}
}
