package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/crewguard/internal/core/config"
	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/core/retry"
	"github.com/vietddude/crewguard/internal/infra/llm"
	"github.com/vietddude/crewguard/internal/infra/storage/memory"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

var testPolicy = retry.Policy{
	Name:          "crew",
	Mode:          retry.ModeLinear,
	MaxAttempts:   3,
	BaseWait:      60 * time.Second,
	StepIncrement: 30 * time.Second,
}

func newTestRunner(t *testing.T, provider llm.Provider, opts ...retry.Option) (*Runner, *recordingSleeper, *memory.RunRepo) {
	t.Helper()
	sleeper := &recordingSleeper{}
	opts = append([]retry.Option{retry.WithSleeper(sleeper), retry.WithClassifier(CrewClassifier())}, opts...)
	repo := memory.NewRunRepo()
	cfg := Config{
		Steps:      config.DefaultSteps(),
		Policy:     testPolicy,
		StepDelay:  15 * time.Second,
		OutputPath: filepath.Join(t.TempDir(), "out", "game.py"),
	}
	return NewRunner(cfg, provider, retry.NewController(opts...), repo), sleeper, repo
}

func equalWaits(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunner_HandsOffBetweenSteps(t *testing.T) {
	provider := llm.NewScriptedProvider(
		llm.Reply{Text: "draft code"},
		llm.Reply{Text: "reviewed code"},
		llm.Reply{Text: "final code"},
	)
	runner, sleeper, repo := newTestRunner(t, provider)

	run, err := runner.Run(context.Background(), "  build a snake game ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != domain.RunStatusSucceeded || run.Output != "final code" || run.Attempts != 1 {
		t.Errorf("unexpected run %+v", run)
	}
	if len(run.Steps) != 3 || run.Steps[1].Name != "review" {
		t.Errorf("steps = %+v", run.Steps)
	}

	reqs := provider.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if !strings.Contains(reqs[0].Messages[0].Content, "build a snake game") {
		t.Errorf("first request lacks instructions: %q", reqs[0].Messages[0].Content)
	}
	if !strings.Contains(reqs[1].Messages[0].Content, "draft code") {
		t.Errorf("review step did not receive code output")
	}
	if !strings.Contains(reqs[2].Messages[0].Content, "reviewed code") {
		t.Errorf("evaluate step did not receive review output")
	}
	if !strings.Contains(reqs[1].System, "qa engineer") {
		t.Errorf("system prompt = %q", reqs[1].System)
	}

	if got := sleeper.recorded(); !equalWaits(got, []time.Duration{15 * time.Second, 15 * time.Second}) {
		t.Errorf("waits = %v", got)
	}

	data, err := os.ReadFile(runner.cfg.OutputPath)
	if err != nil || string(data) != "final code" {
		t.Errorf("output file = %q, %v", data, err)
	}

	stored, err := repo.Get(context.Background(), run.ID)
	if err != nil || stored.Status != domain.RunStatusSucceeded {
		t.Errorf("stored run = %+v, %v", stored, err)
	}
}

func TestRunner_RetriesWholeRunOnRateLimit(t *testing.T) {
	provider := llm.NewScriptedProvider(
		llm.Reply{Err: errors.New("429 rate limit")},
		llm.Reply{Text: "a"},
		llm.Reply{Text: "b"},
		llm.Reply{Text: "c"},
	)
	runner, sleeper, _ := newTestRunner(t, provider)

	run, err := runner.Run(context.Background(), "snake")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Attempts != 2 || run.Output != "c" {
		t.Errorf("unexpected run %+v", run)
	}
	want := []time.Duration{60 * time.Second, 15 * time.Second, 15 * time.Second}
	if got := sleeper.recorded(); !equalWaits(got, want) {
		t.Errorf("waits = %v, want %v", got, want)
	}
}

func TestRunner_FailureStatuses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		opts     []retry.Option
		status   domain.RunStatus
		attempts int
	}{
		{"iteration limit", errors.New("Agent stopped due to iteration limit or time limit."), nil, domain.RunStatusRateLimited, 3},
		{"fatal", errors.New("API key not valid"), nil, domain.RunStatusFailed, 1},
		{
			"other transient",
			errors.New("connection reset by peer"),
			[]retry.Option{retry.WithOtherPolicy(retry.Policy{Name: "other", MaxAttempts: 2, BaseWait: time.Second})},
			domain.RunStatusRetriesExhausted,
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := llm.NewScriptedProvider(llm.Reply{Err: tt.err})
			runner, _, repo := newTestRunner(t, provider, tt.opts...)

			run, err := runner.Run(context.Background(), "snake")
			if err == nil {
				t.Fatal("expected error")
			}
			if run.Status != tt.status {
				t.Errorf("status = %s, want %s", run.Status, tt.status)
			}
			if run.Attempts != tt.attempts {
				t.Errorf("attempts = %d, want %d", run.Attempts, tt.attempts)
			}
			if run.Error == "" || run.FinishedAt.IsZero() {
				t.Errorf("run not finalized: %+v", run)
			}
			if _, statErr := os.Stat(runner.cfg.OutputPath); !os.IsNotExist(statErr) {
				t.Errorf("output written for failed run")
			}

			stored, _ := repo.Get(context.Background(), run.ID)
			if stored == nil || stored.Status != tt.status {
				t.Errorf("stored run = %+v", stored)
			}
		})
	}
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := llm.NewScriptedProvider(llm.Reply{Err: errors.New("quota exceeded")})
	runner, _, _ := newTestRunner(t, provider)

	run, err := runner.Run(ctx, "snake")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if run.Status != domain.RunStatusCancelled {
		t.Errorf("status = %s", run.Status)
	}
}

func TestRunner_RejectsEmptyInput(t *testing.T) {
	runner, _, _ := newTestRunner(t, llm.NewScriptedProvider())
	if _, err := runner.Run(context.Background(), "   "); !errors.Is(err, ErrNoInstructions) {
		t.Errorf("expected ErrNoInstructions, got %v", err)
	}

	runner.cfg.Steps = nil
	if _, err := runner.Run(context.Background(), "snake"); !errors.Is(err, ErrNoSteps) {
		t.Errorf("expected ErrNoSteps, got %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		expect domain.RunStatus
	}{
		{nil, domain.RunStatusSucceeded},
		{context.DeadlineExceeded, domain.RunStatusCancelled},
		{&retry.ExhaustedError{Class: retry.TransientRateLimit}, domain.RunStatusRateLimited},
		{&retry.ExhaustedError{Class: retry.TransientOther}, domain.RunStatusRetriesExhausted},
		{errors.New("boom"), domain.RunStatusFailed},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.expect {
			t.Errorf("statusFor(%v) = %s, want %s", tt.err, got, tt.expect)
		}
	}
}
