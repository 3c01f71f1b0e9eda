// Package pipeline runs the sequential agent handoff under crew-level retry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/crewguard/internal/core/config"
	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/core/retry"
	"github.com/vietddude/crewguard/internal/infra/llm"
	"github.com/vietddude/crewguard/internal/infra/storage"
	"github.com/vietddude/crewguard/internal/metrics"
)

var (
	ErrNoInstructions = errors.New("no instructions given")
	ErrNoSteps        = errors.New("pipeline has no steps")
)

// CrewIndicators mark agent runs that stopped on an execution limit. They
// are retried like rate limits.
var CrewIndicators = []string{"iteration limit", "time limit"}

// CrewClassifier is the classifier for whole-run retries.
func CrewClassifier() retry.Classifier {
	return retry.NewTextClassifier(CrewIndicators, nil)
}

// Config holds runner settings.
type Config struct {
	Steps      []config.StepConfig
	Policy     retry.Policy  // crew-level policy
	StepDelay  time.Duration // minimum pause between steps
	OutputPath string        // "" = don't write
}

// Runner executes pipeline runs.
type Runner struct {
	cfg        Config
	provider   llm.Provider
	controller *retry.Controller
	repo       storage.RunRepository
	now        func() time.Time
}

// NewRunner creates a runner. controller guards whole runs and provides the
// pause between steps; per-request retry belongs to provider.
func NewRunner(cfg Config, provider llm.Provider, controller *retry.Controller, repo storage.RunRepository) *Runner {
	return &Runner{
		cfg:        cfg,
		provider:   provider,
		controller: controller,
		repo:       repo,
		now:        time.Now,
	}
}

// Run executes every step for instructions and records the run. The
// returned run is populated even when err is non-nil.
func (r *Runner) Run(ctx context.Context, instructions string) (*domain.Run, error) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return nil, ErrNoInstructions
	}
	if len(r.cfg.Steps) == 0 {
		return nil, ErrNoSteps
	}

	run := &domain.Run{
		ID:           uuid.NewString(),
		Instructions: instructions,
		Status:       domain.RunStatusRunning,
		StartedAt:    r.now(),
	}
	r.save(ctx, run)

	slog.Info("Starting pipeline run", "run_id", run.ID, "steps", len(r.cfg.Steps), "policy", r.cfg.Policy.Name)

	steps, err := retry.Do(ctx, r.controller, r.cfg.Policy, func(ctx context.Context) ([]domain.StepResult, error) {
		run.Attempts++
		return r.execute(ctx, run.ID, instructions)
	})

	run.FinishedAt = r.now()
	run.Status = statusFor(err)
	if err != nil {
		run.Error = err.Error()
	} else {
		run.Steps = steps
		run.Output = steps[len(steps)-1].Output
		if werr := r.writeOutput(run.Output); werr != nil {
			slog.Error("Failed to write output", "path", r.cfg.OutputPath, "error", werr)
		}
	}

	// Record the outcome even if the caller gave up.
	r.save(context.WithoutCancel(ctx), run)
	metrics.ObservePipelineRun(string(run.Status), run.Duration())

	if err != nil {
		slog.Error("Pipeline run failed",
			"run_id", run.ID,
			"status", run.Status,
			"attempts", run.Attempts,
			"duration", run.Duration(),
			"error", err,
		)
		return run, err
	}
	slog.Info("Pipeline run completed", "run_id", run.ID, "attempts", run.Attempts, "duration", run.Duration())
	return run, nil
}

// execute performs one pass over the steps, handing each output to the next.
func (r *Runner) execute(ctx context.Context, runID string, instructions string) ([]domain.StepResult, error) {
	results := make([]domain.StepResult, 0, len(r.cfg.Steps))
	previous := ""

	for i, step := range r.cfg.Steps {
		if i > 0 {
			if err := r.controller.Pause(ctx, r.cfg.StepDelay); err != nil {
				return nil, err
			}
		}

		slog.Info("Running step", "run_id", runID, "step", step.Name, "index", i+1, "total", len(r.cfg.Steps))
		start := r.now()
		resp, err := r.provider.Generate(ctx, buildRequest(step, instructions, previous))
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.Name, err)
		}

		results = append(results, domain.StepResult{
			Name:     step.Name,
			Model:    resp.Model,
			Output:   resp.Text,
			Duration: r.now().Sub(start),
		})
		previous = resp.Text
	}
	return results, nil
}

func buildRequest(step config.StepConfig, instructions, previous string) llm.Request {
	var b strings.Builder
	b.WriteString(step.Instruction)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString(instructions)
	if previous != "" {
		b.WriteString("\n\nOutput of the previous step:\n")
		b.WriteString(previous)
	}

	return llm.Request{
		System:   fmt.Sprintf("You are the %s of the team.", step.Role),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	}
}

func (r *Runner) writeOutput(output string) error {
	if r.cfg.OutputPath == "" {
		return nil
	}
	if dir := filepath.Dir(r.cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(r.cfg.OutputPath, []byte(output), 0o644)
}

func (r *Runner) save(ctx context.Context, run *domain.Run) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(ctx, run); err != nil {
		slog.Warn("Failed to save run", "run_id", run.ID, "error", err)
	}
}

func statusFor(err error) domain.RunStatus {
	if err == nil {
		return domain.RunStatusSucceeded
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.RunStatusCancelled
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		if exhausted.Class == retry.TransientRateLimit {
			return domain.RunStatusRateLimited
		}
		return domain.RunStatusRetriesExhausted
	}
	return domain.RunStatusFailed
}
