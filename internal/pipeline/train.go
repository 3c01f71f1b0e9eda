package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/core/retry"
)

// maxResultLen bounds the output kept per iteration in a training report.
const maxResultLen = 500

// TrainConfig controls a batch of repeated runs.
type TrainConfig struct {
	Iterations   int
	Instructions string
	Pause        time.Duration // between iterations
	QuotaPause   time.Duration // after an iteration that ended rate limited
}

// IterationResult is the outcome of one training iteration.
type IterationResult struct {
	Iteration int              `json:"iteration"`
	RunID     string           `json:"run_id,omitempty"`
	Status    domain.RunStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	Duration  string           `json:"duration"`
	Result    string           `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// TrainReport summarizes a training batch.
type TrainReport struct {
	TotalIterations int               `json:"total_iterations"`
	SuccessfulRuns  int               `json:"successful_runs"`
	SuccessRate     float64           `json:"success_rate"` // percent
	Results         []IterationResult `json:"results"`
}

// Train executes cfg.Iterations runs of the same instructions. A failed run
// doesn't stop the batch; cancellation does, and the partial report is
// returned with the context error.
func (r *Runner) Train(ctx context.Context, cfg TrainConfig) (*TrainReport, error) {
	if cfg.Iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", cfg.Iterations)
	}

	report := &TrainReport{TotalIterations: cfg.Iterations}
	for i := 1; i <= cfg.Iterations; i++ {
		slog.Info("Training iteration", "iteration", i, "total", cfg.Iterations)

		run, err := r.Run(ctx, cfg.Instructions)
		if run == nil {
			// Invalid input fails every iteration the same way.
			return nil, err
		}

		res := IterationResult{
			Iteration: i,
			RunID:     run.ID,
			Status:    run.Status,
			Attempts:  run.Attempts,
			Duration:  run.Duration().Round(time.Second).String(),
		}
		if err == nil {
			res.Result = truncate(run.Output, maxResultLen)
			report.SuccessfulRuns++
		} else {
			res.Error = err.Error()
		}
		report.Results = append(report.Results, res)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.finish()
			return report, err
		}
		if i == cfg.Iterations {
			break
		}

		pause := cfg.Pause
		if run.Status == domain.RunStatusRateLimited || (err != nil && retry.DefaultClassifier(err) == retry.TransientRateLimit) {
			pause = max(pause, cfg.QuotaPause)
			slog.Warn("Quota error, waiting longer before the next iteration", "wait", pause)
		}
		if err := r.controller.Pause(ctx, pause); err != nil {
			report.finish()
			return report, err
		}
	}

	report.finish()
	return report, nil
}

func (t *TrainReport) finish() {
	if t.TotalIterations > 0 {
		t.SuccessRate = float64(t.SuccessfulRuns) / float64(t.TotalIterations) * 100
	}
}

// WriteReport saves report as indented JSON.
func WriteReport(path string, report *TrainReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
