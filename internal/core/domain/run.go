package domain

import "time"

// Run represents one execution of the pipeline.
type Run struct {
	ID           string       `json:"id"           db:"id"`
	Instructions string       `json:"instructions" db:"instructions"`
	Status       RunStatus    `json:"status"       db:"status"`
	Attempts     int          `json:"attempts"     db:"attempts"`
	Output       string       `json:"output"       db:"output"`
	Error        string       `json:"error_msg"    db:"error_msg"`
	Steps        []StepResult `json:"steps"        db:"-"`
	StartedAt    time.Time    `json:"started_at"   db:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"  db:"finished_at"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type RunStatus string

const (
	RunStatusRunning          RunStatus = "running"
	RunStatusSucceeded        RunStatus = "succeeded"
	RunStatusRateLimited      RunStatus = "rate_limit_exceeded"
	RunStatusRetriesExhausted RunStatus = "max_retries_exceeded"
	RunStatusFailed           RunStatus = "failed"
	RunStatusCancelled        RunStatus = "cancelled"
)

// StepResult is the handoff produced by one pipeline step.
type StepResult struct {
	Name     string        `json:"name"`
	Model    string        `json:"model"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}
