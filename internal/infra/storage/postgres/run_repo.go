package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	ID           string       `db:"id"`
	Instructions string       `db:"instructions"`
	Status       string       `db:"status"`
	Attempts     int          `db:"attempts"`
	Output       string       `db:"output"`
	Error        string       `db:"error_msg"`
	Steps        []byte       `db:"steps"`
	StartedAt    time.Time    `db:"started_at"`
	FinishedAt   sql.NullTime `db:"finished_at"`
}

const upsertRun = `
INSERT INTO runs (id, instructions, status, attempts, output, error_msg, steps, started_at, finished_at)
VALUES (:id, :instructions, :status, :attempts, :output, :error_msg, :steps, :started_at, :finished_at)
ON CONFLICT (id) DO UPDATE SET
    status      = EXCLUDED.status,
    attempts    = EXCLUDED.attempts,
    output      = EXCLUDED.output,
    error_msg   = EXCLUDED.error_msg,
    steps       = EXCLUDED.steps,
    finished_at = EXCLUDED.finished_at`

const selectRuns = `
SELECT id, instructions, status, attempts, output, error_msg, steps, started_at, finished_at
FROM runs`

// Save inserts or updates a run.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, upsertRun, row); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, selectRuns+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return fromRow(row)
}

// ListRecent returns the newest runs first.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, selectRuns+` ORDER BY started_at DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func toRow(run *domain.Run) (runRow, error) {
	steps := run.Steps
	if steps == nil {
		steps = []domain.StepResult{}
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal steps: %w", err)
	}
	return runRow{
		ID:           run.ID,
		Instructions: run.Instructions,
		Status:       string(run.Status),
		Attempts:     run.Attempts,
		Output:       run.Output,
		Error:        run.Error,
		Steps:        data,
		StartedAt:    run.StartedAt,
		FinishedAt:   sql.NullTime{Time: run.FinishedAt, Valid: !run.FinishedAt.IsZero()},
	}, nil
}

func fromRow(row runRow) (*domain.Run, error) {
	run := &domain.Run{
		ID:           row.ID,
		Instructions: row.Instructions,
		Status:       domain.RunStatus(row.Status),
		Attempts:     row.Attempts,
		Output:       row.Output,
		Error:        row.Error,
		StartedAt:    row.StartedAt,
	}
	if row.FinishedAt.Valid {
		run.FinishedAt = row.FinishedAt.Time
	}
	if len(row.Steps) > 0 {
		if err := json.Unmarshal(row.Steps, &run.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}
	return run, nil
}
