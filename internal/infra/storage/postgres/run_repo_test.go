package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/infra/storage"
)

func TestRowRoundTrip(t *testing.T) {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	run := &domain.Run{
		ID:        "r1",
		Status:    domain.RunStatusSucceeded,
		Attempts:  2,
		StartedAt: started,
		Steps:     []domain.StepResult{{Name: "code", Output: "print(1)"}},
	}

	row, err := toRow(run)
	if err != nil {
		t.Fatalf("toRow: %v", err)
	}
	if row.FinishedAt.Valid {
		t.Error("unfinished run should store NULL finished_at")
	}

	back, err := fromRow(row)
	if err != nil {
		t.Fatalf("fromRow: %v", err)
	}
	if back.ID != "r1" || back.Attempts != 2 || len(back.Steps) != 1 || back.Steps[0].Name != "code" {
		t.Errorf("unexpected run %+v", back)
	}
	if !back.FinishedAt.IsZero() {
		t.Errorf("finished_at = %v", back.FinishedAt)
	}
}

func TestRunRepo_Live(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	repo := NewRunRepo(db)
	run := &domain.Run{
		ID:           uuid.NewString(),
		Instructions: "snake",
		Status:       domain.RunStatusRunning,
		StartedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	run.Status = domain.RunStatusSucceeded
	run.Output = "game"
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := repo.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.RunStatusSucceeded || got.Output != "game" || got.Duration() != time.Minute {
		t.Errorf("unexpected run %+v", got)
	}

	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, storage.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}
