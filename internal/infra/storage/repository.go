package storage

import (
	"context"
	"errors"

	"github.com/vietddude/crewguard/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run doesn't exist
	ErrRunNotFound = errors.New("run not found")
)

// RunRepository handles pipeline run history
type RunRepository interface {
	// Save inserts or updates a run
	Save(ctx context.Context, run *domain.Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*domain.Run, error)

	// ListRecent returns the newest runs first
	ListRecent(ctx context.Context, limit int) ([]*domain.Run, error)
}
