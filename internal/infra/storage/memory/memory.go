package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/crewguard/internal/core/domain"
	"github.com/vietddude/crewguard/internal/infra/storage"
)

// RunRepo keeps run history in process memory.
type RunRepo struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run
}

func NewRunRepo() *RunRepo {
	return &RunRepo{runs: make(map[string]*domain.Run)}
}

func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	cp.Steps = append([]domain.StepResult(nil), run.Steps...)
	r.runs[run.ID] = &cp
	return nil
}

func (r *RunRepo) Get(ctx context.Context, id string) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
