package retry

import (
	"context"
	"sync"
)

// FailureCounter holds the number of consecutive logical calls that ended
// exhausted. It may be shared between controllers and processes.
type FailureCounter interface {
	Load(ctx context.Context) (int, error)
	Increment(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

// MemoryCounter is a process-local FailureCounter.
type MemoryCounter struct {
	mu    sync.Mutex
	count int
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) Load(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, nil
}

func (c *MemoryCounter) Increment(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count, nil
}

func (c *MemoryCounter) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
	return nil
}
