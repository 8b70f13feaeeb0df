package admission

import (
	"context"
	"sync"

	"server/internal/domain"
)

// ConcurrencyController tracks how many jobs sit in PROCESSING, per user
// and platform-wide. Acquire increments both counters atomically or
// neither; Release must be called exactly once when a job leaves
// PROCESSING, which the orchestrator guarantees via its settlement CAS.
type ConcurrencyController interface {
	Acquire(ctx context.Context, userID string, userLimit int) error
	Release(ctx context.Context, userID string) error
	Processing(ctx context.Context, userID string) (user, global int, err error)
}

// MemoryConcurrency is the in-process controller.
type MemoryConcurrency struct {
	mu          sync.Mutex
	globalLimit int
	global      int
	perUser     map[string]int
}

var _ ConcurrencyController = (*MemoryConcurrency)(nil)

func NewMemoryConcurrency(globalLimit int) *MemoryConcurrency {
	return &MemoryConcurrency{globalLimit: globalLimit, perUser: make(map[string]int)}
}

func (c *MemoryConcurrency) Acquire(_ context.Context, userID string, userLimit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if userLimit > 0 && c.perUser[userID] >= userLimit {
		return &domain.UserConcurrencyExceededError{Processing: c.perUser[userID], Limit: userLimit}
	}
	if c.globalLimit > 0 && c.global >= c.globalLimit {
		return &domain.GlobalConcurrencyExceededError{Processing: c.global, Limit: c.globalLimit}
	}
	c.perUser[userID]++
	c.global++
	return nil
}

func (c *MemoryConcurrency) Release(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.perUser[userID] > 0 {
		c.perUser[userID]--
		if c.perUser[userID] == 0 {
			delete(c.perUser, userID)
		}
	}
	if c.global > 0 {
		c.global--
	}
	return nil
}

func (c *MemoryConcurrency) Processing(_ context.Context, userID string) (int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perUser[userID], c.global, nil
}
