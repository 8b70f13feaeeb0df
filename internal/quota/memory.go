package quota

import (
	"context"
	"sync"
)

// MemoryTracker keeps daily counters in process. Old days are pruned
// whenever a newer day is touched for the same user.
type MemoryTracker struct {
	mu    sync.Mutex
	usage map[string]map[string]int // userID -> day -> units
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{usage: make(map[string]map[string]int)}
}

func (t *MemoryTracker) Usage(_ context.Context, userID, day string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage[userID][day], nil
}

func (t *MemoryTracker) Add(_ context.Context, userID, day string, units int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	days, ok := t.usage[userID]
	if !ok {
		days = make(map[string]int)
		t.usage[userID] = days
	}
	for d := range days {
		if d < day {
			delete(days, d)
		}
	}
	days[day] += units
	return days[day], nil
}

func (t *MemoryTracker) Remove(_ context.Context, userID, day string, units int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	days, ok := t.usage[userID]
	if !ok {
		return nil
	}
	days[day] -= units
	if days[day] <= 0 {
		delete(days, day)
	}
	return nil
}
