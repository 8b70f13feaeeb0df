// Package admission holds the gates a request passes before credits are
// touched: the per-model rate limiter and the processing concurrency
// controller. Both expose per-key atomic operations so unrelated keys never
// contend.
package admission

import (
	"context"
	"sync"
	"time"
)

// Decision is the rate limiter's answer for one provider key. ResetIn is an
// upper bound on when admission will next succeed once the cap is hit.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// RateLimiter gates dispatches per provider model, independent of users.
// Check never mutates; Record must be called only on the accepted path.
type RateLimiter interface {
	Check(ctx context.Context, providerKey string, cap int, window time.Duration) (Decision, error)
	Record(ctx context.Context, providerKey string, window time.Duration) error
}

type rateWindow struct {
	count int
	until time.Time
}

// MemoryRateLimiter is a fixed-window limiter keyed by provider model.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{windows: make(map[string]*rateWindow), now: time.Now}
}

func (l *MemoryRateLimiter) Check(_ context.Context, providerKey string, cap int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.windows[providerKey]
	if !ok || now.After(w.until) {
		return Decision{Allowed: true, Remaining: cap, ResetIn: window}, nil
	}
	if w.count >= cap {
		return Decision{Allowed: false, Remaining: 0, ResetIn: w.until.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: cap - w.count, ResetIn: w.until.Sub(now)}, nil
}

func (l *MemoryRateLimiter) Record(_ context.Context, providerKey string, window time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	w, ok := l.windows[providerKey]
	if !ok || now.After(w.until) {
		l.windows[providerKey] = &rateWindow{count: 1, until: now.Add(window)}
		return nil
	}
	w.count++
	return nil
}
