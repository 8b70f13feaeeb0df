package provider

import (
	"context"
	"sync"
)

// Mock is a scriptable adapter for tests. Configure the next dispatch and
// poll answers, then inspect recorded calls.
type Mock struct {
	mu sync.Mutex

	DispatchFunc func(ctx context.Context, req Request) (Dispatch, error)
	PollFunc     func(ctx context.Context, handle string) (Poll, error)

	Dispatched []Request
	Polled     []string
}

var _ Adapter = (*Mock)(nil)

func (m *Mock) Dispatch(ctx context.Context, req Request) (Dispatch, error) {
	m.mu.Lock()
	m.Dispatched = append(m.Dispatched, req)
	fn := m.DispatchFunc
	m.mu.Unlock()
	if fn == nil {
		return Dispatch{Result: &Result{Assets: []Asset{{URL: "mock://" + req.JobID, MIME: "image/png"}}}}, nil
	}
	return fn(ctx, req)
}

func (m *Mock) Poll(ctx context.Context, handle string) (Poll, error) {
	m.mu.Lock()
	m.Polled = append(m.Polled, handle)
	fn := m.PollFunc
	m.mu.Unlock()
	if fn == nil {
		return Poll{State: PollRunning}, nil
	}
	return fn(ctx, handle)
}
