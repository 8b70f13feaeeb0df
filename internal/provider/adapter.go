// Package provider abstracts external generation APIs behind a single
// dispatch/poll contract. Some providers answer synchronously, most hand
// back a task handle that must be polled until the asset is ready.
package provider

import (
	"context"
	"errors"

	"server/internal/domain"
)

// Request carries everything an adapter needs to call its provider. The
// orchestrator has already priced and admitted it.
type Request struct {
	JobID       string
	Kind        domain.JobKind
	ProviderKey string
	Units       int
	Prompt      string
	Params      map[string]any
}

// Asset is one produced artifact, referenced by URL; downloading and
// storing bytes is out of this component's hands.
type Asset struct {
	URL    string
	MIME   string
	Width  int
	Height int
	Length int
}

// Result is the normalized provider output.
type Result struct {
	Assets []Asset
}

// Dispatch is a tagged variant: a synchronous provider sets Result, an
// asynchronous provider sets Handle. Never both, never neither.
type Dispatch struct {
	Result *Result
	Handle string
}

// Sync reports whether the provider answered inline.
func (d Dispatch) Sync() bool { return d.Result != nil }

// PollState enumerates poll outcomes for an asynchronous handle.
type PollState int

const (
	PollRunning PollState = iota
	PollDone
	PollFailed
)

// Poll is the provider's answer for one handle. Reason is set only for
// PollFailed.
type Poll struct {
	State  PollState
	Result *Result
	Reason string
}

var (
	// ErrTransient marks a poll failure that says nothing about the
	// underlying task, for example a network hiccup. Callers must treat the
	// job as still running and must not refund.
	ErrTransient = errors.New("transient provider error")

	// ErrTaskNotFound means the provider no longer knows the handle; the
	// task will never complete.
	ErrTaskNotFound = errors.New("provider task not found")
)

// Adapter is implemented once per external provider.
type Adapter interface {
	Dispatch(ctx context.Context, req Request) (Dispatch, error)
	Poll(ctx context.Context, handle string) (Poll, error)
}
