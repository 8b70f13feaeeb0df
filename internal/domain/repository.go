package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation jobs.
//
// Settle is the single settlement gate: it moves a job from `from` to a
// terminal status only if the job is still in `from`, and reports whether
// this caller won. Ledger refunds and counter releases must happen only on
// the winning path so a concurrent poll and sweep never double-settle.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	SetProviderHandle(ctx context.Context, id, handle string) error
	Touch(ctx context.Context, id string, polledAt time.Time) error
	Settle(ctx context.Context, id string, from, to JobStatus, resultJSON []byte, failureReason string, completedAt time.Time) (bool, error)
	ListProcessingBefore(ctx context.Context, kind JobKind, before time.Time) ([]*Job, error)
	ListProcessingByOwner(ctx context.Context, ownerID string) ([]*Job, error)
}

// UsageRepository records settlement outcomes for analytics.
type UsageRepository interface {
	Record(ctx context.Context, ev UsageEvent) error
}
