package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"server/internal/domain"
)

// MemoryJobRepository keeps jobs in process. It honors the same Settle CAS
// contract as the Postgres repository, so orchestrator tests exercise the
// real settlement race behavior.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)

func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job)}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *MemoryJobRepository) GetByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *MemoryJobRepository) SetProviderHandle(_ context.Context, id, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.ProviderHandle = handle
	job.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryJobRepository) Touch(_ context.Context, id string, polledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.LastPolledAt = polledAt
	job.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryJobRepository) Settle(_ context.Context, id string, from, to domain.JobStatus, resultJSON []byte, failureReason string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	job.ResultJSON = append([]byte(nil), resultJSON...)
	job.FailureReason = failureReason
	job.CompletedAt = completedAt
	job.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryJobRepository) ListProcessingBefore(_ context.Context, kind domain.JobKind, before time.Time) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*domain.Job
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusProcessing && job.Kind == kind && job.CreatedAt.Before(before) {
			cp := *job
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (r *MemoryJobRepository) ListProcessingByOwner(_ context.Context, ownerID string) ([]*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*domain.Job
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusProcessing && job.OwnerID == ownerID {
			cp := *job
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}
