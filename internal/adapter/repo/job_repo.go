package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// PgJobRepository persists generation jobs in Postgres through the logging
// SQL runner. Settle relies on the conditional UPDATE's affected-row count
// as the compare-and-swap.
type PgJobRepository struct {
	sql infra.SQLExecutor
}

var _ domain.JobRepository = (*PgJobRepository)(nil)

func NewPgJobRepository(sql infra.SQLExecutor) *PgJobRepository {
	return &PgJobRepository{sql: sql}
}

func (r *PgJobRepository) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID, job.OwnerID, string(job.Kind), job.ProviderKey, job.Units,
		job.ReservedBase, job.ReservedBonus, string(job.Status), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *PgJobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJob, id)
	job, err := scanJob(row.Scan)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("select job %s: %w", id, err)
	}
	return job, nil
}

func (r *PgJobRepository) SetProviderHandle(ctx context.Context, id, handle string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QSetProviderHandle, id, handle)
	if err != nil {
		return fmt.Errorf("set handle for job %s: %w", id, err)
	}
	return nil
}

func (r *PgJobRepository) Touch(ctx context.Context, id string, polledAt time.Time) error {
	_, err := r.sql.Exec(ctx, sqlinline.QTouchJob, id, polledAt)
	if err != nil {
		return fmt.Errorf("touch job %s: %w", id, err)
	}
	return nil
}

func (r *PgJobRepository) Settle(ctx context.Context, id string, from, to domain.JobStatus, resultJSON []byte, failureReason string, completedAt time.Time) (bool, error) {
	if len(resultJSON) == 0 {
		resultJSON = []byte("{}")
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QSettleJob,
		id, string(from), string(to), resultJSON, failureReason, completedAt)
	if err != nil {
		return false, fmt.Errorf("settle job %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgJobRepository) ListProcessingBefore(ctx context.Context, kind domain.JobKind, before time.Time) ([]*domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStaleJobs, string(kind), before)
	if err != nil {
		return nil, fmt.Errorf("list stale %s jobs: %w", kind, err)
	}
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *PgJobRepository) ListProcessingByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectProcessingByOwner, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list processing jobs for %s: %w", ownerID, err)
	}
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scan func(dest ...any) error) (*domain.Job, error) {
	var job domain.Job
	var kind, status string
	var result []byte
	if err := scan(&job.ID, &job.OwnerID, &kind, &job.ProviderKey, &job.Units,
		&job.ReservedBase, &job.ReservedBonus, &job.ProviderHandle, &status,
		&result, &job.FailureReason, &job.CreatedAt, &job.UpdatedAt,
		&job.LastPolledAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	// Nullable timestamps come back as the epoch sentinel; translate them
	// to the zero time so "unset" means the same thing on every store.
	if job.LastPolledAt.Unix() == 0 {
		job.LastPolledAt = time.Time{}
	}
	if job.CompletedAt.Unix() == 0 {
		job.CompletedAt = time.Time{}
	}
	if len(result) > 0 && !json.Valid(result) {
		return nil, fmt.Errorf("job %s: malformed result json", job.ID)
	}
	job.ResultJSON = result
	return &job, nil
}
