package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// PgUsageRepository appends settlement outcomes to the usage_events table.
type PgUsageRepository struct {
	sql infra.SQLExecutor
}

var _ domain.UsageRepository = (*PgUsageRepository)(nil)

func NewPgUsageRepository(sql infra.SQLExecutor) *PgUsageRepository {
	return &PgUsageRepository{sql: sql}
}

func (r *PgUsageRepository) Record(ctx context.Context, ev domain.UsageEvent) error {
	props, err := json.Marshal(ev.Properties)
	if err != nil {
		props = []byte("{}")
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertUsageEvent,
		ev.UserID, ev.JobID, ev.EventType, ev.Success, ev.LatencyMS, props); err != nil {
		return fmt.Errorf("insert usage event for job %s: %w", ev.JobID, err)
	}
	return nil
}

// MemoryUsageRepository collects events in process for tests.
type MemoryUsageRepository struct {
	mu     sync.Mutex
	Events []domain.UsageEvent
}

var _ domain.UsageRepository = (*MemoryUsageRepository)(nil)

func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{}
}

func (r *MemoryUsageRepository) Record(_ context.Context, ev domain.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}
