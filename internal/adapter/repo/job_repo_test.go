package repo

import (
	"testing"
	"time"

	"server/internal/domain"
)

// fakeScan feeds scanJob the column values a Postgres row would produce,
// in the select list's order.
func fakeScan(values []any) func(dest ...any) error {
	return func(dest ...any) error {
		for i, v := range values {
			switch d := dest[i].(type) {
			case *string:
				*d = v.(string)
			case *int:
				*d = v.(int)
			case *int64:
				*d = v.(int64)
			case *[]byte:
				*d = v.([]byte)
			case *time.Time:
				*d = v.(time.Time)
			}
		}
		return nil
	}
}

func TestScanJobTreatsEpochTimestampsAsUnset(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	job, err := scanJob(fakeScan([]any{
		"0b54f7a0-9e1d-4f0c-8a6b-2c4d6e8f0a1b", // id
		"u1",                // owner_id
		"VIDEO_GEN",         // kind
		"veo-video",         // provider_key
		1,                   // units
		int64(20),           // reserved_base
		int64(0),            // reserved_bonus
		"operations/op-1",   // provider_handle
		"PROCESSING",        // status
		[]byte("{}"),        // result_json
		"",                  // failure_reason
		created,             // created_at
		created,             // updated_at
		epoch,               // last_polled_at (null in the row)
		epoch,               // completed_at (null in the row)
	}))
	if err != nil {
		t.Fatalf("scanJob: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s", job.Status)
	}
	if !job.LastPolledAt.IsZero() {
		t.Fatalf("last polled must be unset, got %s", job.LastPolledAt)
	}
	if !job.CompletedAt.IsZero() {
		t.Fatalf("completed must be unset for a processing job, got %s", job.CompletedAt)
	}
}

func TestScanJobKeepsRealTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	done := created.Add(2 * time.Minute)

	job, err := scanJob(fakeScan([]any{
		"0b54f7a0-9e1d-4f0c-8a6b-2c4d6e8f0a1b",
		"u1",
		"IMAGE_GEN",
		"gemini-image",
		2,
		int64(4),
		int64(0),
		"",
		"COMPLETED",
		[]byte(`{"assets":[]}`),
		"",
		created,
		done,
		done,
		done,
	}))
	if err != nil {
		t.Fatalf("scanJob: %v", err)
	}
	if !job.CompletedAt.Equal(done) {
		t.Fatalf("completed_at = %s, want %s", job.CompletedAt, done)
	}
	if !job.LastPolledAt.Equal(done) {
		t.Fatalf("last_polled_at = %s, want %s", job.LastPolledAt, done)
	}
}
