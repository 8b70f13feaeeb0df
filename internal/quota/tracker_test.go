package quota

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func trackers(t *testing.T) map[string]Tracker {
	t.Helper()
	out := map[string]Tracker{"memory": NewMemoryTracker()}
	srv, err := miniredis.Run()
	if err != nil {
		t.Logf("miniredis unavailable: %v", err)
		return out
	}
	t.Cleanup(srv.Close)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	out["redis"] = NewRedisTracker(client, "")
	return out
}

func TestAddAccumulatesWithinDay(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := Day(time.Now())
			if _, err := tr.Add(ctx, "u1", day, 3); err != nil {
				t.Fatalf("add: %v", err)
			}
			total, err := tr.Add(ctx, "u1", day, 2)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			if total != 5 {
				t.Fatalf("expected 5 units, got %d", total)
			}
			got, err := tr.Usage(ctx, "u1", day)
			if err != nil || got != 5 {
				t.Fatalf("usage = %d, err %v", got, err)
			}
		})
	}
}

func TestDayRollover(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := tr.Add(ctx, "u1", "2026-01-01", 4); err != nil {
				t.Fatalf("add: %v", err)
			}
			got, err := tr.Usage(ctx, "u1", "2026-01-02")
			if err != nil {
				t.Fatalf("usage: %v", err)
			}
			if got != 0 {
				t.Fatalf("new day should start at zero, got %d", got)
			}
		})
	}
}

func TestRemoveBacksOutAdmissionGroup(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := Day(time.Now())
			if _, err := tr.Add(ctx, "u1", day, 4); err != nil {
				t.Fatalf("add: %v", err)
			}
			if err := tr.Remove(ctx, "u1", day, 4); err != nil {
				t.Fatalf("remove: %v", err)
			}
			got, _ := tr.Usage(ctx, "u1", day)
			if got != 0 {
				t.Fatalf("expected 0 after rollback, got %d", got)
			}
		})
	}
}

func TestUsageIsolatedPerUser(t *testing.T) {
	for name, tr := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := Day(time.Now())
			if _, err := tr.Add(ctx, "u1", day, 4); err != nil {
				t.Fatalf("add: %v", err)
			}
			got, _ := tr.Usage(ctx, "u2", day)
			if got != 0 {
				t.Fatalf("u2 should be untouched, got %d", got)
			}
		})
	}
}
