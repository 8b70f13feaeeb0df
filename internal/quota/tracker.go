// Package quota counts attempted generation units per user per calendar
// day. The counter rations attempts against providers, so it increments at
// admission and is never decremented when a job later fails and is
// refunded; only the day rolling over (or an admission-group rollback)
// reduces it.
package quota

import (
	"context"
	"time"
)

// Tracker is the per-user daily attempt counter.
type Tracker interface {
	// Usage returns the units attempted so far for the day.
	Usage(ctx context.Context, userID, day string) (int, error)
	// Add records units against the day and returns the new total.
	Add(ctx context.Context, userID, day string, units int) (int, error)
	// Remove backs out units added in the same admission group. It exists
	// only for rollback when a later admission step fails; settlement
	// never calls it.
	Remove(ctx context.Context, userID, day string, units int) error
}

// Day formats the calendar day key for a point in time.
func Day(t time.Time) string {
	return t.Format("2006-01-02")
}
