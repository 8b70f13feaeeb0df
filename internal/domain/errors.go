package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrProviderFailure = errors.New("provider failure")
)

// ValidationError rejects a structurally invalid request. It never touches
// credits or counters.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Message)
}

// ModerationRejectedError is the external oracle's veto, surfaced before any
// ledger mutation.
type ModerationRejectedError struct {
	Reason string
}

func (e *ModerationRejectedError) Error() string {
	return fmt.Sprintf("moderation rejected: %s", e.Reason)
}

// DailyQuotaExceededError carries the usage that would overflow the plan cap.
type DailyQuotaExceededError struct {
	Used  int
	Limit int
}

func (e *DailyQuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded: used %d of %d", e.Used, e.Limit)
}

// RateLimitExceededError carries a retry-after that is a true upper bound on
// when admission for the model will next succeed.
type RateLimitExceededError struct {
	ProviderKey string
	RetryAfter  time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.ProviderKey, e.RetryAfter)
}

// UserConcurrencyExceededError reports the caller's in-flight job count.
type UserConcurrencyExceededError struct {
	Processing int
	Limit      int
}

func (e *UserConcurrencyExceededError) Error() string {
	return fmt.Sprintf("user concurrency exceeded: %d of %d processing", e.Processing, e.Limit)
}

// GlobalConcurrencyExceededError reports platform-wide saturation.
type GlobalConcurrencyExceededError struct {
	Processing int
	Limit      int
}

func (e *GlobalConcurrencyExceededError) Error() string {
	return fmt.Sprintf("global concurrency exceeded: %d of %d processing", e.Processing, e.Limit)
}

// InsufficientCreditsError reports the shortfall without mutating anything.
type InsufficientCreditsError struct {
	Needed    int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Needed, e.Available)
}

// ProviderDispatchError wraps an immediate dispatch failure. The job it
// belongs to is already settled FAILED and refunded by the time callers see
// this.
type ProviderDispatchError struct {
	ProviderKey string
	JobID       string
	Err         error
}

func (e *ProviderDispatchError) Error() string {
	return fmt.Sprintf("provider %s dispatch failed for job %s: %v", e.ProviderKey, e.JobID, e.Err)
}

func (e *ProviderDispatchError) Unwrap() error { return e.Err }
