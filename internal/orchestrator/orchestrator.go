// Package orchestrator turns a validated generation request into a
// money-safe asynchronous job. It owns the admission sequence, the credit
// reservation, and the single settlement path that reconciles provider
// outcomes back into the ledger exactly once.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/admission"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra/metrics"
	"server/internal/moderation"
	"server/internal/provider"
	"server/internal/quota"
)

// Orchestrator composes the admission gates, the ledger, and the provider
// adapters. All methods are safe for concurrent use; no ledger or counter
// lock is ever held across a provider call.
type Orchestrator struct {
	ledger   credits.Ledger
	quota    quota.Tracker
	rate     admission.RateLimiter
	conc     admission.ConcurrencyController
	jobs     domain.JobRepository
	usage    domain.UsageRepository
	mod      moderation.Checker
	catalog  *domain.Catalog
	adapters map[string]provider.Adapter
	logger   zerolog.Logger
	metrics  metrics.Metrics
	now      func() time.Time
}

// Options wires an Orchestrator. Ledger, Quota, Rate, Concurrency, Jobs,
// Catalog and Adapters are required; the rest default to no-ops.
type Options struct {
	Ledger      credits.Ledger
	Quota       quota.Tracker
	Rate        admission.RateLimiter
	Concurrency admission.ConcurrencyController
	Jobs        domain.JobRepository
	Usage       domain.UsageRepository
	Moderation  moderation.Checker
	Catalog     *domain.Catalog
	Adapters    map[string]provider.Adapter
	Logger      zerolog.Logger
	Metrics     metrics.Metrics
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		ledger:   opts.Ledger,
		quota:    opts.Quota,
		rate:     opts.Rate,
		conc:     opts.Concurrency,
		jobs:     opts.Jobs,
		usage:    opts.Usage,
		mod:      opts.Moderation,
		catalog:  opts.Catalog,
		adapters: opts.Adapters,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
	if o.mod == nil {
		o.mod = moderation.AllowAll{}
	}
	if o.metrics == nil {
		o.metrics = metrics.Noop{}
	}
	return o
}

// SubmitRequest is a structurally complete generation request. The caller
// has already authenticated the owner; nothing here has touched credits.
type SubmitRequest struct {
	OwnerID     string
	Plan        domain.Plan
	Kind        domain.JobKind
	ProviderKey string
	Units       int
	Prompt      string
	Params      map[string]any
}

// SubmitResponse echoes the created job and the quota remaining for the
// day, -1 when the plan is unlimited.
type SubmitResponse struct {
	Job            JobView
	RemainingQuota int
}

// JobView is the client-facing projection of a job.
type JobView struct {
	JobID           string          `json:"job_id"`
	OwnerID         string          `json:"-"`
	Status          string          `json:"status"`
	Kind            string          `json:"kind"`
	ProviderKey     string          `json:"provider_key"`
	Units           int             `json:"units"`
	CreditsReserved int64           `json:"credits_reserved"`
	Result          json.RawMessage `json:"result,omitempty"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func viewOf(job *domain.Job) JobView {
	v := JobView{
		JobID:           job.ID,
		OwnerID:         job.OwnerID,
		Status:          string(job.Status),
		Kind:            string(job.Kind),
		ProviderKey:     job.ProviderKey,
		Units:           job.Units,
		CreditsReserved: job.CreditsReserved(),
		FailureReason:   job.FailureReason,
		CreatedAt:       job.CreatedAt,
	}
	if job.Status == domain.JobStatusCompleted {
		v.Result = json.RawMessage(job.ResultJSON)
	}
	if job.Status.Terminal() && !job.CompletedAt.IsZero() {
		t := job.CompletedAt
		v.CompletedAt = &t
	}
	return v
}

// Submit drives a request through validation, admission, reservation and
// dispatch. Admission-stage rejections never create a job; once credits are
// reserved every failure path settles a terminal, refunded job the caller
// can inspect.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	model, err := o.validate(req)
	if err != nil {
		o.metrics.IncRejected(string(req.Kind), "validation")
		return nil, err
	}

	decision, err := o.mod.Check(ctx, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("moderation check: %w", err)
	}
	if decision.Blocked {
		o.metrics.IncRejected(string(req.Kind), "moderation")
		return nil, &domain.ModerationRejectedError{Reason: decision.Reason}
	}

	// A user must never be blocked by their own abandoned jobs.
	o.sweepOwner(ctx, req.OwnerID)

	limits := o.catalog.Limits(req.Plan)
	day := quota.Day(o.now())
	if limits.DailyQuota > 0 {
		used, err := o.quota.Usage(ctx, req.OwnerID, day)
		if err != nil {
			return nil, fmt.Errorf("quota usage: %w", err)
		}
		if used+req.Units > limits.DailyQuota {
			o.metrics.IncRejected(string(req.Kind), "quota")
			return nil, &domain.DailyQuotaExceededError{Used: used, Limit: limits.DailyQuota}
		}
	}

	rateDecision, err := o.rate.Check(ctx, req.ProviderKey, model.RateCap, model.RateWindow)
	if err != nil {
		return nil, fmt.Errorf("rate check: %w", err)
	}
	if !rateDecision.Allowed {
		o.metrics.IncRejected(string(req.Kind), "rate_limit")
		return nil, &domain.RateLimitExceededError{ProviderKey: req.ProviderKey, RetryAfter: rateDecision.ResetIn}
	}

	// Admission increments, applied as a group: quota first, then
	// concurrency. A failure of the later step rolls the earlier back.
	quotaCounted := limits.DailyQuota > 0
	var usedAfter int
	if quotaCounted {
		if usedAfter, err = o.quota.Add(ctx, req.OwnerID, day, req.Units); err != nil {
			return nil, fmt.Errorf("quota add: %w", err)
		}
		// The earlier Usage read is advisory; Add's returned total is the
		// authoritative check, so two concurrent submits cannot both land
		// inside the last slot.
		if usedAfter > limits.DailyQuota {
			_ = o.quota.Remove(ctx, req.OwnerID, day, req.Units)
			o.metrics.IncRejected(string(req.Kind), "quota")
			return nil, &domain.DailyQuotaExceededError{Used: usedAfter - req.Units, Limit: limits.DailyQuota}
		}
	}
	if err := o.conc.Acquire(ctx, req.OwnerID, limits.UserConcurrency); err != nil {
		if quotaCounted {
			_ = o.quota.Remove(ctx, req.OwnerID, day, req.Units)
		}
		o.metrics.IncRejected(string(req.Kind), "concurrency")
		return nil, err
	}

	cost := model.CreditsPerUnit * int64(req.Units)
	reservation, _, err := o.ledger.Reserve(ctx, req.OwnerID, cost)
	if err != nil {
		// Admission side effects must never be charged to a user who did
		// not get to spend credits.
		if quotaCounted {
			_ = o.quota.Remove(ctx, req.OwnerID, day, req.Units)
		}
		_ = o.conc.Release(ctx, req.OwnerID)
		o.metrics.IncRejected(string(req.Kind), "credits")
		return nil, err
	}

	if err := o.rate.Record(ctx, req.ProviderKey, model.RateWindow); err != nil {
		o.logger.Warn().Err(err).Str("provider_key", req.ProviderKey).Msg("rate record failed")
	}

	job := &domain.Job{
		ID:            uuid.NewString(),
		OwnerID:       req.OwnerID,
		Kind:          req.Kind,
		ProviderKey:   req.ProviderKey,
		Units:         req.Units,
		ReservedBase:  reservation.Base,
		ReservedBonus: reservation.Bonus,
		Status:        domain.JobStatusProcessing,
		CreatedAt:     o.now(),
		UpdatedAt:     o.now(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		_, _ = o.ledger.Refund(ctx, req.OwnerID, reservation)
		_ = o.conc.Release(ctx, req.OwnerID)
		if quotaCounted {
			_ = o.quota.Remove(ctx, req.OwnerID, day, req.Units)
		}
		return nil, fmt.Errorf("persist job: %w", err)
	}
	o.metrics.IncAdmitted(string(req.Kind))
	o.logger.Info().Str("job_id", job.ID).Str("owner_id", job.OwnerID).
		Str("provider_key", job.ProviderKey).Int64("credits", cost).Msg("job admitted")

	remaining := -1
	if quotaCounted {
		remaining = limits.DailyQuota - usedAfter
		if remaining < 0 {
			remaining = 0
		}
	}

	view, err := o.dispatch(ctx, job, req.Prompt, req.Params)
	if err != nil {
		return &SubmitResponse{Job: view, RemainingQuota: remaining}, err
	}
	return &SubmitResponse{Job: view, RemainingQuota: remaining}, nil
}

// dispatch invokes the provider outside any lock and records the outcome
// through the settlement CAS.
func (o *Orchestrator) dispatch(ctx context.Context, job *domain.Job, prompt string, params map[string]any) (JobView, error) {
	adapter, ok := o.adapters[job.ProviderKey]
	if !ok {
		view := o.settleFailed(ctx, job, "provider not configured", false)
		return view, &domain.ProviderDispatchError{
			ProviderKey: job.ProviderKey, JobID: job.ID,
			Err: fmt.Errorf("no adapter for %s", job.ProviderKey),
		}
	}

	disp, err := adapter.Dispatch(ctx, provider.Request{
		JobID:       job.ID,
		Kind:        job.Kind,
		ProviderKey: job.ProviderKey,
		Units:       job.Units,
		Prompt:      prompt,
		Params:      params,
	})
	if err != nil {
		view := o.settleFailed(ctx, job, err.Error(), false)
		return view, &domain.ProviderDispatchError{ProviderKey: job.ProviderKey, JobID: job.ID, Err: err}
	}

	if disp.Sync() {
		return o.settleCompleted(ctx, job, disp.Result), nil
	}

	if err := o.jobs.SetProviderHandle(ctx, job.ID, disp.Handle); err != nil {
		// The handle is lost; the job can only resolve via staleness.
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("record provider handle failed")
	}
	job.ProviderHandle = disp.Handle
	return viewOf(job), nil
}

func (o *Orchestrator) validate(req SubmitRequest) (domain.ModelPricing, error) {
	if req.OwnerID == "" {
		return domain.ModelPricing{}, &domain.ValidationError{Field: "owner_id", Message: "is required"}
	}
	if !req.Kind.Valid() {
		return domain.ModelPricing{}, &domain.ValidationError{Field: "kind", Message: "is not a supported generation category"}
	}
	if req.Prompt == "" {
		return domain.ModelPricing{}, &domain.ValidationError{Field: "prompt", Message: "is required"}
	}
	model, ok := o.catalog.Model(req.ProviderKey)
	if !ok {
		return domain.ModelPricing{}, &domain.ValidationError{Field: "provider_key", Message: "is not a known model"}
	}
	if model.Kind != req.Kind {
		return domain.ModelPricing{}, &domain.ValidationError{Field: "provider_key", Message: "does not serve the requested kind"}
	}
	if req.Units < 1 || req.Units > model.MaxUnits {
		return domain.ModelPricing{}, &domain.ValidationError{
			Field:   "units",
			Message: fmt.Sprintf("must be between 1 and %d", model.MaxUnits),
		}
	}
	if d, ok := req.Params["duration_seconds"].(float64); ok && (d < 1 || d > 120) {
		return domain.ModelPricing{}, &domain.ValidationError{Field: "duration_seconds", Message: "must be between 1 and 120"}
	}
	for _, dim := range []string{"width", "height"} {
		if v, ok := req.Params[dim].(float64); ok && (v < 64 || v > 4096) {
			return domain.ModelPricing{}, &domain.ValidationError{Field: dim, Message: "must be between 64 and 4096"}
		}
	}
	return model, nil
}
