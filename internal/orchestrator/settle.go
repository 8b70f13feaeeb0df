package orchestrator

import (
	"context"
	"encoding/json"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/provider"
)

type resultPayload struct {
	Assets []assetPayload `json:"assets"`
}

type assetPayload struct {
	URL    string `json:"url"`
	MIME   string `json:"mime"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Length int    `json:"length_seconds,omitempty"`
}

func encodeResult(res *provider.Result) []byte {
	payload := resultPayload{}
	if res != nil {
		for _, a := range res.Assets {
			payload.Assets = append(payload.Assets, assetPayload{
				URL: a.URL, MIME: a.MIME, Width: a.Width, Height: a.Height, Length: a.Length,
			})
		}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"assets":[]}`)
	}
	return out
}

// settleCompleted moves the job to COMPLETED through the CAS. The
// reservation is the final charge; only the concurrency slot is released.
func (o *Orchestrator) settleCompleted(ctx context.Context, job *domain.Job, res *provider.Result) JobView {
	resultJSON := encodeResult(res)
	completedAt := o.now()
	won, err := o.jobs.Settle(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusCompleted, resultJSON, "", completedAt)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("settle completed failed")
		return viewOf(job)
	}
	if !won {
		// A concurrent settlement got there first; it already mutated the
		// ledger and counters. Report whatever it decided.
		return o.reload(ctx, job)
	}
	_ = o.conc.Release(ctx, job.OwnerID)
	o.recordUsage(ctx, job, "generation_completed", true)
	o.metrics.IncSettled(string(job.Kind), "completed")
	o.logger.Info().Str("job_id", job.ID).Msg("job completed")

	job.Status = domain.JobStatusCompleted
	job.ResultJSON = resultJSON
	job.CompletedAt = completedAt
	return viewOf(job)
}

// settleFailed moves the job to FAILED through the CAS and refunds the
// exact reservation. The loser of a settlement race performs no ledger or
// counter mutation.
func (o *Orchestrator) settleFailed(ctx context.Context, job *domain.Job, reason string, swept bool) JobView {
	completedAt := o.now()
	won, err := o.jobs.Settle(ctx, job.ID, domain.JobStatusProcessing, domain.JobStatusFailed, nil, reason, completedAt)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("settle failed errored")
		return viewOf(job)
	}
	if !won {
		return o.reload(ctx, job)
	}
	reservation := credits.Reservation{Base: job.ReservedBase, Bonus: job.ReservedBonus}
	if _, err := o.ledger.Refund(ctx, job.OwnerID, reservation); err != nil {
		// The job is already FAILED; the refund must not be retried blindly
		// or it could double-credit. Flag it for operator reconciliation.
		o.logger.Error().Err(err).Str("job_id", job.ID).
			Int64("credits", reservation.Total()).Msg("refund failed, manual reconciliation required")
	} else {
		o.metrics.AddCreditsRefunded(string(job.Kind), reservation.Total())
	}
	_ = o.conc.Release(ctx, job.OwnerID)
	o.recordUsage(ctx, job, "generation_failed", false)
	o.metrics.IncSettled(string(job.Kind), "failed")
	if swept {
		o.metrics.IncSwept(string(job.Kind))
	}
	o.logger.Warn().Str("job_id", job.ID).Str("reason", reason).Msg("job failed, credits refunded")

	job.Status = domain.JobStatusFailed
	job.FailureReason = reason
	job.CompletedAt = completedAt
	return viewOf(job)
}

func (o *Orchestrator) reload(ctx context.Context, job *domain.Job) JobView {
	fresh, err := o.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return viewOf(job)
	}
	return viewOf(fresh)
}

func (o *Orchestrator) recordUsage(ctx context.Context, job *domain.Job, eventType string, success bool) {
	if o.usage == nil {
		return
	}
	ev := domain.UsageEvent{
		UserID:    job.OwnerID,
		JobID:     job.ID,
		EventType: eventType,
		Success:   success,
		LatencyMS: o.now().Sub(job.CreatedAt).Milliseconds(),
		Properties: map[string]any{
			"kind":         string(job.Kind),
			"provider_key": job.ProviderKey,
			"units":        job.Units,
		},
	}
	if err := o.usage.Record(ctx, ev); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("usage event not recorded")
	}
}
