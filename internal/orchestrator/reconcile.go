package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"server/internal/domain"
	"server/internal/provider"
)

// Reconcile reports the current view of a job, polling the provider when
// the job is still in flight. Terminal jobs are returned idempotently.
// Transient poll errors never settle the job; the underlying provider task
// may still be running.
func (o *Orchestrator) Reconcile(ctx context.Context, jobID string) (JobView, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return JobView{}, err
	}
	if job.Status.Terminal() {
		return viewOf(job), nil
	}
	if job.ProviderHandle == "" {
		// Dispatch has not recorded a handle yet (or the provider was
		// synchronous and settlement is mid-flight). Nothing to poll.
		return viewOf(job), nil
	}

	adapter, ok := o.adapters[job.ProviderKey]
	if !ok {
		return o.settleFailed(ctx, job, "provider not configured", false), nil
	}

	poll, err := adapter.Poll(ctx, job.ProviderHandle)
	if err != nil {
		if errors.Is(err, provider.ErrTaskNotFound) {
			return o.settleFailed(ctx, job, "provider no longer knows the task", false), nil
		}
		// Transient: swallow and report still-processing.
		o.logger.Debug().Err(err).Str("job_id", job.ID).Msg("transient poll error")
		return viewOf(job), nil
	}
	if err := o.jobs.Touch(ctx, job.ID, o.now()); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("touch failed")
	}

	switch poll.State {
	case provider.PollRunning:
		return viewOf(job), nil
	case provider.PollDone:
		return o.settleCompleted(ctx, job, poll.Result), nil
	case provider.PollFailed:
		reason := poll.Reason
		if reason == "" {
			reason = "provider reported failure"
		}
		return o.settleFailed(ctx, job, reason, false), nil
	default:
		return JobView{}, fmt.Errorf("reconcile job %s: unknown poll state %d: %w", job.ID, poll.State, domain.ErrProviderFailure)
	}
}
