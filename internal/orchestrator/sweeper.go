package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

const staleFailureReason = "generation timed out waiting for the provider"

// SweepStale force-fails every PROCESSING job older than its kind's
// staleness threshold, refunding held credits. It returns how many jobs it
// settled. Safe to run concurrently with client polls: the settlement CAS
// makes one of them a no-op.
func (o *Orchestrator) SweepStale(ctx context.Context) (int, error) {
	swept := 0
	kinds := []domain.JobKind{domain.JobKindImage, domain.JobKindVideo, domain.JobKindAvatarLipsync, domain.JobKindSpeech}
	for _, kind := range kinds {
		cutoff := o.now().Add(-o.catalog.StalenessFor(kind))
		jobs, err := o.jobs.ListProcessingBefore(ctx, kind, cutoff)
		if err != nil {
			return swept, err
		}
		for _, job := range jobs {
			view := o.settleFailed(ctx, job, staleFailureReason, true)
			if view.Status == string(domain.JobStatusFailed) {
				swept++
			}
		}
	}
	return swept, nil
}

// sweepOwner settles the caller's own stale jobs before admission, so a
// user is never blocked by abandoned work holding their concurrency slots.
func (o *Orchestrator) sweepOwner(ctx context.Context, ownerID string) {
	jobs, err := o.jobs.ListProcessingByOwner(ctx, ownerID)
	if err != nil {
		o.logger.Warn().Err(err).Str("owner_id", ownerID).Msg("owner sweep listing failed")
		return
	}
	now := o.now()
	for _, job := range jobs {
		if now.Sub(job.CreatedAt) < o.catalog.StalenessFor(job.Kind) {
			continue
		}
		o.settleFailed(ctx, job, staleFailureReason, true)
	}
}

// Sweeper runs SweepStale on a fixed interval until the context ends.
type Sweeper struct {
	Orchestrator *Orchestrator
	Interval     time.Duration
	Logger       zerolog.Logger
}

func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.Logger.Info().Dur("interval", interval).Msg("sweeper: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.Orchestrator.SweepStale(ctx)
			if err != nil {
				s.Logger.Error().Err(err).Msg("sweeper: sweep failed")
				continue
			}
			if n > 0 {
				s.Logger.Info().Int("settled", n).Msg("sweeper: settled stale jobs")
			}
		}
	}
}
