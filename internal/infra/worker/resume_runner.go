package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/ports/repository"
	"coursegen-pipeline/internal/usecase"
)

// ResumeRunner sweeps for runs a crashed process left behind. A running job
// whose row has not moved for staleAfter is assumed orphaned and re-entered
// through RunManager.Resume, which replays from the last committed handoff.
type ResumeRunner struct {
	interval   time.Duration
	staleAfter time.Duration
	jobs       repository.JobRepository
	runs       usecase.RunManager
	log        *zerolog.Logger
}

func NewResumeRunner(interval, staleAfter time.Duration, jobs repository.JobRepository, runs usecase.RunManager, logger *zerolog.Logger) *ResumeRunner {
	compLog := logger.With().Str("component", "ResumeRunner").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &ResumeRunner{
		interval:   interval,
		staleAfter: staleAfter,
		jobs:       jobs,
		runs:       runs,
		log:        &compLog,
	}
}

func (w *ResumeRunner) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting resume runner")
	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping resume runner")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ResumeRunner) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.jobs.ListStale(ctx, nil, cutoff, 50)
	if err != nil {
		w.log.Error().Err(err).Msg("stale job sweep failed")
		return
	}
	for _, job := range stale {
		if job.PlanID == "" {
			// Crashed before planning committed; restart from the top.
			w.log.Info().Str("job_id", job.ID).Msg("stale pre-planning job, leaving for manual restart")
			continue
		}
		_, err := w.runs.Resume(ctx, job.PlanID)
		switch {
		case err == nil:
			w.log.Info().Str("job_id", job.ID).Msg("stale run resumed")
		case errors.Is(err, domain.ErrApprovalRequired):
			// Parked at the approval gate, nothing to do.
		default:
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("stale run resume failed")
		}
	}
}
