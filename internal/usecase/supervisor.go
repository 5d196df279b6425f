package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/ports/adapter"
)

// RetryPolicy bounds the supervisor's transient-failure retries.
type RetryPolicy struct {
	MaxAttempts int           // total attempts per stage invocation
	BaseBackoff time.Duration // doubled per retry
	MaxBackoff  time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	return p
}

// RetrySupervisor wraps every stage invocation with failure classification,
// bounded exponential backoff and escalation.
//
// Classification:
//   - transient (rate limiting, connectivity): retried up to MaxAttempts,
//     then reclassified as permanent;
//   - permanent (invalid stage output): never retried, surfaces as
//     domain.ErrStageFailed with all state persisted so far left intact;
//   - fatal (missing upstream entity, illegal transition): surfaces as
//     domain.ErrFatalPipeline immediately.
type RetrySupervisor struct {
	policy   RetryPolicy
	observer PipelineObserver
	log      *zerolog.Logger
}

func NewRetrySupervisor(policy RetryPolicy, observer PipelineObserver, log *zerolog.Logger) *RetrySupervisor {
	if observer == nil {
		observer = NopObserver
	}
	return &RetrySupervisor{policy: policy.normalized(), observer: observer, log: log}
}

// Run invokes the executor until success, a non-retryable failure, retry
// exhaustion, or context cancellation. Failed attempts never surface as
// router transitions; only the final outcome does.
func (s *RetrySupervisor) Run(ctx context.Context, exec adapter.StageExecutor, jobID, inputRef string) (adapter.StageResult, error) {
	stage := exec.Stage()
	var lastDetail string

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		start := time.Now()
		res, err := exec.Execute(ctx, jobID, inputRef)
		elapsed := time.Since(start)

		switch {
		case err == nil && res.Status == adapter.StageSuccess:
			s.observer.StageLatency(stage, elapsed, true)
			return res, nil

		case err != nil && errors.Is(err, domain.ErrFatalPipeline):
			s.observer.StageLatency(stage, elapsed, false)
			return res, err

		case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			return res, err

		case err == nil && res.Status == adapter.StagePermanentFailure:
			s.observer.StageLatency(stage, elapsed, false)
			return res, fmt.Errorf("stage %s: %s: %w", stage, res.Detail, domain.ErrStageFailed)

		default:
			// Transient: either the executor said so or the error was
			// unclassified. Back off and try again.
			s.observer.StageLatency(stage, elapsed, false)
			lastDetail = res.Detail
			if err != nil {
				lastDetail = err.Error()
			}
			if attempt == s.policy.MaxAttempts {
				break
			}
			s.observer.StageRetry(stage)
			s.log.Warn().
				Str("job_id", jobID).
				Str("stage", string(stage)).
				Int("attempt", attempt).
				Str("cause", lastDetail).
				Msg("transient stage failure, backing off")
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				return adapter.StageResult{}, err
			}
		}
	}

	// Retries exhausted: reclassify as permanent.
	return adapter.StageResult{}, fmt.Errorf("stage %s: retries exhausted (%d attempts, last: %s): %w",
		stage, s.policy.MaxAttempts, lastDetail, domain.ErrStageFailed)
}

func (s *RetrySupervisor) backoff(attempt int) time.Duration {
	d := s.policy.BaseBackoff << (attempt - 1)
	if d > s.policy.MaxBackoff {
		d = s.policy.MaxBackoff
	}
	return d
}

func (s *RetrySupervisor) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
