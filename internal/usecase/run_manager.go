package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
	"coursegen-pipeline/internal/infra/logging"
)

// StatusCache is a read-through cache for job snapshots (Redis in infra).
// Misses and write failures are harmless; the store stays authoritative.
type StatusCache interface {
	Put(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
}

// RunLocker closes the check-then-create race on duplicate submissions.
// Implemented over Redis SetNX; the database active-run query remains the
// durable invariant.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// Dispatcher runs the pipeline drive loop off the caller's request path.
// The worker pool provides it in production; tests run synchronously.
type Dispatcher interface {
	Submit(task func(ctx context.Context) error) error
}

// RunManager is the public entry point of the orchestrator.
type RunManager interface {
	// Start creates a job for a fresh run and drives it from PLANNING.
	// A second submission with the same identifying parameters while the
	// first is running fails with domain.ErrConcurrencyConflict.
	Start(ctx context.Context, employeeID, companyID, assignedByID string, mode model.GenerationMode) (jobID string, err error)
	// Resume reconstructs the furthest legally-reachable stage from the
	// handoff trail and re-enters the router there. Resuming a terminal
	// job is a no-op returning the existing job id.
	Resume(ctx context.Context, planID string) (jobID string, err error)
	// Status returns a read-only job snapshot.
	Status(ctx context.Context, jobID string) (*model.Job, error)
	// Cancel marks the job for cancellation; honored between stages only.
	Cancel(ctx context.Context, jobID string) error
	// ApprovePlan / RejectPlan operate the AWAITING_APPROVAL gate.
	ApprovePlan(ctx context.Context, planID string) error
	RejectPlan(ctx context.Context, planID string) error
}

// Compile-time check
var _ RunManager = (*runManager)(nil)

type runManager struct {
	jobs     repository.JobRepository
	plans    repository.PlanRepository
	handoffs repository.HandoffRepository
	router   *HandoffRouter
	locker   RunLocker
	cache    StatusCache
	dispatch Dispatcher
	notifier adapter.RunNotifier
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewRunManager(
	jobs repository.JobRepository,
	plans repository.PlanRepository,
	handoffs repository.HandoffRepository,
	router *HandoffRouter,
	locker RunLocker,
	cache StatusCache,
	dispatch Dispatcher,
	notifier adapter.RunNotifier,
	log *zerolog.Logger,
) *runManager {
	return &runManager{
		jobs:     jobs,
		plans:    plans,
		handoffs: handoffs,
		router:   router,
		locker:   locker,
		cache:    cache,
		dispatch: dispatch,
		notifier: notifier,
		lockTTL:  30 * time.Second,
		log:      log,
	}
}

func (m *runManager) Start(ctx context.Context, employeeID, companyID, assignedByID string, mode model.GenerationMode) (string, error) {
	defer logging.TraceDuration(m.log, "RunManager.Start")()
	if employeeID == "" || companyID == "" || assignedByID == "" {
		return "", fmt.Errorf("employee, company and assigner are required: %w", domain.ErrValidation)
	}
	if !model.ValidMode(mode) {
		return "", fmt.Errorf("unknown generation mode %q: %w", mode, domain.ErrValidation)
	}

	// Short-lived lock around check-then-create; the repository query is
	// the durable duplicate guard.
	if m.locker != nil {
		key := "run:" + companyID + ":" + employeeID
		token, err := m.locker.TryLock(ctx, key, m.lockTTL)
		if err != nil {
			return "", fmt.Errorf("duplicate submission in flight: %w", domain.ErrConcurrencyConflict)
		}
		defer func() { _ = m.locker.Unlock(ctx, key, token) }()
	}

	if existing, err := m.jobs.FindActiveByEmployee(ctx, nil, employeeID, companyID); err == nil && existing != nil {
		return "", fmt.Errorf("job %s is still running for this learner: %w", existing.ID, domain.ErrConcurrencyConflict)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	job := model.NewJob(ulid.Make().String(), employeeID, companyID, assignedByID, mode)
	if err := m.jobs.Save(ctx, nil, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	ctx = logging.WithJobID(ctx, job.ID)
	logging.With(ctx, m.log).Info().Str("employee_id", employeeID).Str("mode", string(mode)).Msg("run submitted")

	m.drive(ctx, job, "")
	return job.ID, nil
}

func (m *runManager) Resume(ctx context.Context, planID string) (string, error) {
	defer logging.TraceDuration(m.log, "RunManager.Resume")()
	ctx = logging.WithPlanID(ctx, planID)
	plan, err := m.plans.FindByID(ctx, nil, planID)
	if err != nil {
		return "", fmt.Errorf("plan %s: %w", planID, domain.ErrNotFound)
	}
	job, err := m.jobs.FindByPlanID(ctx, nil, planID)
	if err != nil {
		return "", fmt.Errorf("no job for plan %s: %w", planID, domain.ErrNotFound)
	}
	if job.Status == model.JobStatusCompleted {
		// Idempotent: replaying a resume on a completed job returns the
		// existing terminal result without re-running stages.
		return job.ID, nil
	}
	if job.Status == model.JobStatusFailed {
		// Permanent failures leave every persisted entity intact; re-arm
		// the job and continue from the last committed handoff.
		job.Status = model.JobStatusRunning
		job.Error = ""
		job.CancelRequested = false
		if err := m.jobs.Save(ctx, nil, job); err != nil {
			return "", fmt.Errorf("re-arm job %s: %w", job.ID, err)
		}
	}

	stage, ref := m.resumePoint(ctx, job)
	job.CurrentStage = stage

	// Re-validate the approval guard up front so the caller learns about a
	// still-pending plan synchronously.
	table := m.router.Table(job.Mode)
	if stage == model.StageAwaitingApproval {
		if next, ok := table.SuccessStage(model.StageAwaitingApproval); ok && next == model.StageResearch && !plan.Approved() {
			return "", fmt.Errorf("plan %s: %w", planID, domain.ErrApprovalRequired)
		}
	}

	ctx = logging.WithJobID(ctx, job.ID)
	logging.With(ctx, m.log).Info().Str("stage", string(stage)).Msg("resuming run")
	m.drive(ctx, job, ref)
	return job.ID, nil
}

// resumePoint computes the furthest legally-reachable state consistent with
// the handoff trail. The last committed record is authoritative: handoffs
// and the job row advance in one transaction.
func (m *runManager) resumePoint(ctx context.Context, job *model.Job) (model.Stage, string) {
	rec, err := m.handoffs.Latest(ctx, nil, job.ID)
	if err != nil {
		// Never advanced: re-enter at planning. The planning executor
		// reuses an already-minted plan, so replays stay exactly-once.
		return model.InitialStage, ""
	}
	return rec.ToStage, rec.PayloadRef
}

func (m *runManager) Status(ctx context.Context, jobID string) (*model.Job, error) {
	if m.cache != nil {
		if job, err := m.cache.Get(ctx, jobID); err == nil && job != nil {
			return job, nil
		}
	}
	job, err := m.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if m.cache != nil {
		_ = m.cache.Put(ctx, job)
	}
	return job, nil
}

func (m *runManager) Cancel(ctx context.Context, jobID string) error {
	job, err := m.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return domain.ErrJobTerminal
	}
	job.CancelRequested = true
	job.UpdatedAt = time.Now()
	if err := m.jobs.Save(ctx, nil, job); err != nil {
		return err
	}
	// Refresh the snapshot so Status does not serve the pre-cancel job for
	// the remainder of the cache TTL.
	if m.cache != nil {
		_ = m.cache.Put(ctx, job)
	}
	m.log.Info().Str("job_id", jobID).Msg("cancellation requested")
	return nil
}

func (m *runManager) ApprovePlan(ctx context.Context, planID string) error {
	return m.mutatePlan(ctx, planID, func(p *model.Plan) error {
		if p.ApprovalStatus == model.ApprovalApproved {
			return nil
		}
		if p.ApprovalStatus == model.ApprovalRejected {
			return fmt.Errorf("plan %s was rejected: %w", planID, domain.ErrInvalidArgument)
		}
		p.Approve(time.Now())
		return nil
	})
}

func (m *runManager) RejectPlan(ctx context.Context, planID string) error {
	return m.mutatePlan(ctx, planID, func(p *model.Plan) error {
		if p.ApprovalStatus == model.ApprovalApproved {
			return fmt.Errorf("plan %s already approved: %w", planID, domain.ErrInvalidArgument)
		}
		p.Reject(time.Now())
		return nil
	})
}

// mutatePlan applies fn under the store's optimistic version check,
// re-reading and retrying on conflict rather than clobbering newer state.
func (m *runManager) mutatePlan(ctx context.Context, planID string, fn func(*model.Plan) error) error {
	for {
		plan, err := m.plans.FindByID(ctx, nil, planID)
		if err != nil {
			return err
		}
		if err := fn(plan); err != nil {
			return err
		}
		err = m.plans.Update(ctx, nil, plan)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
	}
}

// drive hands the router loop to the dispatcher, or runs it inline when none
// is wired (tests, cmd/demo). Terminal jobs trigger the assigner notification.
func (m *runManager) drive(ctx context.Context, job *model.Job, ref string) {
	// The dispatcher hands the task its own lifecycle context; keep the
	// submission's trace fields on the logger built here.
	logger := logging.With(ctx, m.log)
	run := func(ctx context.Context) error {
		err := m.router.Drive(ctx, job, ref)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrApprovalRequired):
			logger.Info().Msg("run parked awaiting plan approval")
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			logger.Warn().Msg("drive interrupted by shutdown; job stays resumable")
		default:
			logger.Error().Err(err).Msg("run finished with failure")
		}
		if job.Terminal() && m.notifier != nil {
			if nerr := m.notifier.NotifyRunFinished(ctx, job); nerr != nil {
				logger.Warn().Err(nerr).Msg("assigner notification failed")
			}
		}
		return nil
	}

	if m.dispatch == nil {
		_ = run(ctx)
		return
	}
	if err := m.dispatch.Submit(run); err != nil {
		logger.Error().Err(err).Msg("could not schedule pipeline drive")
	}
}
