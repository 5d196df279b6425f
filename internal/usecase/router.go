package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
	"coursegen-pipeline/internal/infra/logging"
)

// HandoffRouter is the stage state machine. It validates transitions against
// the legal-edge table for the job's generation mode, persists a
// HandoffRecord per committed edge, and invokes the next stage executor with
// an opaque reference id — never a payload. Stages re-fetch current state
// from the store, which keeps inter-stage messages bounded and makes the
// handoff trail sufficient to reconstruct progress.
type HandoffRouter struct {
	jobs      repository.JobRepository
	plans     repository.PlanRepository
	handoffs  repository.HandoffRepository
	tm        repository.TransactionManager
	executors map[model.Stage]adapter.StageExecutor
	sup       *RetrySupervisor
	gate      *QualityGate
	// multimedia applies to first_module mode only; full always renders.
	multimedia bool
	observer   PipelineObserver
	cache      StatusCache
	log        *zerolog.Logger
}

func NewHandoffRouter(
	jobs repository.JobRepository,
	plans repository.PlanRepository,
	handoffs repository.HandoffRepository,
	tm repository.TransactionManager,
	executors []adapter.StageExecutor,
	sup *RetrySupervisor,
	gate *QualityGate,
	multimedia bool,
	observer PipelineObserver,
	cache StatusCache,
	log *zerolog.Logger,
) *HandoffRouter {
	byStage := make(map[model.Stage]adapter.StageExecutor, len(executors))
	for _, e := range executors {
		byStage[e.Stage()] = e
	}
	if observer == nil {
		observer = NopObserver
	}
	return &HandoffRouter{
		jobs:       jobs,
		plans:      plans,
		handoffs:   handoffs,
		tm:         tm,
		executors:  byStage,
		sup:        sup,
		gate:       gate,
		multimedia: multimedia,
		observer:   observer,
		cache:      cache,
		log:        log,
	}
}

// Table returns the legal-edge table for a job's mode.
func (r *HandoffRouter) Table(mode model.GenerationMode) model.RouteTable {
	return model.NewRouteTable(mode, r.multimedia)
}

// Drive advances the job from its current stage until a terminal state, an
// approval park, or a failure. inputRef is the payload reference entering the
// current stage ("" for a fresh job at planning).
//
// Drive is strictly sequential for one job: a stage never starts before its
// predecessor's HandoffRecord is committed. Jobs for different learners run
// concurrent Drive loops safely because all entities are id-scoped and every
// shared write goes through the version-guarded store.
func (r *HandoffRouter) Drive(ctx context.Context, job *model.Job, inputRef string) error {
	table := r.Table(job.Mode)
	ctx = logging.WithJobID(ctx, job.ID)
	logger := logging.With(ctx, r.log).With().Str("mode", string(job.Mode)).Logger()
	defer logging.TraceDuration(&logger, "HandoffRouter.Drive")()

	for !job.Terminal() {
		// Cancellation arrives out of band via the job row; pick it up at
		// the stage boundary. It is honored between stages only; an
		// in-flight stage completes and its result is persisted first.
		if fresh, err := r.jobs.FindByID(ctx, nil, job.ID); err == nil {
			job.CancelRequested = fresh.CancelRequested
		}
		if job.CancelRequested {
			return r.failJob(ctx, job, "cancelled by request", domain.ErrJobCancelled)
		}

		stage := job.CurrentStage

		if stage == model.StageAwaitingApproval {
			next, err := r.approvalGate(ctx, job, table)
			if err != nil {
				return err // park: plan still pending
			}
			if err := r.commit(ctx, job, stage, next, job.PlanID); err != nil {
				return err
			}
			inputRef = job.PlanID
			continue
		}

		exec, ok := r.executors[stage]
		if !ok {
			return r.failJob(ctx, job,
				fmt.Sprintf("no executor registered for stage %s", stage), domain.ErrFatalPipeline)
		}

		// Executors and the supervisor inherit the stage-tagged context.
		stageCtx := logging.WithStage(ctx, string(stage))
		logging.With(stageCtx, r.log).Info().Str("input_ref", inputRef).Msg("invoking stage")
		res, err := r.sup.Run(stageCtx, exec, job.ID, inputRef)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err // process shutdown; job stays running and resumable
			}
			return r.failJob(ctx, job, err.Error(), err)
		}

		// The planning stage mints the plan the whole run hangs off.
		if stage == model.StagePlanning && job.PlanID == "" {
			job.PlanID = res.OutputRef
		}

		var next model.Stage
		var nextRef string
		if stage == model.StageQualityCheck {
			// The executor's hint is advisory here; the gate owns the
			// pass/enhance/fail decision and the retry budget.
			dec, derr := r.gate.Decide(ctx, job.PlanID, table)
			if derr != nil {
				return r.failJob(ctx, job, derr.Error(), derr)
			}
			if dec.Fail {
				return r.failJob(ctx, job, dec.Cause, domain.ErrQualityGateFailure)
			}
			next, nextRef = dec.Next, dec.Ref
		} else {
			next, nextRef = res.NextStageHint, res.OutputRef
		}

		if !table.CanTransition(stage, next) {
			return r.failJob(ctx, job,
				fmt.Sprintf("illegal transition %s→%s for mode %s", stage, next, job.Mode), domain.ErrFatalPipeline)
		}

		if err := r.commit(ctx, job, stage, next, nextRef); err != nil {
			return err
		}
		inputRef = nextRef
	}

	return nil
}

// approvalGate resolves the AWAITING_APPROVAL pseudo-stage. outline_only
// completes straight from it; other modes require an approved plan before
// research may start.
func (r *HandoffRouter) approvalGate(ctx context.Context, job *model.Job, table model.RouteTable) (model.Stage, error) {
	next, ok := table.SuccessStage(model.StageAwaitingApproval)
	if !ok {
		return "", r.failJob(ctx, job, "approval stage has no successor", domain.ErrFatalPipeline)
	}
	if next != model.StageResearch {
		return next, nil
	}
	plan, err := r.plans.FindByID(ctx, nil, job.PlanID)
	if err != nil {
		return "", r.failJob(ctx, job,
			fmt.Sprintf("plan %s missing at approval gate", job.PlanID), domain.ErrFatalPipeline)
	}
	if !plan.Approved() {
		return "", fmt.Errorf("plan %s: %w", plan.ID, domain.ErrApprovalRequired)
	}
	return next, nil
}

// commit atomically appends the handoff record and advances the job row.
// This is the pipeline's only transition point; everything downstream of it
// is reconstructable from the handoff trail.
func (r *HandoffRouter) commit(ctx context.Context, job *model.Job, from, to model.Stage, ref string) error {
	rec := &model.HandoffRecord{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		FromStage:  from,
		ToStage:    to,
		PayloadRef: ref,
		CreatedAt:  time.Now(),
	}
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := r.handoffs.Append(ctx, tx, rec); err != nil {
			return err
		}
		job.CurrentStage = to
		if to == model.StageCompleted {
			job.Status = model.JobStatusCompleted
		}
		job.UpdatedAt = time.Now()
		return r.jobs.Save(ctx, tx, job)
	})
	if err != nil {
		return fmt.Errorf("commit handoff %s→%s: %w", from, to, err)
	}

	r.observer.StageTransition(job.Mode, from, to)
	if job.Terminal() {
		r.observer.JobFinished(job.Status)
	}
	r.putStatus(ctx, job)
	r.log.Info().
		Str("job_id", job.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("payload_ref", ref).
		Msg("handoff committed")
	return nil
}

// failJob records the structured cause and moves the job to FAILED. All
// previously persisted entities stay intact for resumption or inspection.
func (r *HandoffRouter) failJob(ctx context.Context, job *model.Job, cause string, err error) error {
	job.Status = model.JobStatusFailed
	job.Error = cause
	job.UpdatedAt = time.Now()
	if saveErr := r.jobs.Save(ctx, nil, job); saveErr != nil {
		r.log.Error().Err(saveErr).Str("job_id", job.ID).Msg("could not persist job failure")
	}
	r.observer.JobFinished(model.JobStatusFailed)
	r.putStatus(ctx, job)
	r.log.Error().Str("job_id", job.ID).Str("cause", cause).Msg("job failed")
	return err
}

func (r *HandoffRouter) putStatus(ctx context.Context, job *model.Job) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, job); err != nil {
		r.log.Debug().Err(err).Str("job_id", job.ID).Msg("status cache write failed")
	}
}
