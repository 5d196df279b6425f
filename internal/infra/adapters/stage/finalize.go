package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ adapter.StageExecutor = (*FinalizeExecutor)(nil)

// FinalizeExecutor freezes quality-checked modules at status final. Modules
// flagged for manual review stay untouched so a human can still edit them;
// everything else becomes immutable course material.
type FinalizeExecutor struct {
	plans    repository.PlanRepository
	contents repository.ContentRepository
	log      *zerolog.Logger
}

func NewFinalizeExecutor(
	plans repository.PlanRepository,
	contents repository.ContentRepository,
	log *zerolog.Logger,
) *FinalizeExecutor {
	return &FinalizeExecutor{plans: plans, contents: contents, log: log}
}

func (e *FinalizeExecutor) Stage() model.Stage { return model.StageFinalizing }

func (e *FinalizeExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	plan, err := e.plans.FindByID(ctx, nil, inputRef)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("plan %s vanished: %w", inputRef, domain.ErrFatalPipeline)
	}
	contents, err := e.contents.ListByPlan(ctx, nil, plan.ID)
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	finalized := 0
	flagged := 0
	for _, c := range contents {
		if c.NeedsManualReview {
			flagged++
			continue
		}
		if c.Status != model.ContentStatusQualityChecked {
			continue // already final, or never passed the gate
		}
		if err := e.freeze(ctx, c); err != nil {
			return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: fmt.Sprintf("module %d: %v", c.ModuleIndex, err)}, nil
		}
		finalized++
	}

	e.log.Info().
		Str("plan_id", plan.ID).
		Int("finalized", finalized).
		Int("manual_review", flagged).
		Msg("course finalized")
	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: plan.ID, NextStageHint: model.StageCompleted}, nil
}

func (e *FinalizeExecutor) freeze(ctx context.Context, c *model.ModuleContent) error {
	for {
		c.Status = model.ContentStatusFinal
		c.UpdatedAt = time.Now()
		err := e.contents.Update(ctx, nil, c)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		fresh, ferr := e.contents.FindByID(ctx, nil, c.ID)
		if ferr != nil {
			return ferr
		}
		*c = *fresh
	}
}
