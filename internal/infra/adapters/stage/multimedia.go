package stage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ adapter.StageExecutor = (*MultimediaExecutor)(nil)

// MultimediaExecutor renders presentation assets for every quality-checked
// module. Modules flagged for manual review are skipped; they render after a
// human signs them off, outside this pipeline.
type MultimediaExecutor struct {
	plans    repository.PlanRepository
	contents repository.ContentRepository
	renderer adapter.MediaRenderer
	log      *zerolog.Logger
}

func NewMultimediaExecutor(
	plans repository.PlanRepository,
	contents repository.ContentRepository,
	renderer adapter.MediaRenderer,
	log *zerolog.Logger,
) *MultimediaExecutor {
	return &MultimediaExecutor{plans: plans, contents: contents, renderer: renderer, log: log}
}

func (e *MultimediaExecutor) Stage() model.Stage { return model.StageMultimedia }

func (e *MultimediaExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	plan, err := e.plans.FindByID(ctx, nil, inputRef)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("plan %s vanished: %w", inputRef, domain.ErrFatalPipeline)
	}
	contents, err := e.contents.ListByPlan(ctx, nil, plan.ID)
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	rendered := 0
	for _, c := range contents {
		if c.Status != model.ContentStatusQualityChecked || c.NeedsManualReview {
			continue
		}
		ref, err := e.renderer.RenderModule(ctx, plan, c)
		if err != nil {
			return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: fmt.Sprintf("module %d: %v", c.ModuleIndex, err)}, nil
		}
		rendered++
		e.log.Info().Str("content_id", c.ID).Int("module_index", c.ModuleIndex).Str("asset_ref", ref).Msg("module rendered")
	}

	e.log.Info().Str("plan_id", plan.ID).Int("rendered", rendered).Msg("multimedia pass complete")
	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: plan.ID, NextStageHint: model.StageFinalizing}, nil
}
