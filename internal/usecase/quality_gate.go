package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/repository"
)

// ExhaustionPolicy decides what happens when a module burns through its
// enhancement budget without passing the gate.
type ExhaustionPolicy string

const (
	// ExhaustContinue flags the module needs_manual_review and lets the
	// pipeline proceed.
	ExhaustContinue ExhaustionPolicy = "continue"
	// ExhaustFail escalates to job failure when the exhausted module is
	// marked mandatory in the plan; optional modules are flagged and the
	// run continues.
	ExhaustFail ExhaustionPolicy = "fail"
)

// QualityGateConfig bounds the enhancement loop.
type QualityGateConfig struct {
	MaxEnhancements int // per module, e.g. 3
	Policy          ExhaustionPolicy
}

func (c QualityGateConfig) normalized() QualityGateConfig {
	if c.MaxEnhancements <= 0 {
		c.MaxEnhancements = 3
	}
	if c.Policy != ExhaustFail {
		c.Policy = ExhaustContinue
	}
	return c
}

// GateDecision is the quality gate's routing verdict after an evaluation pass.
type GateDecision struct {
	Next  model.Stage // StageEnhancement, or the mode's success stage
	Ref   string      // payload ref for the handoff record
	Fail  bool        // escalate the job to FAILED
	Cause string
}

// QualityGate reads the assessments the quality stage persisted and decides
// pass / enhance / fail for the plan's modules, driving the bounded
// enhancement loop. It never talks to a generation model itself.
type QualityGate struct {
	plans       repository.PlanRepository
	contents    repository.ContentRepository
	assessments repository.AssessmentRepository
	cfg         QualityGateConfig
	observer    PipelineObserver
	log         *zerolog.Logger
}

func NewQualityGate(
	plans repository.PlanRepository,
	contents repository.ContentRepository,
	assessments repository.AssessmentRepository,
	cfg QualityGateConfig,
	observer PipelineObserver,
	log *zerolog.Logger,
) *QualityGate {
	if observer == nil {
		observer = NopObserver
	}
	return &QualityGate{
		plans:       plans,
		contents:    contents,
		assessments: assessments,
		cfg:         cfg.normalized(),
		observer:    observer,
		log:         log,
	}
}

// Decide inspects the plan's module contents after a quality evaluation pass.
// Modules the stage passed carry status quality_checked; anything still in
// draft/enhanced failed its latest assessment.
func (g *QualityGate) Decide(ctx context.Context, planID string, table model.RouteTable) (GateDecision, error) {
	contents, err := g.contents.ListByPlan(ctx, nil, planID)
	if err != nil {
		return GateDecision{}, fmt.Errorf("quality gate: list contents: %w", err)
	}
	if len(contents) == 0 {
		return GateDecision{}, fmt.Errorf("quality gate: plan %s has no module content: %w", planID, domain.ErrFatalPipeline)
	}

	for _, c := range contents {
		if a, err := g.assessments.LatestByContent(ctx, nil, c.ID); err == nil {
			g.observer.QualityScore(a.Aggregate)
		}
	}

	var exhausted []*model.ModuleContent
	for _, c := range contents {
		if c.Status == model.ContentStatusQualityChecked || c.Status == model.ContentStatusFinal {
			continue
		}
		if c.NeedsManualReview {
			continue // already flagged in a previous pass
		}
		if c.EnhancementCount < g.cfg.MaxEnhancements {
			// Budget remaining: loop this module through enhancement.
			return GateDecision{Next: model.StageEnhancement, Ref: c.ID}, nil
		}
		exhausted = append(exhausted, c)
	}

	if len(exhausted) > 0 {
		if err := g.flagExhausted(ctx, exhausted); err != nil {
			return GateDecision{}, err
		}
		if g.cfg.Policy == ExhaustFail {
			plan, err := g.plans.FindByID(ctx, nil, planID)
			if err != nil {
				return GateDecision{}, fmt.Errorf("quality gate: load plan: %w", err)
			}
			for _, c := range exhausted {
				if plan.MandatoryModule(c.ModuleIndex) {
					return GateDecision{
						Fail:  true,
						Cause: fmt.Sprintf("module %d failed the quality gate after %d enhancement attempts", c.ModuleIndex, g.cfg.MaxEnhancements),
					}, nil
				}
			}
		}
		for _, c := range exhausted {
			g.log.Warn().
				Str("content_id", c.ID).
				Int("module_index", c.ModuleIndex).
				Msg("enhancement budget exhausted, module flagged for manual review")
		}
	}

	next, ok := table.SuccessStage(model.StageQualityCheck)
	if !ok {
		return GateDecision{}, fmt.Errorf("quality gate: no success edge for mode %s: %w", table.Mode(), domain.ErrFatalPipeline)
	}
	return GateDecision{Next: next, Ref: planID}, nil
}

// flagExhausted sets needs_manual_review with the version-guarded
// read-mutate-retry loop the store requires.
func (g *QualityGate) flagExhausted(ctx context.Context, contents []*model.ModuleContent) error {
	for _, c := range contents {
		for {
			c.NeedsManualReview = true
			err := g.contents.Update(ctx, nil, c)
			if err == nil {
				break
			}
			if !errors.Is(err, domain.ErrConcurrencyConflict) {
				return fmt.Errorf("quality gate: flag content %s: %w", c.ID, err)
			}
			fresh, ferr := g.contents.FindByID(ctx, nil, c.ID)
			if ferr != nil {
				return fmt.Errorf("quality gate: re-read content %s: %w", c.ID, ferr)
			}
			*c = *fresh
		}
	}
	return nil
}
