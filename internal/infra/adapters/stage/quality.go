package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ adapter.StageExecutor = (*QualityExecutor)(nil)

// QualityExecutor scores every pending module against the five quality
// dimensions and appends one assessment row per attempt. Passing modules move
// to quality_checked; routing after that is the gate's call, not this
// stage's, so the hint here is advisory.
type QualityExecutor struct {
	plans       repository.PlanRepository
	contents    repository.ContentRepository
	assessments repository.AssessmentRepository
	ai          adapter.AIServiceAdapter
	modelID     string
	threshold   float64
	weights     map[string]float64
	log         *zerolog.Logger
}

func NewQualityExecutor(
	plans repository.PlanRepository,
	contents repository.ContentRepository,
	assessments repository.AssessmentRepository,
	ai adapter.AIServiceAdapter,
	modelID string,
	threshold float64,
	weights map[string]float64,
	log *zerolog.Logger,
) *QualityExecutor {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.75
	}
	return &QualityExecutor{
		plans:       plans,
		contents:    contents,
		assessments: assessments,
		ai:          ai,
		modelID:     modelID,
		threshold:   threshold,
		weights:     weights,
		log:         log,
	}
}

func (e *QualityExecutor) Stage() model.Stage { return model.StageQualityCheck }

const qualityPrompt = `You are a corporate training quality reviewer. Score the module content below on each dimension in [0,1]: accuracy, clarity, engagement, personalization, structural_compliance.
Return only JSON with keys: scores (object mapping dimension to number) and suggestions (array of concrete improvement strings).`

type assessmentPayload struct {
	Scores      map[string]float64 `json:"scores"`
	Suggestions []string           `json:"suggestions"`
}

// Execute accepts either a plan id (first pass) or a content id (re-entry
// from the enhancement loop); both resolve to the whole plan, because the
// gate decides per plan, not per module.
func (e *QualityExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	planID := inputRef
	if _, err := e.plans.FindByID(ctx, nil, planID); err != nil {
		content, cerr := e.contents.FindByID(ctx, nil, inputRef)
		if cerr != nil {
			return adapter.StageResult{}, fmt.Errorf("quality input %s resolves to neither plan nor content: %w", inputRef, domain.ErrFatalPipeline)
		}
		planID = content.PlanID
	}

	contents, err := e.contents.ListByPlan(ctx, nil, planID)
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}
	if len(contents) == 0 {
		return adapter.StageResult{}, fmt.Errorf("plan %s has no content to assess: %w", planID, domain.ErrFatalPipeline)
	}

	for _, c := range contents {
		if c.Status == model.ContentStatusQualityChecked || c.Status == model.ContentStatusFinal || c.NeedsManualReview {
			continue
		}
		if res, done := e.assess(ctx, c); done {
			return res, nil
		}
	}

	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: planID, NextStageHint: model.StageMultimedia}, nil
}

// assess scores one module and persists the attempt. The returned result is
// meaningful only when done is true, which signals an early exit.
func (e *QualityExecutor) assess(ctx context.Context, c *model.ModuleContent) (adapter.StageResult, bool) {
	reply, err := e.ai.Chat(ctx, e.modelID, []adapter.Message{
		{Role: "system", Content: qualityPrompt},
		{Role: "user", Content: renderSections(c)},
	})
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, true
	}

	var payload assessmentPayload
	if err := decodeModelJSON(reply, &payload); err != nil {
		return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, true
	}
	if len(payload.Scores) == 0 {
		return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: "assessment carries no scores"}, true
	}

	prior, err := e.assessments.ListByContent(ctx, nil, c.ID)
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, true
	}

	aggregate := model.AggregateScore(payload.Scores, e.weights)
	verdict := model.VerdictFail
	if aggregate >= e.threshold {
		verdict = model.VerdictPass
	}
	a := &model.QualityAssessment{
		ID:          uuid.NewString(),
		ContentID:   c.ID,
		Attempt:     len(prior) + 1,
		Scores:      payload.Scores,
		Aggregate:   aggregate,
		Verdict:     verdict,
		Suggestions: payload.Suggestions,
		CreatedAt:   time.Now(),
	}
	if err := e.assessments.Create(ctx, nil, a); err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, true
	}

	e.log.Info().
		Str("content_id", c.ID).
		Int("attempt", a.Attempt).
		Float64("aggregate", aggregate).
		Str("verdict", string(verdict)).
		Msg("module assessed")

	if verdict == model.VerdictPass {
		if err := e.markChecked(ctx, c); err != nil {
			return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, true
		}
	}
	return adapter.StageResult{}, false
}

// markChecked flips the module to quality_checked under the version guard.
func (e *QualityExecutor) markChecked(ctx context.Context, c *model.ModuleContent) error {
	for {
		c.Status = model.ContentStatusQualityChecked
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

func renderSections(c *model.ModuleContent) string {
	var b []byte
	for _, name := range model.SectionNames {
		s, ok := c.Sections[name]
		if !ok {
			continue
		}
		b = append(b, fmt.Sprintf("## %s\n%s\n\n", name, s.Text)...)
	}
	return string(b)
}
