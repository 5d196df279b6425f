package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ adapter.StageExecutor = (*EnhancementExecutor)(nil)

// EnhancementExecutor rewrites one failing module guided by the reviewer's
// latest suggestions. Each pass bumps EnhancementCount; the gate enforces
// the budget, this stage only does the work.
type EnhancementExecutor struct {
	plans       repository.PlanRepository
	contents    repository.ContentRepository
	assessments repository.AssessmentRepository
	ai          adapter.AIServiceAdapter
	modelID     string
	log         *zerolog.Logger
}

func NewEnhancementExecutor(
	plans repository.PlanRepository,
	contents repository.ContentRepository,
	assessments repository.AssessmentRepository,
	ai adapter.AIServiceAdapter,
	modelID string,
	log *zerolog.Logger,
) *EnhancementExecutor {
	return &EnhancementExecutor{plans: plans, contents: contents, assessments: assessments, ai: ai, modelID: modelID, log: log}
}

func (e *EnhancementExecutor) Stage() model.Stage { return model.StageEnhancement }

const enhancePrompt = `You are a corporate course author revising a module that failed quality review. Apply the reviewer suggestions while keeping the module's scope and structure.
Return only a JSON object mapping section names to {text} for exactly these sections: introduction, core_content, practical_applications, case_studies, assessments.`

func (e *EnhancementExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	content, err := e.contents.FindByID(ctx, nil, inputRef)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("content %s vanished: %w", inputRef, domain.ErrFatalPipeline)
	}
	plan, err := e.plans.FindByID(ctx, nil, content.PlanID)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("plan %s vanished: %w", content.PlanID, domain.ErrFatalPipeline)
	}

	latest, err := e.assessments.LatestByContent(ctx, nil, content.ID)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("content %s has no assessment to enhance from: %w", content.ID, domain.ErrFatalPipeline)
	}

	user := fmt.Sprintf("Course: %s\nModule %d\n\nReviewer suggestions:\n%s\n\nCurrent content:\n%s",
		plan.CourseTitle, content.ModuleIndex, bulletList(latest.Suggestions), renderSections(content))
	reply, err := e.ai.Chat(ctx, e.modelID, []adapter.Message{
		{Role: "system", Content: enhancePrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	var payload map[string]sectionPayload
	if err := decodeModelJSON(reply, &payload); err != nil {
		return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
	}
	sections := make(map[string]model.ContentSection, len(model.SectionNames))
	for _, name := range model.SectionNames {
		s, ok := payload[name]
		if !ok || strings.TrimSpace(s.Text) == "" {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: fmt.Sprintf("section %q missing from revision", name)}, nil
		}
		sections[name] = model.ContentSection{Text: s.Text, WordCount: wordCount(s.Text)}
	}

	for {
		content.Sections = sections
		content.Status = model.ContentStatusEnhanced
		content.EnhancementCount++
		content.UpdatedAt = time.Now()
		err := e.contents.Update(ctx, nil, content)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
		}
		fresh, ferr := e.contents.FindByID(ctx, nil, content.ID)
		if ferr != nil {
			return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: ferr.Error()}, nil
		}
		*content = *fresh
	}

	e.log.Info().
		Str("content_id", content.ID).
		Int("enhancement_count", content.EnhancementCount).
		Msg("module revised")
	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: content.ID, NextStageHint: model.StageQualityCheck}, nil
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, s := range items {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return b.String()
}
