package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ adapter.StageExecutor = (*ContentExecutor)(nil)

// ContentExecutor drafts module content from the plan and the research
// findings. Modules are drafted concurrently; the provider wrapper bounds
// the real fan-out. Replays skip modules that already have a row.
type ContentExecutor struct {
	jobs     repository.JobRepository
	plans    repository.PlanRepository
	research repository.ResearchRepository
	contents repository.ContentRepository
	ai       adapter.AIServiceAdapter
	modelID  string
	log      *zerolog.Logger
}

func NewContentExecutor(
	jobs repository.JobRepository,
	plans repository.PlanRepository,
	research repository.ResearchRepository,
	contents repository.ContentRepository,
	ai adapter.AIServiceAdapter,
	modelID string,
	log *zerolog.Logger,
) *ContentExecutor {
	return &ContentExecutor{jobs: jobs, plans: plans, research: research, contents: contents, ai: ai, modelID: modelID, log: log}
}

func (e *ContentExecutor) Stage() model.Stage { return model.StageContentDrafting }

const draftPrompt = `You are a corporate course author. Draft the course module described below, grounded in the research summary.
Return only a JSON object mapping section names to {text} for exactly these sections: introduction, core_content, practical_applications, case_studies, assessments.`

type sectionPayload struct {
	Text string `json:"text"`
}

func (e *ContentExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	session, err := e.research.FindByID(ctx, nil, inputRef)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("research session %s vanished: %w", inputRef, domain.ErrFatalPipeline)
	}
	plan, err := e.plans.FindByID(ctx, nil, session.PlanID)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("plan %s vanished: %w", session.PlanID, domain.ErrFatalPipeline)
	}
	job, err := e.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("job %s vanished: %w", jobID, domain.ErrFatalPipeline)
	}

	want := plan.Modules
	if job.Mode == model.ModeFirstModule && len(want) > 1 {
		want = want[:1]
	}

	existing, err := e.contents.ListByPlan(ctx, nil, plan.ID)
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}
	drafted := make(map[int]bool, len(existing))
	for _, c := range existing {
		drafted[c.ModuleIndex] = true
	}

	digest := researchDigest(session)

	type draftErr struct {
		index     int
		err       error
		permanent bool
	}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []draftErr
	)
	for _, m := range want {
		if drafted[m.Index] {
			continue
		}
		wg.Add(1)
		go func(m model.CourseModuleOutline) {
			defer wg.Done()
			perm, err := e.draftModule(ctx, plan, m, digest)
			if err != nil {
				mu.Lock()
				errs = append(errs, draftErr{index: m.Index, err: err, permanent: perm})
				mu.Unlock()
			}
		}(m)
	}
	wg.Wait()

	for _, de := range errs {
		detail := fmt.Sprintf("module %d: %v", de.index, de.err)
		if de.permanent {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: detail}, nil
		}
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: detail}, nil
	}

	e.log.Info().Str("plan_id", plan.ID).Int("modules", len(want)).Msg("module drafting complete")
	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: plan.ID, NextStageHint: model.StageQualityCheck}, nil
}

// draftModule generates and persists one module. The bool reports whether the
// failure is permanent.
func (e *ContentExecutor) draftModule(ctx context.Context, plan *model.Plan, m model.CourseModuleOutline, digest string) (bool, error) {
	user := fmt.Sprintf("Course: %s\nModule %d: %s\nObjective: %s\n\nResearch summary:\n%s",
		plan.CourseTitle, m.Index, m.Title, m.Objective, digest)
	reply, err := e.ai.Chat(ctx, e.modelID, []adapter.Message{
		{Role: "system", Content: draftPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return false, err
	}

	var payload map[string]sectionPayload
	if err := decodeModelJSON(reply, &payload); err != nil {
		return true, err
	}
	sections := make(map[string]model.ContentSection, len(model.SectionNames))
	for _, name := range model.SectionNames {
		s, ok := payload[name]
		if !ok || strings.TrimSpace(s.Text) == "" {
			return true, fmt.Errorf("section %q missing from draft", name)
		}
		sections[name] = model.ContentSection{Text: s.Text, WordCount: wordCount(s.Text)}
	}

	now := time.Now()
	content := &model.ModuleContent{
		ID:          uuid.NewString(),
		PlanID:      plan.ID,
		ModuleIndex: m.Index,
		Sections:    sections,
		Status:      model.ContentStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.contents.Create(ctx, nil, content); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil // a replay beat us to it
		}
		return false, err
	}
	return false, nil
}

func researchDigest(session *model.ResearchSession) string {
	var b strings.Builder
	for _, f := range session.Findings {
		fmt.Fprintf(&b, "- %s: %s\n", f.Topic, f.Summary)
	}
	return b.String()
}
