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

var _ adapter.StageExecutor = (*ResearchExecutor)(nil)

// ResearchExecutor runs the plan's research strategy: it asks the model for
// search queries, investigates them concurrently, and persists one session
// per plan. Partial query failures degrade confidence instead of failing the
// stage.
type ResearchExecutor struct {
	plans    repository.PlanRepository
	research repository.ResearchRepository
	ai       adapter.AIServiceAdapter
	modelID  string
	queries  int // fan-out cap
	log      *zerolog.Logger
}

func NewResearchExecutor(
	plans repository.PlanRepository,
	research repository.ResearchRepository,
	ai adapter.AIServiceAdapter,
	modelID string,
	queries int,
	log *zerolog.Logger,
) *ResearchExecutor {
	if queries <= 0 {
		queries = 4
	}
	return &ResearchExecutor{plans: plans, research: research, ai: ai, modelID: modelID, queries: queries, log: log}
}

func (e *ResearchExecutor) Stage() model.Stage { return model.StageResearch }

const queryPrompt = `You are a research assistant preparing a corporate training course.
Given the course plan below, produce the most useful web search queries.
Return only a JSON array of search queries (strings).`

const findingPrompt = `You are a research assistant. Investigate the search query below and synthesize what a course author needs to know.
Return only JSON with keys: topic (string), summary (string), sources (integer count of sources consulted).`

func (e *ResearchExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	plan, err := e.plans.FindByID(ctx, nil, inputRef)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("plan %s vanished: %w", inputRef, domain.ErrFatalPipeline)
	}

	// Replay: one session per plan.
	if existing, err := e.research.FindByPlanID(ctx, nil, plan.ID); err == nil {
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: existing.ID, NextStageHint: model.StageContentDrafting}, nil
	}

	queries, err := e.generateQueries(ctx, plan)
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	findings := e.investigate(ctx, queries)
	if len(findings) == 0 {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: "no research query produced a finding"}, nil
	}

	session := &model.ResearchSession{
		ID:         uuid.NewString(),
		PlanID:     plan.ID,
		Queries:    queries,
		Findings:   findings,
		TopicCount: len(findings),
		Confidence: float64(len(findings)) / float64(len(queries)),
		CreatedAt:  time.Now(),
	}
	if err := e.research.Create(ctx, nil, session); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a replay race; the stored session wins.
			if existing, ferr := e.research.FindByPlanID(ctx, nil, plan.ID); ferr == nil {
				return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: existing.ID, NextStageHint: model.StageContentDrafting}, nil
			}
		}
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	e.log.Info().Str("plan_id", plan.ID).Int("topics", session.TopicCount).Float64("confidence", session.Confidence).Msg("research session complete")
	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: session.ID, NextStageHint: model.StageContentDrafting}, nil
}

func (e *ResearchExecutor) generateQueries(ctx context.Context, plan *model.Plan) ([]string, error) {
	var outline strings.Builder
	fmt.Fprintf(&outline, "Course: %s\nStrategy: %s\nGaps: %s\nModules:\n",
		plan.CourseTitle, plan.ResearchStrategy, strings.Join(plan.PrioritizedGaps, ", "))
	for _, m := range plan.Modules {
		fmt.Fprintf(&outline, "- %s: %s\n", m.Title, m.Objective)
	}

	reply, err := e.ai.Chat(ctx, e.modelID, []adapter.Message{
		{Role: "system", Content: queryPrompt},
		{Role: "user", Content: outline.String()},
	})
	if err != nil {
		return nil, err
	}
	var queries []string
	if err := decodeModelJSON(reply, &queries); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, errors.New("model produced no queries")
	}
	if len(queries) > e.queries {
		queries = queries[:e.queries]
	}
	return queries, nil
}

// investigate fans the queries out concurrently; order of findings follows
// query order, failed queries leave gaps that lower confidence.
func (e *ResearchExecutor) investigate(ctx context.Context, queries []string) []model.ResearchFinding {
	results := make([]*model.ResearchFinding, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			reply, err := e.ai.Chat(ctx, e.modelID, []adapter.Message{
				{Role: "system", Content: findingPrompt},
				{Role: "user", Content: q},
			})
			if err != nil {
				e.log.Warn().Err(err).Str("query", q).Msg("research query failed")
				return
			}
			var f model.ResearchFinding
			if err := decodeModelJSON(reply, &f); err != nil {
				e.log.Warn().Err(err).Str("query", q).Msg("unparseable finding")
				return
			}
			results[i] = &f
		}(i, q)
	}
	wg.Wait()

	out := make([]model.ResearchFinding, 0, len(queries))
	for _, f := range results {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}
