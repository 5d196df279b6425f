package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
	"coursegen-pipeline/internal/domain/ports/repository"
)

var _ adapter.StageExecutor = (*PlanningExecutor)(nil)

// PlanningExecutor turns a learner's skill-gap profile into a course plan.
// Replays are exactly-once: a job that already carries a plan returns the
// existing reference without another model call.
type PlanningExecutor struct {
	jobs    repository.JobRepository
	plans   repository.PlanRepository
	ai      adapter.AIServiceAdapter
	modelID string
	log     *zerolog.Logger
}

func NewPlanningExecutor(
	jobs repository.JobRepository,
	plans repository.PlanRepository,
	ai adapter.AIServiceAdapter,
	modelID string,
	log *zerolog.Logger,
) *PlanningExecutor {
	return &PlanningExecutor{jobs: jobs, plans: plans, ai: ai, modelID: modelID, log: log}
}

func (e *PlanningExecutor) Stage() model.Stage { return model.StagePlanning }

const planningSystemPrompt = `You are a corporate learning designer. Design a personalized corporate training course for one employee based on their skill gaps.
Return only JSON with keys: course_title (string), modules (array of {index, title, objective, mandatory}), prioritized_gaps (array of strings), research_strategy (string), learning_path (string).
The first module must be mandatory. Keep 3 to 6 modules.`

type planPayload struct {
	CourseTitle      string                      `json:"course_title"`
	Modules          []model.CourseModuleOutline `json:"modules"`
	PrioritizedGaps  []string                    `json:"prioritized_gaps"`
	ResearchStrategy string                      `json:"research_strategy"`
	LearningPath     string                      `json:"learning_path"`
}

func (e *PlanningExecutor) Execute(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
	job, err := e.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return adapter.StageResult{}, fmt.Errorf("job %s vanished: %w", jobID, domain.ErrFatalPipeline)
	}

	// Replay: the plan was minted on a previous attempt.
	if job.PlanID != "" {
		if _, err := e.plans.FindByID(ctx, nil, job.PlanID); err == nil {
			return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: job.PlanID, NextStageHint: model.StageAwaitingApproval}, nil
		}
	}

	user := fmt.Sprintf("Employee %s at company %s, assigned by %s. Generation mode: %s.",
		job.EmployeeID, job.CompanyID, job.AssignedByID, job.Mode)
	reply, err := e.ai.Chat(ctx, e.modelID, []adapter.Message{
		{Role: "system", Content: planningSystemPrompt},
		{Role: "user", Content: user},
	})
	if err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	var payload planPayload
	if err := decodeModelJSON(reply, &payload); err != nil {
		// Malformed output does not heal with a retry of the same prompt.
		return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
	}
	if payload.CourseTitle == "" || len(payload.Modules) == 0 {
		return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: "plan payload missing title or modules"}, nil
	}
	for i := range payload.Modules {
		payload.Modules[i].Index = i
	}
	payload.Modules[0].Mandatory = true

	now := time.Now()
	plan := &model.Plan{
		ID:               uuid.NewString(),
		EmployeeID:       job.EmployeeID,
		SessionID:        job.ID,
		CourseTitle:      payload.CourseTitle,
		Modules:          payload.Modules,
		PrioritizedGaps:  payload.PrioritizedGaps,
		ResearchStrategy: payload.ResearchStrategy,
		LearningPath:     payload.LearningPath,
		ApprovalStatus:   model.ApprovalPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.plans.Create(ctx, nil, plan); err != nil {
		return adapter.StageResult{Status: adapter.StageTransientFailure, Detail: err.Error()}, nil
	}

	e.log.Info().Str("job_id", job.ID).Str("plan_id", plan.ID).Int("modules", len(plan.Modules)).Msg("course plan drafted")
	return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: plan.ID, NextStageHint: model.StageAwaitingApproval}, nil
}
