package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
)

// rig wires a full in-memory orchestrator with scripted stage executors that
// behave like the real ones: they persist entities and hand back reference
// ids, never payloads.
type rig struct {
	jobs        *memJobRepo
	plans       *memPlanRepo
	research    *memResearchRepo
	contents    *memContentRepo
	assessments *memAssessmentRepo
	handoffs    *memHandoffRepo
	notifier    *fakeNotifier
	cache       *memStatusCache

	execs  map[model.Stage]*fakeExecutor
	router *HandoffRouter
	mgr    RunManager
}

type rigOpts struct {
	gateCfg    QualityGateConfig
	multimedia bool
	retry      RetryPolicy
	// qualityScores scripts the aggregate score sequence per module index;
	// each quality pass over a module pops the next value. Empty/exhausted
	// scripts default to a passing 0.9.
	qualityScores map[int][]float64
	// moduleCount is the number of modules the planning stage outlines.
	moduleCount int
	// override replaces a scripted executor wholesale.
	override map[model.Stage]*fakeExecutor
	// withCache wires an in-memory status cache into router and manager.
	withCache bool
}

func defaultOpts() rigOpts {
	return rigOpts{
		gateCfg:     QualityGateConfig{MaxEnhancements: 3, Policy: ExhaustContinue},
		multimedia:  false,
		retry:       RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		moduleCount: 2,
	}
}

func newRig(t *testing.T, opts rigOpts) *rig {
	t.Helper()

	r := &rig{
		jobs:        newMemJobRepo(),
		plans:       newMemPlanRepo(),
		research:    newMemResearchRepo(),
		contents:    newMemContentRepo(),
		assessments: newMemAssessmentRepo(),
		handoffs:    newMemHandoffRepo(),
		notifier:    &fakeNotifier{},
		execs:       map[model.Stage]*fakeExecutor{},
	}

	logger := zerolog.Nop()
	sup := NewRetrySupervisor(opts.retry, nil, &logger)
	gate := NewQualityGate(r.plans, r.contents, r.assessments, opts.gateCfg, nil, &logger)

	r.scriptExecutors(opts)
	var execs []adapter.StageExecutor
	for _, e := range r.execs {
		execs = append(execs, e)
	}

	var cache StatusCache
	if opts.withCache {
		r.cache = newMemStatusCache()
		cache = r.cache
	}
	r.router = NewHandoffRouter(r.jobs, r.plans, r.handoffs, memTxManager{}, execs, sup, gate, opts.multimedia, nil, cache, &logger)
	r.mgr = NewRunManager(r.jobs, r.plans, r.handoffs, r.router, nil, cache, nil, r.notifier, &logger)
	return r
}

func (r *rig) scriptExecutors(opts rigOpts) {
	ctxJob := func(ctx context.Context, jobID string) *model.Job {
		j, _ := r.jobs.FindByID(ctx, nil, jobID)
		return j
	}

	r.execs[model.StagePlanning] = &fakeExecutor{stage: model.StagePlanning, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		job := ctxJob(ctx, jobID)
		if job != nil && job.PlanID != "" {
			return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: job.PlanID, NextStageHint: model.StageAwaitingApproval}, nil
		}
		plan := &model.Plan{
			ID:             uuid.NewString(),
			EmployeeID:     job.EmployeeID,
			SessionID:      jobID,
			CourseTitle:    "Closing the gaps",
			ApprovalStatus: model.ApprovalPending,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		for i := 0; i < opts.moduleCount; i++ {
			plan.Modules = append(plan.Modules, model.CourseModuleOutline{
				Index: i, Title: fmt.Sprintf("Module %d", i), Mandatory: i == 0,
			})
		}
		if err := r.plans.Create(ctx, nil, plan); err != nil {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
		}
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: plan.ID, NextStageHint: model.StageAwaitingApproval}, nil
	}}

	r.execs[model.StageResearch] = &fakeExecutor{stage: model.StageResearch, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		if existing, err := r.research.FindByPlanID(ctx, nil, inputRef); err == nil {
			return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: existing.ID, NextStageHint: model.StageContentDrafting}, nil
		}
		s := &model.ResearchSession{ID: uuid.NewString(), PlanID: inputRef, TopicCount: 3, Confidence: 0.8, CreatedAt: time.Now()}
		if err := r.research.Create(ctx, nil, s); err != nil {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
		}
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: s.ID, NextStageHint: model.StageContentDrafting}, nil
	}}

	r.execs[model.StageContentDrafting] = &fakeExecutor{stage: model.StageContentDrafting, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		job := ctxJob(ctx, jobID)
		session, err := r.research.FindByID(ctx, nil, inputRef)
		if err != nil {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: "research session missing"}, nil
		}
		plan, _ := r.plans.FindByID(ctx, nil, session.PlanID)
		want := len(plan.Modules)
		if job.Mode == model.ModeFirstModule && want > 1 {
			want = 1
		}
		existing, _ := r.contents.ListByPlan(ctx, nil, plan.ID)
		drafted := map[int]bool{}
		for _, c := range existing {
			drafted[c.ModuleIndex] = true
		}
		for i := 0; i < want; i++ {
			if drafted[i] {
				continue
			}
			c := &model.ModuleContent{
				ID: uuid.NewString(), PlanID: plan.ID, ModuleIndex: i,
				Sections: map[string]model.ContentSection{
					model.SectionIntroduction: {Text: "intro", WordCount: 1},
					model.SectionCoreContent:  {Text: "core", WordCount: 1},
				},
				Status: model.ContentStatusDraft, CreatedAt: time.Now(), UpdatedAt: time.Now(),
			}
			if err := r.contents.Create(ctx, nil, c); err != nil {
				return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
			}
		}
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: plan.ID, NextStageHint: model.StageQualityCheck}, nil
	}}

	scores := map[int][]float64{}
	for k, v := range opts.qualityScores {
		scores[k] = append([]float64(nil), v...)
	}
	popScore := func(idx int) float64 {
		seq := scores[idx]
		if len(seq) == 0 {
			return 0.9
		}
		s := seq[0]
		scores[idx] = seq[1:]
		return s
	}

	r.execs[model.StageQualityCheck] = &fakeExecutor{stage: model.StageQualityCheck, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		// inputRef may be a plan id (after drafting) or a content id
		// (after enhancement); resolve to the plan either way.
		planID := inputRef
		if c, err := r.contents.FindByID(ctx, nil, inputRef); err == nil {
			planID = c.PlanID
		}
		contents, _ := r.contents.ListByPlan(ctx, nil, planID)
		anyFail := false
		for _, c := range contents {
			if c.Status == model.ContentStatusQualityChecked || c.Status == model.ContentStatusFinal || c.NeedsManualReview {
				continue
			}
			prior, _ := r.assessments.ListByContent(ctx, nil, c.ID)
			score := popScore(c.ModuleIndex)
			verdict := model.VerdictPass
			if score < 0.75 {
				verdict = model.VerdictFail
				anyFail = true
			}
			_ = r.assessments.Create(ctx, nil, &model.QualityAssessment{
				ID: uuid.NewString(), ContentID: c.ID, Attempt: len(prior) + 1,
				Scores:    map[string]float64{model.DimAccuracy: score},
				Aggregate: score, Verdict: verdict,
				Suggestions: []string{"tighten the examples"},
				CreatedAt:   time.Now(),
			})
			if verdict == model.VerdictPass {
				c.Status = model.ContentStatusQualityChecked
				if err := r.contents.Update(ctx, nil, c); err != nil {
					return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
				}
			}
		}
		hint := model.StageMultimedia
		if anyFail {
			hint = model.StageEnhancement
		}
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: planID, NextStageHint: hint}, nil
	}}

	r.execs[model.StageEnhancement] = &fakeExecutor{stage: model.StageEnhancement, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		c, err := r.contents.FindByID(ctx, nil, inputRef)
		if err != nil {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: "content missing"}, nil
		}
		c.Status = model.ContentStatusEnhanced
		c.EnhancementCount++
		if err := r.contents.Update(ctx, nil, c); err != nil {
			return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
		}
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: c.ID, NextStageHint: model.StageQualityCheck}, nil
	}}

	r.execs[model.StageMultimedia] = &fakeExecutor{stage: model.StageMultimedia, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: inputRef, NextStageHint: model.StageFinalizing}, nil
	}}

	r.execs[model.StageFinalizing] = &fakeExecutor{stage: model.StageFinalizing, fn: func(ctx context.Context, jobID, inputRef string) (adapter.StageResult, error) {
		contents, _ := r.contents.ListByPlan(ctx, nil, inputRef)
		for _, c := range contents {
			if c.Status == model.ContentStatusQualityChecked {
				c.Status = model.ContentStatusFinal
				if err := r.contents.Update(ctx, nil, c); err != nil {
					return adapter.StageResult{Status: adapter.StagePermanentFailure, Detail: err.Error()}, nil
				}
			}
		}
		return adapter.StageResult{Status: adapter.StageSuccess, OutputRef: inputRef, NextStageHint: model.StageCompleted}, nil
	}}

	for stage, e := range opts.override {
		e.stage = stage
		r.execs[stage] = e
	}
}

// approveAndResume flips the plan to approved and resumes the parked run.
func (r *rig) approveAndResume(t *testing.T, ctx context.Context, planID string) string {
	t.Helper()
	if err := r.mgr.ApprovePlan(ctx, planID); err != nil {
		t.Fatalf("approve plan: %v", err)
	}
	jobID, err := r.mgr.Resume(ctx, planID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	return jobID
}

// planOf returns the single plan created during a test run.
func (r *rig) planOf(t *testing.T, jobID string) *model.Plan {
	t.Helper()
	job, err := r.jobs.FindByID(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("job %s: %v", jobID, err)
	}
	plan, err := r.plans.FindByID(context.Background(), nil, job.PlanID)
	if err != nil {
		t.Fatalf("plan %s: %v", job.PlanID, err)
	}
	return plan
}

// transitions returns the committed (from,to) pairs for a job in order.
func (r *rig) transitions(t *testing.T, jobID string) [][2]model.Stage {
	t.Helper()
	recs, err := r.handoffs.ListByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("handoffs: %v", err)
	}
	out := make([][2]model.Stage, 0, len(recs))
	for _, rec := range recs {
		out = append(out, [2]model.Stage{rec.FromStage, rec.ToStage})
	}
	return out
}
