package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
)

func countEdges(transitions [][2]model.Stage, from, to model.Stage) int {
	n := 0
	for _, pair := range transitions {
		if pair[0] == from && pair[1] == to {
			n++
		}
	}
	return n
}

func TestQualityPassRoutesToMultimedia(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newRig(t, defaultOpts()) // default script passes every module

	jobID, err := r.mgr.Start(ctx, "E1", "C1", "A1", model.ModeFull)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	plan := r.planOf(t, jobID)
	r.approveAndResume(t, ctx, plan.ID)

	got := r.transitions(t, jobID)
	if countEdges(got, model.StageQualityCheck, model.StageMultimedia) != 1 {
		t.Fatalf("passing gate must route to multimedia exactly once, transitions: %v", got)
	}
	if countEdges(got, model.StageQualityCheck, model.StageEnhancement) != 0 {
		t.Fatalf("passing gate must never trigger enhancement, transitions: %v", got)
	}

	// One assessment row per module, none overwritten.
	contents, _ := r.contents.ListByPlan(ctx, nil, plan.ID)
	for _, c := range contents {
		rows, _ := r.assessments.ListByContent(ctx, nil, c.ID)
		if len(rows) != 1 {
			t.Errorf("module %d has %d assessments, want 1", c.ModuleIndex, len(rows))
		}
	}
}

func TestQualityFailTriggersEnhancementLoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := defaultOpts()
	opts.qualityScores = map[int][]float64{0: {0.5, 0.9}} // fail once, then pass
	r := newRig(t, opts)

	jobID, err := r.mgr.Start(ctx, "E1", "C1", "A1", model.ModeFull)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	plan := r.planOf(t, jobID)
	r.approveAndResume(t, ctx, plan.ID)

	job, _ := r.mgr.Status(ctx, jobID)
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (error=%q)", job.Status, job.Error)
	}

	got := r.transitions(t, jobID)
	if countEdges(got, model.StageQualityCheck, model.StageEnhancement) != 1 {
		t.Fatalf("one failing score must trigger exactly one enhancement, transitions: %v", got)
	}
	if countEdges(got, model.StageEnhancement, model.StageQualityCheck) != 1 {
		t.Fatalf("enhancement must loop back to re-evaluation, transitions: %v", got)
	}
	assertLegalTransitions(t, r, jobID)

	contents, _ := r.contents.ListByPlan(ctx, nil, plan.ID)
	for _, c := range contents {
		if c.ModuleIndex != 0 {
			continue
		}
		if c.EnhancementCount != 1 {
			t.Errorf("module 0 enhanced %d times, want 1", c.EnhancementCount)
		}
		rows, _ := r.assessments.ListByContent(ctx, nil, c.ID)
		if len(rows) != 2 {
			t.Errorf("module 0 has %d assessment rows, want 2 (history preserved)", len(rows))
		}
	}
}

func TestEnhancementBudgetExhaustedContinues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := defaultOpts()
	// Module 1 is optional in the scripted plan; it never passes.
	opts.qualityScores = map[int][]float64{1: {0.4, 0.4, 0.4, 0.4}}
	r := newRig(t, opts)

	jobID, err := r.mgr.Start(ctx, "E1", "C1", "A1", model.ModeFull)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	plan := r.planOf(t, jobID)
	r.approveAndResume(t, ctx, plan.ID)

	job, _ := r.mgr.Status(ctx, jobID)
	if job.Status != model.JobStatusCompleted {
		t.Fatalf("continue policy should complete the run, got %s (error=%q)", job.Status, job.Error)
	}

	got := r.transitions(t, jobID)
	if n := countEdges(got, model.StageQualityCheck, model.StageEnhancement); n != 3 {
		t.Fatalf("enhancement attempts = %d, want the configured cap of 3", n)
	}
	assertLegalTransitions(t, r, jobID)

	contents, _ := r.contents.ListByPlan(ctx, nil, plan.ID)
	for _, c := range contents {
		if c.ModuleIndex == 1 && !c.NeedsManualReview {
			t.Error("exhausted module must be flagged needs_manual_review")
		}
		if c.ModuleIndex == 0 && c.NeedsManualReview {
			t.Error("passing module must not be flagged")
		}
	}
}

func TestEnhancementBudgetExhaustedFailsMandatoryModule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := defaultOpts()
	opts.gateCfg = QualityGateConfig{MaxEnhancements: 2, Policy: ExhaustFail}
	// Module 0 is mandatory in the scripted plan; it never passes.
	opts.qualityScores = map[int][]float64{0: {0.3, 0.3, 0.3}}
	r := newRig(t, opts)

	jobID, err := r.mgr.Start(ctx, "E1", "C1", "A1", model.ModeFull)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	plan := r.planOf(t, jobID)
	if err := r.mgr.ApprovePlan(ctx, plan.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := r.mgr.Resume(ctx, plan.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	job, _ := r.mgr.Status(ctx, jobID)
	if job.Status != model.JobStatusFailed {
		t.Fatalf("fail policy on a mandatory module must fail the job, got %s", job.Status)
	}
	if job.Error == "" {
		t.Fatal("quality gate failure must record a cause")
	}
	assertLegalTransitions(t, r, jobID)
}

func TestGateRequiresModuleContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	plans := newMemPlanRepo()
	contents := newMemContentRepo()
	assessments := newMemAssessmentRepo()
	logger := zerolog.Nop()
	gate := NewQualityGate(plans, contents, assessments, QualityGateConfig{}, nil, &logger)

	_, err := gate.Decide(ctx, "plan-without-content", model.NewRouteTable(model.ModeFull, true))
	if !errors.Is(err, domain.ErrFatalPipeline) {
		t.Fatalf("gate with no content: want ErrFatalPipeline, got %v", err)
	}
}
