package main

import (
	"context"
	"log"
	"time"

	"coursegen-pipeline/internal/config"
	aiAdapters "coursegen-pipeline/internal/infra/adapters/ai"
	"coursegen-pipeline/internal/infra/adapters/media"
	"coursegen-pipeline/internal/infra/adapters/notify"
	"coursegen-pipeline/internal/infra/adapters/stage"
	pg "coursegen-pipeline/internal/infra/db/postgres"
	"coursegen-pipeline/internal/infra/logging"
	"coursegen-pipeline/internal/usecase"

	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
)

// Walks one full_module run end to end against the configured database, with
// the deterministic noop model in place of a real provider.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	jobRepo := pg.NewJobRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	researchRepo := pg.NewResearchRepo(pool)
	contentRepo := pg.NewContentRepo(pool, nil)
	assessmentRepo := pg.NewAssessmentRepo(pool)
	handoffRepo := pg.NewHandoffRepo(pool)
	tm := pg.NewTxManager(pool)

	aiSvc := aiAdapters.NewNoopAIAdapter()
	renderer, err := media.NewLocalRenderer("assets", logger)
	if err != nil {
		log.Fatalf("renderer: %v", err)
	}

	sup := usecase.NewRetrySupervisor(usecase.RetryPolicy{}, nil, logger)
	gate := usecase.NewQualityGate(planRepo, contentRepo, assessmentRepo, usecase.QualityGateConfig{}, nil, logger)
	executors := []adapter.StageExecutor{
		stage.NewPlanningExecutor(jobRepo, planRepo, aiSvc, "noop-model", logger),
		stage.NewResearchExecutor(planRepo, researchRepo, aiSvc, "noop-model", 2, logger),
		stage.NewContentExecutor(jobRepo, planRepo, researchRepo, contentRepo, aiSvc, "noop-model", logger),
		stage.NewQualityExecutor(planRepo, contentRepo, assessmentRepo, aiSvc, "noop-model", 0.75, nil, logger),
		stage.NewEnhancementExecutor(planRepo, contentRepo, assessmentRepo, aiSvc, "noop-model", logger),
		stage.NewMultimediaExecutor(planRepo, contentRepo, renderer, logger),
		stage.NewFinalizeExecutor(planRepo, contentRepo, logger),
	}
	router := usecase.NewHandoffRouter(jobRepo, planRepo, handoffRepo, tm, executors, sup, gate,
		true, nil, nil, logger)

	// No dispatcher: the drive loop runs inline so the demo is sequential.
	runs := usecase.NewRunManager(jobRepo, planRepo, handoffRepo, router, nil, nil, nil,
		notify.NewNoopNotifier(logger), logger)

	jobID, err := runs.Start(ctx, "emp-demo", "co-demo", "mgr-demo", model.ModeFull)
	if err != nil {
		log.Fatalf("start run: %v", err)
	}
	job, err := runs.Status(ctx, jobID)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	log.Printf("run parked: job=%s stage=%s plan=%s", job.ID, job.CurrentStage, job.PlanID)

	// The gate is a human step in production; the demo approves directly.
	if err := runs.ApprovePlan(ctx, job.PlanID); err != nil {
		log.Fatalf("approve plan: %v", err)
	}
	if _, err := runs.Resume(ctx, job.PlanID); err != nil {
		log.Fatalf("resume: %v", err)
	}

	job, err = runs.Status(ctx, jobID)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	log.Printf("run finished: status=%s stage=%s", job.Status, job.CurrentStage)

	trail, err := handoffRepo.ListByJob(ctx, nil, jobID)
	if err != nil {
		log.Fatalf("handoffs: %v", err)
	}
	for _, rec := range trail {
		log.Printf("  %s -> %s (ref=%s)", rec.FromStage, rec.ToStage, rec.PayloadRef)
	}

	contents, err := contentRepo.ListByPlan(ctx, nil, job.PlanID)
	if err != nil {
		log.Fatalf("contents: %v", err)
	}
	for _, c := range contents {
		log.Printf("  module %d: %s (%d words)", c.ModuleIndex, c.Status, c.TotalWords())
	}
}
