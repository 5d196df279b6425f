package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coursegen-pipeline/internal/config"
	"coursegen-pipeline/internal/domain/ports/adapter"
	aiAdapters "coursegen-pipeline/internal/infra/adapters/ai"
	"coursegen-pipeline/internal/infra/adapters/media"
	"coursegen-pipeline/internal/infra/adapters/notify"
	"coursegen-pipeline/internal/infra/adapters/stage"
	pg "coursegen-pipeline/internal/infra/db/postgres"
	"coursegen-pipeline/internal/infra/logging"
	"coursegen-pipeline/internal/infra/metrics"
	red "coursegen-pipeline/internal/infra/redis"
	"coursegen-pipeline/internal/infra/security"
	"coursegen-pipeline/internal/infra/web"
	"coursegen-pipeline/internal/infra/worker"
	"coursegen-pipeline/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	statusCache := red.NewStatusCache(redisClient, cfg.Redis.StatusTTL)

	// ---- Encryption (content at rest) ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes, using dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	researchRepo := pg.NewResearchRepo(pool)
	contentRepo := pg.NewContentRepo(pool, encSvc)
	assessmentRepo := pg.NewAssessmentRepo(pool)
	handoffRepo := pg.NewHandoffRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- AI providers ----
	byProvider := map[string]adapter.AIServiceAdapter{}
	defaultProvider := ""
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		byProvider["openai"] = oa
		defaultProvider = "openai"
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.DefaultModel, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		byProvider["gemini"] = ga
		if defaultProvider == "" {
			defaultProvider = "gemini"
		}
	}
	if len(byProvider) == 0 {
		logger.Fatal().Msg("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}
	aiSvc := aiAdapters.NewLimitedAI(
		aiAdapters.NewMultiAIAdapter(defaultProvider, byProvider, nil),
		cfg.AI.ConcurrentLimit,
	)
	researchModel := cfg.AI.ResearchModel
	if researchModel == "" {
		researchModel = cfg.AI.DefaultModel
	}

	// ---- Pipeline ----
	observer := metrics.Observer{}
	sup := usecase.NewRetrySupervisor(usecase.RetryPolicy{
		MaxAttempts: cfg.Pipeline.MaxRetries,
		BaseBackoff: cfg.Pipeline.RetryBackoff,
		MaxBackoff:  cfg.Pipeline.MaxRetryBackoff,
	}, observer, logger)
	gate := usecase.NewQualityGate(planRepo, contentRepo, assessmentRepo, usecase.QualityGateConfig{
		MaxEnhancements: cfg.Pipeline.MaxEnhancements,
		Policy:          usecase.ExhaustionPolicy(cfg.Pipeline.OnQualityExhausted),
	}, observer, logger)

	renderer, err := media.NewLocalRenderer("assets", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("media renderer")
	}

	executors := []adapter.StageExecutor{
		stage.NewPlanningExecutor(jobRepo, planRepo, aiSvc, cfg.AI.DefaultModel, logger),
		stage.NewResearchExecutor(planRepo, researchRepo, aiSvc, researchModel, cfg.Pipeline.ResearchQueries, logger),
		stage.NewContentExecutor(jobRepo, planRepo, researchRepo, contentRepo, aiSvc, cfg.AI.DefaultModel, logger),
		stage.NewQualityExecutor(planRepo, contentRepo, assessmentRepo, aiSvc, cfg.AI.DefaultModel, cfg.Pipeline.QualityThreshold, cfg.Pipeline.QualityWeights, logger),
		stage.NewEnhancementExecutor(planRepo, contentRepo, assessmentRepo, aiSvc, cfg.AI.DefaultModel, logger),
		stage.NewMultimediaExecutor(planRepo, contentRepo, renderer, logger),
		stage.NewFinalizeExecutor(planRepo, contentRepo, logger),
	}
	router := usecase.NewHandoffRouter(jobRepo, planRepo, handoffRepo, tm, executors, sup, gate,
		cfg.Pipeline.Multimedia, observer, statusCache, logger)

	// ---- Dispatcher ----
	dispatch := worker.NewPool(cfg.Pipeline.Workers, logger)
	dispatch.Start(ctx)
	defer dispatch.Stop()

	// ---- Notifier ----
	var notifier adapter.RunNotifier
	if cfg.Notify.TelegramToken != "" {
		notifier, err = notify.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatIDs, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
	} else {
		notifier = notify.NewNoopNotifier(logger)
	}

	runMgr := usecase.NewRunManager(jobRepo, planRepo, handoffRepo, router, locker, statusCache, dispatch, notifier, logger)

	// ---- Stale-run resumption ----
	resumeRunner := worker.NewResumeRunner(cfg.Pipeline.ResumeInterval, cfg.Pipeline.StaleAfter, jobRepo, runMgr, logger)
	go func() { _ = resumeRunner.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Server.APIKey, cfg.Server.JWTSecret, 30*time.Minute)
	srv := web.NewServer(runMgr, planRepo, contentRepo, handoffRepo, auth, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
