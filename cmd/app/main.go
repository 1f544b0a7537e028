// File: cmd/app/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"video-batch-orchestrator/internal/config"
	"video-batch-orchestrator/internal/domain/ports/adapter"
	"video-batch-orchestrator/internal/infra/adapters/caption"
	"video-batch-orchestrator/internal/infra/adapters/generation"
	"video-batch-orchestrator/internal/infra/adapters/resolver"
	"video-batch-orchestrator/internal/infra/adapters/storage"
	tele "video-batch-orchestrator/internal/infra/adapters/telegram"
	pg "video-batch-orchestrator/internal/infra/db/postgres"
	"video-batch-orchestrator/internal/infra/logging"
	"video-batch-orchestrator/internal/infra/metrics"
	"video-batch-orchestrator/internal/infra/ratelimit"
	red "video-batch-orchestrator/internal/infra/redis"
	"video-batch-orchestrator/internal/infra/sched"
	"video-batch-orchestrator/internal/infra/web"
	"video-batch-orchestrator/internal/infra/worker"
	"video-batch-orchestrator/internal/usecase"
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
		logger.Info().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	sourceCache := red.NewSourceCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	batchRepo := pg.NewBatchRepo(pool)
	imageRepo := pg.NewImageRepo(pool)
	profileRepo := pg.NewModelProfileRepo(pool)

	// ---- External adapters ----
	blobStore, err := storage.NewHTTPStore(cfg.Storage.APIKey, cfg.Storage.BaseURL, cfg.Storage.Bucket, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage adapter")
	}

	limiter := ratelimit.New(cfg.Resolver.RatePerSec, cfg.Resolver.Burst)
	resolverClient, err := resolver.NewHTTPClient(cfg.Resolver.APIKey, cfg.Resolver.BaseURL, limiter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolver adapter")
	}

	// The queue backend also hosts the trim and edit endpoints, so it is
	// constructed regardless of which backend generates video.
	queueBackend, err := generation.NewQueueBackend(cfg.Generation.APIKey, cfg.Generation.BaseURL, cfg.Generation.PollInterval, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("queue backend")
	}

	var backend adapter.GenerationBackend
	switch cfg.Generation.Backend {
	case "veo":
		backend, err = generation.NewVeoBackend(ctx, cfg.Generation.APIKey, "", cfg.Generation.Endpoint, cfg.Generation.PollInterval, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("veo backend")
		}
		logger.Info().Str("model", cfg.Generation.Endpoint).Msg("generation backend: veo")
	default:
		backend = queueBackend
		logger.Info().Str("endpoint", cfg.Generation.Endpoint).Msg("generation backend: queue")
	}

	var publisher adapter.Publisher
	if cfg.Publisher.TelegramToken != "" {
		publisher, err = tele.NewChannelPublisher(cfg.Publisher.TelegramToken, cfg.Publisher.ChannelID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram publisher")
		}
	} else {
		logger.Warn().Msg("publisher.telegram_token not set; approvals will fail to post")
	}

	var captionWriter adapter.CaptionWriter
	if cfg.Captions.OpenAIKey != "" {
		captionWriter, err = caption.NewOpenAIWriter(cfg.Captions.OpenAIKey, cfg.Captions.BaseURL, cfg.Captions.Model, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("caption writer")
		}
	}

	// ---- Use cases ----
	resolverUC := usecase.NewSourceResolverUseCase(jobRepo, sourceCache, resolverClient, blobStore, queueBackend, usecase.DefaultRetryPolicy(), logger)
	progress := usecase.NewProgressTracker(jobRepo, batchRepo, logger)
	executor := usecase.NewJobExecutor(jobRepo, imageRepo, resolverUC, backend, blobStore, progress, cfg.Generation.Endpoint, cfg.Resolver.MaxSeconds, logger)
	runner := usecase.NewPipelineRunner(jobRepo, executor, queueBackend, blobStore, progress, logger)
	batchUC := usecase.NewBatchProcessor(batchRepo, jobRepo, imageRepo, profileRepo, tm, executor, runner, progress, logger)
	reviewUC := usecase.NewReviewUseCase(jobRepo, batchRepo, locker, publisher, captionWriter, logger)

	// ---- Recovery ----
	resumePool := worker.NewPool(cfg.Sweep.Workers, logger)
	resumePool.Start(ctx)
	defer resumePool.Stop()

	recovery := sched.NewRecoveryWorker(cfg.Sweep.Interval, cfg.Sweep.StuckAfter, jobRepo, executor, resumePool, logger)
	go func() { _ = recovery.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, cfg.Web.AdminUser, cfg.Web.AdminPassword, !cfg.Runtime.Dev, 0)
	server := web.NewServer(batchUC, reviewUC, executor, jobRepo, batchRepo, auth, logger)
	go func() {
		if err := server.Run(ctx, cfg.Web.Port); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
}
