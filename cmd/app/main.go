package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediavault/internal/config"
	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/infra/ai"
	"mediavault/internal/infra/cancel"
	pg "mediavault/internal/infra/db/postgres"
	"mediavault/internal/infra/downloaders"
	"mediavault/internal/infra/logging"
	"mediavault/internal/infra/metrics"
	"mediavault/internal/infra/progress"
	"mediavault/internal/infra/push"
	"mediavault/internal/infra/quota"
	red "mediavault/internal/infra/redis"
	"mediavault/internal/infra/sched"
	"mediavault/internal/infra/storage"
	"mediavault/internal/infra/web"
	"mediavault/internal/infra/worker"
	"mediavault/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting mediavault")

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	dailyCounter := red.NewDailyCounter(redisClient, "captions:dispatched")

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	mediaRepo := pg.NewMediaItemRepo(pool, tm)
	captionRepo := pg.NewCaptionJobRepo(pool, tm)

	// ---- Progress + cancellation ----
	var pushChannel adapter.PushChannel = push.NewRedisPush(redisClient)
	if cfg.Runtime.Dev {
		pushChannel = push.NewNoopPush()
		logger.Warn().Msg("dev mode: push events disabled")
	}
	broadcaster := progress.NewBroadcaster(pushChannel, logger)
	cancelRegistry := cancel.NewRegistry()

	// ---- Storage + downloaders ----
	uploader := storage.NewUploader(cfg.Storage, logger)

	registry := downloaders.NewRegistry()
	registry.Register(model.PlatformYouTube, downloaders.NewYtDlp(cfg.Download, model.PlatformYouTube, logger))
	minAudio := cfg.Download.MinAudioKiB * 1024
	registry.Register(model.PlatformSoundCloud, downloaders.NewValidating(
		downloaders.NewYtDlp(cfg.Download, model.PlatformSoundCloud, logger),
		downloaders.NewDirect(cfg.Download),
		minAudio,
		logger,
	))
	registry.Register(model.PlatformDirect, downloaders.NewDirect(cfg.Download))

	// ---- AI adapters ----
	var metadataGen adapter.MetadataGenerator
	if cfg.AI.GeminiKey != "" {
		metadataGen, err = ai.NewGeminiMetadataGenerator(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.MetadataModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter failed")
		}
		logger.Info().Str("model", cfg.AI.MetadataModel).Msg("metadata generation enabled")
	} else {
		logger.Warn().Msg("ai.gemini_key not set; metadata generation disabled")
	}

	transcriber, err := ai.NewWhisperTranscriber(cfg.AI.WhisperKey, cfg.AI.WhisperURL, cfg.AI.WhisperModel, cfg.AI.CallTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("whisper adapter failed")
	}

	// ---- Use cases ----
	quotaSvc := quota.NewDBQuota(mediaRepo, cfg.Ingest.QuotaLimitMiB*1024*1024)
	captionUC := usecase.NewCaptionUseCase(captionRepo, mediaRepo, tm, usecase.CaptionConfig{
		JobsPerMinute:     cfg.Captions.JobsPerMinute,
		MaxAttempts:       cfg.Captions.MaxAttempts,
		AvgProcessingMins: cfg.Captions.AvgProcessingMins,
	}, logger)

	batchPool := worker.NewPool(cfg.Ingest.BatchFanout, logger)
	batchPool.Start(ctx)
	defer batchPool.Stop()

	reporterFactory := func(userID, jobID string) usecase.ProgressReporter {
		return progress.NewStageReporter(broadcaster, userID, jobID)
	}
	ingestUC := usecase.NewIngestionUseCase(
		mediaRepo, registry, uploader, metadataGen, quotaSvc, captionUC,
		cancelRegistry, reporterFactory, batchPool, logger,
	)

	// ---- Caption worker ----
	captionWorker := sched.NewCaptionWorker(cfg.Captions, captionRepo, mediaRepo, transcriber, dailyCounter, pushChannel, logger)
	go func() { _ = captionWorker.Run(ctx) }()

	// ---- HTTP server ----
	srv := web.NewServer(ingestUC, captionUC, cfg.Web.APIKey, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Captions.ShutdownGrace)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancelCtx()
}
