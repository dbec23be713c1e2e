package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"prepline/internal/adapter/repo"
	"prepline/internal/executor"
	"prepline/internal/infra"
	"prepline/internal/orchestrator"
	"prepline/internal/step"
	"prepline/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	store, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	registry := step.NewRegistry()
	if err := step.RegisterBuiltins(registry); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to register steps")
	}

	exec := executor.New(registry, store, logger, executor.Config{
		BatchSize:          cfg.BatchSize,
		BadRecordThreshold: cfg.BadRecordThreshold,
	})

	worker := orchestrator.NewWorker(
		repo.NewJobRepository(runner),
		repo.NewPipelineRepository(pool),
		repo.NewArtifactRepository(pool),
		exec,
		logger,
		orchestrator.WorkerConfig{
			Queues:           cfg.WorkerQueues,
			PoolSize:         cfg.WorkerPoolSize,
			PollInterval:     cfg.PollInterval,
			LeaseDuration:    cfg.LeaseDuration,
			RetryBackoffBase: cfg.RetryBackoffBase,
		},
	)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
