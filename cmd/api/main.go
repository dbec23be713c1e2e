package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"prepline/internal/adapter/repo"
	"prepline/internal/export"
	"prepline/internal/http/handlers"
	"prepline/internal/http/httpapi"
	"prepline/internal/infra"
	"prepline/internal/orchestrator"
	"prepline/internal/pipeline"
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

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
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
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	registry := step.NewRegistry()
	if err := step.RegisterBuiltins(registry); err != nil {
		logger.Fatal().Err(err).Msg("api: failed to register steps")
	}

	artifacts := repo.NewArtifactRepository(pool)
	pipelines := repo.NewPipelineRepository(pool)
	jobs := repo.NewJobRepository(runner)
	exports := repo.NewExportRepository(pool)

	app := &handlers.App{
		Artifacts:       artifacts,
		Pipelines:       pipelines,
		Jobs:            orchestrator.NewService(jobs, pipelines, artifacts, logger, cfg.MaxAttempts),
		Exports:         export.New(jobs, artifacts, exports, store, logger),
		Builder:         pipeline.NewBuilder(registry),
		Registry:        registry,
		Store:           store,
		Logger:          logger,
		SampleSizeBytes: cfg.SampleSizeBytes,
		MaxUploadBytes:  512 << 20,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}
