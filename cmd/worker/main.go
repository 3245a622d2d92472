package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/app"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/observability"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/cache"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
	"github.com/CiaoMoro1/gestionale-backend-sub000/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	files, err := app.NewFileStore(ctx, cfg)
	if err != nil {
		logger.Error("init file store", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	services := app.BuildServices(cfg, pool, redisClient, files, metrics, logger)
	processor := jobs.NewProcessor(services.Orders, services.Picking, services.Shipments, logger, metrics.Jobs())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers:    processor.Handlers(),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
