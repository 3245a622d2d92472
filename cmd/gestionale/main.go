package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/app"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/inventory"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/observability"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/picking"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/cache"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/production"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shipments"
	"github.com/CiaoMoro1/gestionale-backend-sub000/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.MigrateOnBoot {
		if err := db.Migrate(pool, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("job inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     orders.NewHandler(logger, services.Orders),
		PickingHandler:    picking.NewHandler(logger, services.Picking),
		ProductionHandler: production.NewHandler(logger, services.Production),
		ShipmentsHandler:  shipments.NewHandler(logger, services.Shipments),
		InventoryHandler:  inventory.NewHandler(logger, services.Inventory),
		JobHandler:        jobs.NewHandler(jobClient, inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
