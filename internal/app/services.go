package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/inventory"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/observability"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/orders"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/picking"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/cache"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/db"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/platform/storage"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/production"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shared"
	"github.com/CiaoMoro1/gestionale-backend-sub000/internal/shipments"
)

// Services holds the domain services shared by the API and the worker.
type Services struct {
	Orders     *orders.Service
	Inventory  *inventory.Service
	Picking    *picking.Service
	Production *production.Service
	Engine     *production.Engine
	Shipments  *shipments.Tracker
}

// NewFileStore opens the import file store selected by STORAGE_DRIVER.
func NewFileStore(ctx context.Context, cfg *Config) (storage.FileStore, error) {
	switch cfg.StorageDriver {
	case StorageMinio:
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case StorageLocal:
		store, err := storage.NewLocalStore(cfg.StorageLocalRoot)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.StorageDriver)
	}
}

// BuildServices wires repositories and services over pool and rdb. Every store call goes
// through the retrying decorator.
func BuildServices(cfg *Config, pool *pgxpool.Pool, rdb redis.UniversalClient, files storage.FileStore, metrics *observability.Metrics, logger *slog.Logger) *Services {
	retrier := db.NewRetrier(cfg.StoreRetryAttempts, cfg.StoreRetryBaseDelay)
	store := db.NewRetryingDB(pool, retrier)
	locker := cache.NewLocker(rdb, cfg.LockTTL, logger)
	audit := shared.NewAuditLogger(store)

	ordersRepo := orders.NewRepository(store)
	ordersService := orders.NewService(ordersRepo, files, orders.ServiceConfig{BatchSize: cfg.BatchSize}, logger)

	inventoryService := inventory.NewService(
		inventory.NewRepository(store),
		audit,
		shared.NewIdempotencyStore(store),
		inventory.ServiceConfig{AllowNegativeStock: cfg.LedgerAllowNegative},
		logger,
	)

	productionRepo := production.NewRepository(store)
	engine := production.NewEngine(productionRepo, metrics, production.EngineConfig{BatchSize: cfg.BatchSize}, logger)

	pickingService := picking.NewService(
		picking.NewRepository(store),
		ordersRepo,
		picking.NewInventoryAdapter(inventoryService),
		engine,
		locker,
		metrics,
		picking.ServiceConfig{BatchSize: cfg.BatchSize, Parallelism: cfg.BatchParallelism},
		logger,
	)

	return &Services{
		Orders:     ordersService,
		Inventory:  inventoryService,
		Picking:    pickingService,
		Production: production.NewService(productionRepo, audit, logger),
		Engine:     engine,
		Shipments:  shipments.NewTracker(shipments.NewRepository(store), ordersRepo, locker, audit, logger),
	}
}
