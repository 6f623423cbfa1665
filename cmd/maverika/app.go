package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/maverika/maverika/internal/application/communication"
	"github.com/maverika/maverika/internal/application/dispatcher"
	appEVE "github.com/maverika/maverika/internal/application/eve"
	"github.com/maverika/maverika/internal/application/orchestrator"
	"github.com/maverika/maverika/internal/config"
	"github.com/maverika/maverika/internal/domain/eve"
	"github.com/maverika/maverika/internal/domain/message"
	"github.com/maverika/maverika/internal/domain/task"
	"github.com/maverika/maverika/internal/infrastructure/memory"
	"github.com/maverika/maverika/internal/infrastructure/postgres"
	"github.com/maverika/maverika/internal/infrastructure/pubsub"
	"github.com/maverika/maverika/internal/infrastructure/storage"
	"github.com/maverika/maverika/internal/migrations"
)

// app is the process-wide object graph, built once at startup.
type app struct {
	pool       *pgxpool.Pool
	hub        *pubsub.Hub
	registry   *prometheus.Registry
	comm       *communication.Service
	orch       *orchestrator.Orchestrator
	eves       *appEVE.Service
	dispatcher *dispatcher.Dispatcher
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	var (
		taskRepo task.Repository
		eveRepo  eve.Repository
		msgRepo  message.Repository
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		a.pool = pool
		if err := migrate(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, err
		}
		taskRepo = postgres.NewTaskRepository(pool)
		eveRepo = postgres.NewEVERepository(pool)
		msgRepo = postgres.NewMessageRepository(pool)
	default:
		taskRepo = memory.NewTaskRepository()
		eveRepo = memory.NewEVERepository()
		msgRepo = memory.NewMessageRepository()
	}
	logger.Info().Str("backend", cfg.StorageBackend).Msg("storage ready")

	blobs, err := newBlobStorage(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.hub = pubsub.NewHub(pubsub.DefaultBufferSize, logger)
	a.comm = communication.NewService(msgRepo, a.hub, logger)
	a.orch = orchestrator.NewOrchestrator(taskRepo, eveRepo, a.comm, logger).
		WithStrategy(orchestrator.StrategyByName(cfg.DistributionStrategy))
	a.eves = appEVE.NewService(eveRepo, taskRepo, a.orch, a.comm, appEVE.NewBlobKnowledgeBase(blobs), logger)
	a.dispatcher = dispatcher.New(
		taskRepo,
		a.orch,
		&dispatcher.SimulatedExecutor{Delay: cfg.SimulatedExecutionDelay},
		dispatcher.NewMetrics(a.registry),
		cfg.DispatchInterval,
		logger,
	)
	return a, nil
}

func (a *app) close() {
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func newBlobStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.BlobConfig.Kind == config.BlobS3 {
		s, err := storage.NewS3(ctx, cfg.BlobConfig.S3Bucket, cfg.BlobConfig.S3Prefix, cfg.BlobConfig.S3Region)
		if err != nil {
			return nil, fmt.Errorf("blob storage error: %w", err)
		}
		return s, nil
	}
	s, err := storage.NewLocal(cfg.BlobConfig.Dir)
	if err != nil {
		return nil, fmt.Errorf("blob storage error: %w", err)
	}
	return s, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	var fsys fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		fsys = os.DirFS(cfg.MigrationsDir)
	}
	if err := postgres.RunMigrations(ctx, pool, fsys); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
