package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockline/stockline/internal/alerts"
	"github.com/stockline/stockline/internal/app"
	"github.com/stockline/stockline/internal/catalog"
	jobmetrics "github.com/stockline/stockline/internal/jobs"
	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/observability"
	"github.com/stockline/stockline/internal/platform/cache"
	"github.com/stockline/stockline/internal/platform/db"
	"github.com/stockline/stockline/internal/sales"
	"github.com/stockline/stockline/internal/shared"
	"github.com/stockline/stockline/jobs"
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
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	metrics := observability.NewMetrics()
	trackers := jobmetrics.NewMetrics(metrics.Registerer())

	// Zero-delta adjustments from the scan still publish status
	// transitions, so the worker carries the same alert sink as the API.
	ledgerService := ledger.NewService(
		ledger.NewRepository(pool),
		alerts.NewPublisher(redisClient, logger),
		logger,
		ledger.ServiceConfig{MaxRetries: cfg.StockMaxRetries, Conflicts: metrics},
	)

	catalogService := catalog.NewService(catalog.NewRepository(pool), nil)
	salesRepo := sales.NewRepository(pool)

	scanner := jobs.NewLowStockScanner(catalogService, ledgerService, trackers, logger)
	rollup := jobs.NewSalesRollup(salesRepo, redisClient, trackers, logger)
	sweep := jobs.NewIdempotencySweep(shared.NewIdempotencyStore(pool), trackers, logger)

	scanTask, err := jobs.NewLowStockScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}
	rollupTask, err := jobs.NewSalesRollupTask(0)
	if err != nil {
		logger.Error("build rollup task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewIdempotencySweepTask(cfg.IdempotencyRetentionHours)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: scanner.Handle},
			{Type: jobs.TaskSalesRollup, Handler: rollup.Handle},
			{Type: jobs.TaskIdempotencySweep, Handler: sweep.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockScanCron, Task: scanTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
			{Spec: cfg.SalesRollupCron, Task: rollupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencySweepCron, Task: sweepTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
