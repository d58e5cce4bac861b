package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/stockline/stockline/internal/alerts"
	"github.com/stockline/stockline/internal/app"
	"github.com/stockline/stockline/internal/catalog"
	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/observability"
	"github.com/stockline/stockline/internal/platform/cache"
	"github.com/stockline/stockline/internal/platform/db"
	"github.com/stockline/stockline/internal/purchases"
	"github.com/stockline/stockline/internal/sales"
	"github.com/stockline/stockline/internal/shared"
	"github.com/stockline/stockline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	// Redis backs alert fan-out and job visibility. The core sale and
	// receipt paths survive without it, so a failed ping downgrades to a
	// warning instead of refusing to boot.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("connect redis", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() { _ = client.Close() }()
	}

	metrics := observability.NewMetrics()

	var sink ledger.StatusSink
	if redisClient != nil {
		sink = alerts.NewPublisher(redisClient, logger)
	}
	ledgerService := ledger.NewService(ledger.NewRepository(pool), sink, logger, ledger.ServiceConfig{
		MaxRetries: cfg.StockMaxRetries,
		Conflicts:  metrics,
	})

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	allocator := sales.NewInvoiceAllocator(pool)

	catalogService := catalog.NewService(catalog.NewRepository(pool), auditLogger)
	salesService := sales.NewService(sales.NewRepository(pool), ledgerService, allocator, auditLogger, metrics, logger)
	purchasesService := purchases.NewService(purchases.NewRepository(pool), ledgerService, idempotency, auditLogger, metrics, logger)

	catalogHandler := catalog.NewHandler(logger, catalogService)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService, allocator)
	purchasesHandler := purchases.NewHandler(logger, purchasesService)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() { _ = inspector.Close() }()
		jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Error("build jobs client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = jobClient.Close() }()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		LedgerHandler:    ledgerHandler,
		SalesHandler:     salesHandler,
		PurchasesHandler: purchasesHandler,
		JobHandler:       jobHandler,
		Pool:             pool,
		Redis:            redisClient,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("http server stopped")
}
