package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/paydesk/paydesk/internal/app"
	jobmetrics "github.com/paydesk/paydesk/internal/jobs"
	"github.com/paydesk/paydesk/internal/ledger"
	"github.com/paydesk/paydesk/internal/platform/cache"
	"github.com/paydesk/paydesk/internal/platform/db"
	"github.com/paydesk/paydesk/internal/shared"
	"github.com/paydesk/paydesk/jobs"
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

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("connect redis", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	var outstandingCache *ledger.OutstandingCache
	if redisClient != nil {
		outstandingCache = ledger.NewOutstandingCache(redisClient, cfg.CacheTTL)
	}

	repo := ledger.NewRepository(pool)
	cheques := ledger.NewChequeService(repo, auditLogger, logger)
	transactions := ledger.NewBankTransactionService(repo, logger)
	engine := ledger.NewMatchingEngine(repo, auditLogger, outstandingCache, logger)

	metrics := jobmetrics.NewMetrics(nil)
	importJob := jobs.NewStatementImportJob(transactions, cheques, engine, idempotency, logger, metrics)
	reconcileJob := jobs.NewAutoReconcileJob(engine, logger, metrics)

	nightlyTask, err := jobs.NewAutoReconcileTask(jobs.AutoReconcilePayload{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeStatementImport, Handler: importJob.Handle},
			{Type: jobs.TaskTypeAutoReconcile, Handler: reconcileJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: nightlyTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueLedger)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
