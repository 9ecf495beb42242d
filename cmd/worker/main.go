package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dsarhub/dsarhub/internal/app"
	"github.com/dsarhub/dsarhub/internal/audit"
	"github.com/dsarhub/dsarhub/internal/governance"
	"github.com/dsarhub/dsarhub/internal/platform/cache"
	"github.com/dsarhub/dsarhub/internal/platform/db"
	"github.com/dsarhub/dsarhub/internal/runs"
	"github.com/dsarhub/dsarhub/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	recorder := audit.NewRecorder(pool, logger)

	settingsRepo := governance.NewPGSettingsRepository(pool)
	settingsService := governance.NewSettingsService(settingsRepo, redisClient, cfg.SettingsCacheTTL, logger)
	limiter := governance.NewRateLimiter(redisClient)

	enqueuer, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	engine := runs.NewEngineClient(cfg.DiscoveryEngineURL)

	runsRepo := runs.NewPGRepository(pool)
	runsService := runs.NewService(runsRepo, settingsService, limiter, recorder, enqueuer, engine, logger)

	runJob := jobs.NewRunExecuteJob(runsService, logger, nil)
	cleanupJob := jobs.NewRetentionCleanupJob(pool, settingsService, recorder, logger, nil)

	cleanupTask, err := jobs.NewRetentionCleanupTask(jobs.RetentionCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeRunExecute, Handler: runJob.Handle},
			{Type: jobs.TaskTypeRetentionCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RetentionCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
