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

	"github.com/dsarhub/dsarhub/internal/app"
	"github.com/dsarhub/dsarhub/internal/audit"
	"github.com/dsarhub/dsarhub/internal/export"
	"github.com/dsarhub/dsarhub/internal/governance"
	govhttp "github.com/dsarhub/dsarhub/internal/governance/http"
	"github.com/dsarhub/dsarhub/internal/observability"
	"github.com/dsarhub/dsarhub/internal/platform/cache"
	"github.com/dsarhub/dsarhub/internal/platform/db"
	"github.com/dsarhub/dsarhub/internal/runs"
	"github.com/dsarhub/dsarhub/jobs"
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
	metrics := observability.NewMetrics()

	runsRepo := runs.NewPGRepository(pool)
	runsService := runs.NewService(runsRepo, settingsService, limiter, recorder, enqueuer, engine, logger)
	runsHandler := runs.NewHandler(logger, runsService, metrics)

	exportRepo := export.NewPGRepository(pool)
	exportService := export.NewService(exportRepo, settingsService, recorder, logger)
	exportHandler := export.NewHandler(logger, exportService)

	governanceHandler := govhttp.NewHandler(logger, settingsService, recorder)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		RunsHandler:       runsHandler,
		ExportHandler:     exportHandler,
		GovernanceHandler: governanceHandler,
		JobsHandler:       jobsHandler,
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
