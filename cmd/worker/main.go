package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/backoffice/internal/app"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/jobs"
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
	if cfg.BackendServiceToken == "" {
		logger.Error("worker needs BACKEND_SERVICE_TOKEN to replay assignments")
		os.Exit(1)
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

	client := backend.NewClient(backend.Options{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
		Token:   cfg.BackendServiceToken,
		Logger:  logger,
	})
	assignJob := jobs.NewAssignRetryJob(
		rbac.NewRepository(client, logger),
		rbac.NewRedisNotifier(redisClient, logger),
		logger,
		jobmetrics.NewMetrics(nil),
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cache.QueueOpts(cfg.RedisAddr),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAssignPermissions, Handler: assignJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
