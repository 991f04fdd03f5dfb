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

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/console"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/platform/backend"
	"github.com/odyssey-erp/backoffice/internal/platform/cache"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
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

	metrics := observability.NewMetrics()
	notifier := rbac.NewRedisNotifier(redisClient, logger)

	manager := console.NewManager(console.ManagerOptions{
		Client: backend.NewClient(backend.Options{
			BaseURL: cfg.BackendURL,
			Timeout: cfg.BackendTimeout,
			Logger:  logger,
		}),
		Notifier: notifier,
		Metrics:  metrics.Catalog(),
		PageSize: cfg.CatalogPageSize,
		MaxPages: cfg.CatalogMaxPages,
		IdleTTL:  cfg.SessionIdleTTL,
		Logger:   logger,
	})
	if err := notifier.Listen(ctx, manager.HandleBump); err != nil {
		logger.Error("subscribe catalog bumps", slog.Any("error", err))
		os.Exit(1)
	}
	go manager.Run(ctx)

	queueOpts := cache.QueueOpts(cfg.RedisAddr)
	jobClient, err := jobs.NewClient(queueOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	rbacMiddleware := rbac.Middleware{Logger: logger}
	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionHandler:     console.NewHandler(logger, manager),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, console.Services, rbacMiddleware, jobClient),
		UsersHandler:       users.NewHandler(logger, console.UserService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		Ready: func(r *http.Request) error {
			return cache.Ping(r.Context(), redisClient)
		},
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
	logger.Info("shutting down", slog.Int("open_sessions", manager.Len()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
