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

	"github.com/mizanbank/mizan/internal/accounts"
	"github.com/mizanbank/mizan/internal/app"
	"github.com/mizanbank/mizan/internal/auth"
	"github.com/mizanbank/mizan/internal/authn"
	"github.com/mizanbank/mizan/internal/members"
	"github.com/mizanbank/mizan/internal/observability"
	"github.com/mizanbank/mizan/internal/platform/cache"
	"github.com/mizanbank/mizan/internal/platform/db"
	"github.com/mizanbank/mizan/internal/profile"
	"github.com/mizanbank/mizan/internal/rbac"
	"github.com/mizanbank/mizan/internal/roles"
	"github.com/mizanbank/mizan/internal/session"
	"github.com/mizanbank/mizan/internal/shared"
	"github.com/mizanbank/mizan/internal/users"
	"github.com/mizanbank/mizan/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "mizan_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	provider := authn.NewLocalProvider(authn.NewRepository(dbpool), cfg.AuthSessionTTL)
	profileStore := profile.NewStore(dbpool)
	hub := session.NewHub(provider, provider, profileStore, logger, metrics, session.Config{
		Retry:       cfg.RetryConfig(),
		DecisionTTL: cfg.DecisionCacheTTL,
		IdleTimeout: cfg.IdleTimeout,
	})
	defer hub.Close()

	guard := rbac.Middleware{Source: hub, Logger: logger}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("create job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	jobsHandler := jobs.NewHandler(inspector, logger)

	authHandler := auth.NewHandler(logger, hub, sessionManager, csrfManager, auditLogger)
	usersHandler := users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), jobClient), guard, hub)
	rolesHandler := roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool), nil), guard, hub)
	accountsHandler := accounts.NewHandler(logger, accounts.NewService(accounts.NewRepository(dbpool)), guard)
	membersHandler := members.NewHandler(logger, members.NewService(members.NewRepository(dbpool)), guard)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthHandler:     authHandler,
		UsersHandler:    usersHandler,
		RolesHandler:    rolesHandler,
		AccountsHandler: accountsHandler,
		MembersHandler:  membersHandler,
		JobsHandler:     jobsHandler,
		Guard:           guard,
		Metrics:         metrics,
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
