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

	"github.com/odyssey-erp/payables/internal/app"
	audithttp "github.com/odyssey-erp/payables/internal/audit/http"
	"github.com/odyssey-erp/payables/internal/auth"
	"github.com/odyssey-erp/payables/internal/datamanager"
	"github.com/odyssey-erp/payables/internal/erpsync"
	"github.com/odyssey-erp/payables/internal/invoices"
	"github.com/odyssey-erp/payables/internal/observability"
	"github.com/odyssey-erp/payables/internal/payments"
	"github.com/odyssey-erp/payables/internal/platform/cache"
	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/reports"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/internal/users"
	"github.com/odyssey-erp/payables/internal/vendors"
	"github.com/odyssey-erp/payables/jobs"
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

	pool, err := db.New(ctx, cfg.Pool("api"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool, logger); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.Redis())
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
	svc, err := app.NewServices(ctx, cfg, app.Infra{Pool: pool, Redis: redisClient, Logger: logger, Metrics: metrics})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	svc.Cache.ListenForInvalidation(ctx)

	sessionManager := shared.NewSessionManager(redisClient, "payables_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	redisOpts := cfg.Queue()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Actors:         svc.Auth,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		HealthChecks: []app.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
			{Name: "gotenberg", Check: svc.PDF.Ping},
		},

		AuthHandler:        auth.NewHandler(logger, svc.Auth, sessionManager, csrfManager),
		UsersHandler:       users.NewHandler(logger, svc.Users, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		VendorsHandler:     vendors.NewHandler(logger, svc.Vendors, rbacMiddleware),
		InvoicesHandler:    invoices.NewHandler(logger, svc.Invoices, rbacMiddleware),
		PaymentsHandler:    payments.NewHandler(logger, svc.Payments, rbacMiddleware),
		ReportsHandler:     reports.NewHandler(logger, svc.Reports, rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, svc.Audit, rbacMiddleware),
		ERPSyncHandler:     erpsync.NewHandler(logger, svc.ERPSync, jobClient, rbacMiddleware),
		DataHandler:        datamanager.NewHandler(logger, svc.Data, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
