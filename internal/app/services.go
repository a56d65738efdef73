package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/payables/internal/audit"
	"github.com/odyssey-erp/payables/internal/auth"
	"github.com/odyssey-erp/payables/internal/datamanager"
	"github.com/odyssey-erp/payables/internal/erpsync"
	"github.com/odyssey-erp/payables/internal/invoices"
	"github.com/odyssey-erp/payables/internal/observability"
	"github.com/odyssey-erp/payables/internal/payments"
	"github.com/odyssey-erp/payables/internal/platform/cache"
	"github.com/odyssey-erp/payables/internal/platform/storage"
	"github.com/odyssey-erp/payables/internal/reports"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/internal/users"
	"github.com/odyssey-erp/payables/internal/vendors"
	"github.com/odyssey-erp/payables/report"
)

// Infra holds the process-wide connections services are built on.
type Infra struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Services is the full set of domain services shared by the API server,
// the worker and the operator CLI.
type Services struct {
	Store       storage.Store
	Cache       *cache.Versioned
	Idempotency *shared.IdempotencyStore
	PDF         *report.Client

	Users    *users.Service
	Auth     *auth.Service
	Vendors  *vendors.Service
	Invoices *invoices.Service
	Payments *payments.Service
	Reports  *reports.Service
	Audit    *audit.Service
	ERPSync  *erpsync.Service
	Data     *datamanager.Service
}

// NewServices builds every domain service from cfg and the shared infra.
func NewServices(ctx context.Context, cfg *Config, infra Infra) (*Services, error) {
	logger := infra.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.New(ctx, storage.Config{
		Driver:         cfg.StorageDriver,
		Dir:            cfg.StorageDir,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("app: storage: %w", err)
	}

	company := report.Company{
		Name:    cfg.CompanyName,
		Email:   cfg.CompanyEmail,
		Phone:   cfg.CompanyPhone,
		Address: cfg.CompanyAddress,
	}
	reportCache := cache.NewVersioned(infra.Redis, cfg.ReportCacheTTL)
	auditLogger := shared.NewAuditLogger(infra.Pool)
	idem := shared.NewIdempotencyStore(infra.Pool)
	pdf := report.NewClient(cfg.GotenbergURL)

	usersSvc := users.NewService(users.NewRepository(infra.Pool), auditLogger)
	vendorsSvc := vendors.NewService(vendors.NewRepository(infra.Pool), store, reportCache, logger.With(slog.String("module", "vendors")), cfg.PhoneRegion)

	paymentOpts := []payments.Option{
		payments.WithIdempotency(idem),
		payments.WithCache(reportCache),
		payments.WithLogger(logger.With(slog.String("module", "payments"))),
	}
	syncOpts := []erpsync.Option{
		erpsync.WithCache(reportCache),
		erpsync.WithLogger(logger.With(slog.String("module", "erpsync"))),
		erpsync.WithPhoneNormalizer(vendorsSvc.NormalizePhone),
	}
	if infra.Metrics != nil {
		paymentOpts = append(paymentOpts, payments.WithMetrics(infra.Metrics))
		syncOpts = append(syncOpts, erpsync.WithMetrics(infra.Metrics))
	}

	tally := erpsync.NewClient(cfg.TallyURL, cfg.TallyCompany, cfg.TallyTimeout, &http.Client{})

	return &Services{
		Store:       store,
		Cache:       reportCache,
		Idempotency: idem,
		PDF:         pdf,

		Users:    usersSvc,
		Auth:     auth.NewService(users.NewRepository(infra.Pool), auditLogger),
		Vendors:  vendorsSvc,
		Invoices: invoices.NewService(invoices.NewRepository(infra.Pool), store, reportCache, logger.With(slog.String("module", "invoices"))),
		Payments: payments.NewService(payments.NewRepository(infra.Pool), report.NewAdviceRenderer(store, company), store, paymentOpts...),
		Reports:  reports.NewService(reports.NewRepository(infra.Pool), reportCache, pdf, company, logger.With(slog.String("module", "reports"))),
		Audit:    audit.NewService(audit.NewRepository(infra.Pool)),
		ERPSync:  erpsync.NewService(tally, erpsync.NewRepository(infra.Pool), erpsync.NewRedisLocker(infra.Redis), syncOpts...),
		Data:     datamanager.NewService(datamanager.NewRepository(infra.Pool), reportCache, usersSvc.HashPassword, logger.With(slog.String("module", "datamanager"))),
	}, nil
}
