package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/odyssey-erp/payables/internal/audit/http"
	"github.com/odyssey-erp/payables/internal/auth"
	"github.com/odyssey-erp/payables/internal/datamanager"
	"github.com/odyssey-erp/payables/internal/erpsync"
	"github.com/odyssey-erp/payables/internal/invoices"
	"github.com/odyssey-erp/payables/internal/observability"
	"github.com/odyssey-erp/payables/internal/payments"
	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/reports"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/internal/users"
	"github.com/odyssey-erp/payables/internal/vendors"
	"github.com/odyssey-erp/payables/jobs"
)

// HealthCheck probes one backing service for /readyz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Actors         ActorResolver
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	HealthChecks   []HealthCheck

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	PermissionsHandler *rbac.PermissionsHandler
	VendorsHandler     *vendors.Handler
	InvoicesHandler    *invoices.Handler
	PaymentsHandler    *payments.Handler
	ReportsHandler     *reports.Handler
	AuditHandler       *audithttp.Handler
	ERPSyncHandler     *erpsync.Handler
	DataHandler        *datamanager.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router serving the payables API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Actors:         params.Actors,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Logger, params.HealthChecks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireAuth)

			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.VendorsHandler != nil {
				r.Route("/vendors", params.VendorsHandler.MountRoutes)
			}
			if params.InvoicesHandler != nil {
				r.Route("/invoices", params.InvoicesHandler.MountRoutes)
			}
			if params.PaymentsHandler != nil {
				r.Route("/payments", params.PaymentsHandler.MountRoutes)
			}
			if params.ReportsHandler != nil {
				r.Route("/dashboard", params.ReportsHandler.MountDashboard)
				r.Route("/reports", params.ReportsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.ERPSyncHandler != nil {
				r.Route("/sync", params.ERPSyncHandler.MountRoutes)
			}
			if params.DataHandler != nil {
				r.Route("/data", params.DataHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.With(params.RBACMiddleware.RequireAny(shared.PermERPSyncRun, shared.PermDataManage)).
					Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func readinessHandler(logger *slog.Logger, checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		out := readiness{Status: "ok", Checks: make(map[string]string, len(checks))}
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			if err := c.Check(ctx); err != nil {
				if logger != nil {
					logger.Warn("readiness check failed", slog.String("check", c.Name), slog.Any("error", err))
				}
				out.Status = "degraded"
				out.Checks[c.Name] = err.Error()
				continue
			}
			out.Checks[c.Name] = "ok"
		}
		status := http.StatusOK
		if out.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, out)
	}
}
