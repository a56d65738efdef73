package erpsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Enqueuer schedules a sync on the background worker.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, kind string, actorID int64) (string, error)
}

// Handler exposes manual sync triggers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
	rbac     rbac.Middleware
}

// NewHandler builds Handler. enqueuer may be nil when no worker is configured.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, enqueuer: enqueuer, rbac: rbac}
}

// MountRoutes registers the sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermERPSyncRun))
		r.Post("/{kind}", h.run)
		r.Post("/{kind}/enqueue", h.enqueue)
	})
}

func kindParam(r *http.Request) (string, error) {
	kind := chi.URLParam(r, "kind")
	if kind != KindVendors && kind != KindInvoices {
		return "", fmt.Errorf("%w: unknown sync kind %q", shared.ErrValidation, kind)
	}
	return kind, nil
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.Run(r.Context(), kind)
	if err != nil {
		h.logger.Error("sync failed", slog.String("kind", kind), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Worker Unavailable", "background worker is not configured")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	id, err := h.enqueuer.EnqueueSync(r.Context(), kind, actor.UserID)
	if err != nil {
		h.logger.Error("enqueue sync", slog.String("kind", kind), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": id, "kind": kind})
}
