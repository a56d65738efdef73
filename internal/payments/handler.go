package payments

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Handler exposes payment request endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsView))
		r.Get("/requests", h.listRequests)
		r.Get("/requests/{id}", h.showRequest)
		r.Get("/advices", h.listAdvices)
		r.Get("/advices/{id}/file", h.downloadAdvice)
	})
	r.With(h.rbac.RequireAll(shared.PermPaymentsRequest)).Post("/requests", h.createRequest)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentsApprove))
		r.Get("/approvals", h.listApprovals)
		r.Post("/requests/{id}/approve", h.approve)
		r.Post("/requests/{id}/reject", h.reject)
	})
	r.With(h.rbac.RequireAll(shared.PermPaymentsAdvice)).Post("/requests/{id}/advice", h.generateAdvice)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	list, err := h.service.List(r.Context(), actor, ListFilter{Status: r.URL.Query().Get("status")})
	if err != nil {
		h.fail(w, "list payment requests failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (h *Handler) listApprovals(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	list, err := h.service.ListPendingApprovals(r.Context(), actor)
	if err != nil {
		h.fail(w, "list pending approvals failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	detail, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get payment request failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = r.Header.Get("Idempotency-Key")
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create payment request failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "approve payment request failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RejectInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req, err := h.service.Reject(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "reject payment request failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

func (h *Handler) generateAdvice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	advice, err := h.service.GenerateAdvice(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "generate payment advice failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, advice)
}

func (h *Handler) listAdvices(w http.ResponseWriter, r *http.Request) {
	var requestID int64
	if raw := r.URL.Query().Get("request_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request_id")
			return
		}
		requestID = id
	}
	actor, _ := shared.ActorFromContext(r.Context())
	list, err := h.service.ListAdvices(r.Context(), actor, requestID)
	if err != nil {
		h.fail(w, "list payment advices failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"advices": list})
}

func (h *Handler) downloadAdvice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	name, rc, err := h.service.OpenAdvice(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "open payment advice failed", err)
		return
	}
	defer rc.Close()
	httpx.Attachment(w, name, rc)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
