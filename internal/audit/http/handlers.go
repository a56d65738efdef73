package audithttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/payables/internal/audit"
	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, actor shared.Actor, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, actor shared.Actor, filters audit.TimelineFilters) ([]audit.Entry, error)
	ImportHistory(ctx context.Context, actor shared.Actor) ([]audit.ImportRecord, error)
}

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler creates an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	res, err := h.service.Timeline(r.Context(), actor, filters)
	if err != nil {
		h.fail(w, "audit timeline failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleImports(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	recs, err := h.service.ImportHistory(r.Context(), actor)
	if err != nil {
		h.fail(w, "import history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, recs)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rows, err := h.service.Export(r.Context(), actor, filters)
	if err != nil {
		h.fail(w, "audit export failed", err)
		return
	}
	body, err := audit.WriteCSV(rows)
	if err != nil {
		h.fail(w, "audit csv failed", err)
		return
	}
	name := fmt.Sprintf("audit_log_%s.csv", h.now().Format("20060102150405"))
	httpx.Attachment(w, name, bytes.NewReader(body))
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	var f audit.TimelineFilters
	var err error
	if f.From, err = parseDay(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseDay(q.Get("to")); err != nil {
		return f, err
	}
	if !f.To.IsZero() {
		// "to" is inclusive of the whole day.
		f.To = f.To.AddDate(0, 0, 1)
	}
	f.EntityType = strings.TrimSpace(q.Get("entity_type"))
	f.Action = strings.TrimSpace(q.Get("action"))
	if f.EntityID, err = parseInt(q.Get("entity_id"), "entity_id"); err != nil {
		return f, err
	}
	if f.UserID, err = parseInt(q.Get("user_id"), "user_id"); err != nil {
		return f, err
	}
	page, err := parseInt(q.Get("page"), "page")
	if err != nil {
		return f, err
	}
	size, err := parseInt(q.Get("page_size"), "page_size")
	if err != nil {
		return f, err
	}
	f.Page, f.PageSize = int(page), int(size)
	return f, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dates must be YYYY-MM-DD", shared.ErrValidation)
	}
	return t, nil
}

func parseInt(raw, name string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s", shared.ErrValidation, name)
	}
	return v, nil
}
