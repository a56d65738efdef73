package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/shared"
)

// CSV exports scan the whole filtered log, so each actor gets a small budget.
const (
	exportsPerWindow = 10
	exportWindow     = time.Minute
)

// MountRoutes registers the audit timeline, import history and CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.With(h.rbac.RequireAny(shared.PermAuditView, shared.PermERPSyncRun, shared.PermDataManage)).
		Get("/imports", h.handleImports)

	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.RequireAll(shared.PermAuditView))
		gr.Get("/", h.handleTimeline)
		gr.With(exportLimiter()).Get("/export.csv", h.handleExport)
	})
}

func exportLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(exportsPerWindow, exportWindow,
		httprate.WithKeyFuncs(exportKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export limit reached, retry later")
		}),
	)
}

// exportKey buckets signed-in actors by user id and everyone else by IP.
func exportKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok && actor.UserID > 0 {
		return "user:" + strconv.FormatInt(actor.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
