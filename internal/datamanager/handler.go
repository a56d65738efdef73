package datamanager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

const maxImportBytes = 32 << 20

// Handler exposes the table editor.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the editor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDataManage))
		r.Get("/", h.tables)
		r.Get("/stats", h.stats)
		r.Route("/{table}", func(r chi.Router) {
			r.Get("/", h.list)
			r.Get("/schema", h.describe)
			r.Get("/options/{column}", h.options)
			r.Get("/export", h.export)
			r.Post("/import", h.importFile)
			r.Post("/rows", h.insert)
			r.Get("/rows/{id}", h.get)
			r.Put("/rows/{id}", h.update)
			r.Delete("/rows/{id}", h.delete)
		})
	})
}

func actorOf(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

func (h *Handler) tables(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Tables(r.Context(), actorOf(r))
	if err != nil {
		h.fail(w, "list tables failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Stats(r.Context(), actorOf(r))
	if err != nil {
		h.fail(w, "table stats failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) describe(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Describe(r.Context(), actorOf(r), chi.URLParam(r, "table"))
	if err != nil {
		h.fail(w, "describe table failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	out, err := h.service.List(r.Context(), actorOf(r), chi.URLParam(r, "table"), page, perPage)
	if err != nil {
		h.fail(w, "list rows failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Options(r.Context(), actorOf(r), chi.URLParam(r, "table"), chi.URLParam(r, "column"))
	if err != nil {
		h.fail(w, "list options failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Get(r.Context(), actorOf(r), chi.URLParam(r, "table"), id)
	if err != nil {
		h.fail(w, "get row failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func decodeRecord(r *http.Request) (Record, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", shared.ErrValidation, err)
	}
	return rec, nil
}

func (h *Handler) insert(w http.ResponseWriter, r *http.Request) {
	values, err := decodeRecord(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Insert(r.Context(), actorOf(r), chi.URLParam(r, "table"), values)
	if err != nil {
		h.fail(w, "insert row failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	values, err := decodeRecord(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rec, err := h.service.Update(r.Context(), actorOf(r), chi.URLParam(r, "table"), id, values)
	if err != nil {
		h.fail(w, "update row failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actorOf(r), chi.URLParam(r, "table"), id); err != nil {
		h.fail(w, "delete row failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatCSV
	}
	var buf bytes.Buffer
	name, err := h.service.Export(r.Context(), actorOf(r), chi.URLParam(r, "table"), format, &buf)
	if err != nil {
		h.fail(w, "export table failed", err)
		return
	}
	httpx.Attachment(w, name, &buf)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file required")
		return
	}
	defer file.Close()
	format := r.FormValue("format")
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	}
	res, err := h.service.Import(r.Context(), actorOf(r), chi.URLParam(r, "table"), format, r.FormValue("mode"), file)
	if err != nil {
		h.fail(w, "import table failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
