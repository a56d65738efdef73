package vendors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

const maxUploadBytes = 16 << 20

// Handler exposes vendor endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers vendor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermVendorsView))
		r.Get("/", h.list)
		r.Get("/{id}/banks", h.listBanks)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermVendorsView, shared.PermVendorDocumentsReview))
		r.Get("/{id}", h.show)
		r.Get("/{id}/documents", h.listDocuments)
		r.Get("/documents/{docID}/file", h.downloadDocument)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermVendorsEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/banks", h.addBank)
		r.Put("/{id}/banks/{bankID}", h.updateBank)
		r.Delete("/{id}/banks/{bankID}", h.deleteBank)
		r.Post("/{id}/documents", h.uploadDocument)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermVendorDocumentsReview))
		r.Patch("/documents/{docID}", h.reviewDocument)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermVendorDocumentsDelete))
		r.Delete("/documents/{docID}", h.deleteDocument)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	q := r.URL.Query()
	vendors, err := h.service.List(r.Context(), actor, ListFilter{Status: q.Get("status"), Search: q.Get("search")})
	if err != nil {
		h.fail(w, "list vendors failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"vendors": vendors})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	vendor, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get vendor failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in VendorInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	vendor, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "create vendor failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, vendor)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in VendorInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	vendor, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "update vendor failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendor)
}

func (h *Handler) listBanks(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	banks, err := h.service.ListBanks(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "list banks failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"banks": banks})
}

func (h *Handler) addBank(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BankInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	bank, err := h.service.AddBank(r.Context(), actor, id, in)
	if err != nil {
		h.fail(w, "add bank failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bank)
}

func (h *Handler) updateBank(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bankID, err := httpx.IDParam(r, "bankID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BankInput
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	bank, err := h.service.UpdateBank(r.Context(), actor, id, bankID, in)
	if err != nil {
		h.fail(w, "update bank failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bank)
}

func (h *Handler) deleteBank(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bankID, err := httpx.IDParam(r, "bankID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteBank(r.Context(), actor, id, bankID); err != nil {
		h.fail(w, "delete bank failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	docs, err := h.service.ListDocuments(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "list documents failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": docs, "document_types": DocumentTypes})
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "multipart form required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "file required")
		return
	}
	defer file.Close()
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.UploadDocument(r.Context(), actor, id, r.FormValue("document_type"), header.Filename, file)
	if err != nil {
		h.fail(w, "upload document failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "docID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, rc, err := h.service.OpenDocument(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "open document failed", err)
		return
	}
	defer rc.Close()
	httpx.Attachment(w, doc.Path, rc)
}

type reviewRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

func (h *Handler) reviewDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "docID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reviewRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateDocumentStatus(r.Context(), actor, id, req.Status); err != nil {
		h.fail(w, "review document failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "docID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteDocument(r.Context(), actor, id); err != nil {
		h.fail(w, "delete document failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
