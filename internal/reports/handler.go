package reports

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/payables/internal/platform/httpx"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/report"
)

// Handler exposes dashboard and report endpoints.
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

// MountDashboard registers the dashboard route.
func (h *Handler) MountDashboard(r chi.Router) {
	r.With(h.rbac.RequireAll(shared.PermDashboardView)).Get("/", h.dashboard)
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermReportsView))
		r.Get("/aging", h.aging)
		r.Get("/aging.xlsx", h.agingXLSX)
		r.Get("/aging.pdf", h.agingPDF)
		r.Get("/vendors", h.vendors)
		r.Get("/vendors.xlsx", h.vendorsXLSX)
		r.Get("/payments", h.payments)
		r.Get("/payments.xlsx", h.paymentsXLSX)
		r.Get("/invoice-status", h.invoiceStatus)
		r.Get("/trend", h.trend)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	d, err := h.service.Dashboard(r.Context(), actor)
	if err != nil {
		h.fail(w, "dashboard failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func parseDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", shared.ErrValidation, name)
	}
	return t, nil
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rep, err := h.service.Aging(r.Context(), actor, asOf)
	if err != nil {
		h.fail(w, "aging report failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) agingXLSX(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	var buf bytes.Buffer
	if err := h.service.WriteAgingWorkbook(r.Context(), actor, asOf, &buf); err != nil {
		h.fail(w, "aging workbook failed", err)
		return
	}
	httpx.Attachment(w, "aging_report_"+stamp(asOf)+".xlsx", &buf)
}

func (h *Handler) agingPDF(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	pdf, err := h.service.AgingPDF(r.Context(), actor, asOf)
	if errors.Is(err, report.ErrRenderUnavailable) {
		h.logger.Warn("aging pdf renderer down", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "the PDF renderer is not reachable, try the Excel export")
		return
	}
	if err != nil {
		h.fail(w, "aging pdf failed", err)
		return
	}
	httpx.Attachment(w, "aging_report_"+stamp(asOf)+".pdf", bytes.NewBuffer(pdf))
}

func (h *Handler) vendors(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	sum, err := h.service.VendorSummary(r.Context(), actor)
	if err != nil {
		h.fail(w, "vendor summary failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) vendorsXLSX(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var buf bytes.Buffer
	if err := h.service.WriteVendorSummaryWorkbook(r.Context(), actor, &buf); err != nil {
		h.fail(w, "vendor summary workbook failed", err)
		return
	}
	httpx.Attachment(w, "vendor_summary_"+stamp(time.Time{})+".xlsx", &buf)
}

func (h *Handler) paymentRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseDate(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(r, "to")
	return from, to, err
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.paymentRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rows, err := h.service.PaymentHistory(r.Context(), actor, from, to)
	if err != nil {
		h.fail(w, "payment history failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": rows})
}

func (h *Handler) paymentsXLSX(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.paymentRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	var buf bytes.Buffer
	if err := h.service.WritePaymentHistoryWorkbook(r.Context(), actor, from, to, &buf); err != nil {
		h.fail(w, "payment history workbook failed", err)
		return
	}
	httpx.Attachment(w, "payment_history_"+stamp(time.Time{})+".xlsx", &buf)
}

func (h *Handler) invoiceStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	sum, err := h.service.StatusSummary(r.Context(), actor)
	if err != nil {
		h.fail(w, "invoice status summary failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	months := 12
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "months must be a number")
			return
		}
		months = n
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rows, err := h.service.MonthlyTrend(r.Context(), actor, months)
	if err != nil {
		h.fail(w, "monthly trend failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"months": rows})
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("20060102")
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if h.logger != nil {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
