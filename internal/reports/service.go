package reports

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/payables/internal/aging"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/report"
)

// RepositoryPort lists the reporting queries.
type RepositoryPort interface {
	DashboardCounts(ctx context.Context) (Dashboard, error)
	OpenInvoices(ctx context.Context) ([]aging.Invoice, error)
	VendorTotals(ctx context.Context) ([]VendorSummaryRow, error)
	PaymentHistory(ctx context.Context, from, to time.Time) ([]PaymentHistoryRow, error)
	StatusTotals(ctx context.Context) ([]StatusRow, error)
	StatusTrend(ctx context.Context, since time.Time) ([]MonthStatusRow, error)
	InvoicesPerMonth(ctx context.Context, since time.Time) ([]MonthTotal, error)
	PaymentsPerMonth(ctx context.Context, since time.Time) ([]MonthTotal, error)
}

// Cache is the versioned JSON cache in front of the queries.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// PDFRenderer converts report documents to PDF.
type PDFRenderer interface {
	RenderDocument(ctx context.Context, doc report.Document) ([]byte, error)
}

// Service assembles reports.
type Service struct {
	repo    RepositoryPort
	cache   Cache
	pdf     PDFRenderer
	company report.Company
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the reporting service. cache and pdf may be nil.
func NewService(repo RepositoryPort, cache Cache, pdf PDFRenderer, company report.Company, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, pdf: pdf, company: company, logger: logger, now: time.Now}
}

func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	if s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(dest, value)
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return assign(dest, value)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

// assign copies a freshly loaded value into dest without a cache round trip.
func assign(dest, value any) error {
	switch d := dest.(type) {
	case *Dashboard:
		*d = value.(Dashboard)
	case *aging.Report:
		*d = value.(aging.Report)
	case *VendorSummary:
		*d = value.(VendorSummary)
	case *[]PaymentHistoryRow:
		*d = value.([]PaymentHistoryRow)
	case *StatusSummary:
		*d = value.(StatusSummary)
	case *[]TrendRow:
		*d = value.([]TrendRow)
	default:
		return fmt.Errorf("reports: unsupported destination %T", dest)
	}
	return nil
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}

// Dashboard returns the landing page figures with today's aging summary.
func (s *Service) Dashboard(ctx context.Context, actor shared.Actor) (Dashboard, error) {
	if err := rbac.Authorize(actor, shared.PermDashboardView); err != nil {
		return Dashboard{}, err
	}
	return s.dashboard(ctx)
}

func (s *Service) dashboard(ctx context.Context) (Dashboard, error) {
	today := s.now()
	var out Dashboard
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		d, err := s.repo.DashboardCounts(ctx)
		if err != nil {
			return nil, err
		}
		invoices, err := s.repo.OpenInvoices(ctx)
		if err != nil {
			return nil, err
		}
		d.Aging = aging.Summarize(invoices, today)
		return d, nil
	}, "dashboard", day(today))
	return out, err
}

// Aging builds the aging report as of asOf (today when zero).
func (s *Service) Aging(ctx context.Context, actor shared.Actor, asOf time.Time) (aging.Report, error) {
	if err := rbac.Authorize(actor, shared.PermReportsView); err != nil {
		return aging.Report{}, err
	}
	return s.aging(ctx, asOf)
}

func (s *Service) aging(ctx context.Context, asOf time.Time) (aging.Report, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	var out aging.Report
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		invoices, err := s.repo.OpenInvoices(ctx)
		if err != nil {
			return nil, err
		}
		return aging.Build(invoices, asOf), nil
	}, "aging", day(asOf))
	return out, err
}

func agingSheets(rep aging.Report) []report.Sheet {
	summary := report.Sheet{Name: "Summary", Headers: []string{"Aging Bucket", "Invoice Count", "Amount"}}
	for _, b := range rep.Summary {
		summary.Rows = append(summary.Rows, []any{b.Bucket, b.Count, b.Amount})
	}
	summary.Rows = append(summary.Rows, []any{"TOTAL", "", rep.Total})

	vendors := report.Sheet{Name: "By Vendor", Headers: append([]string{"Vendor"}, append(aging.Buckets(), "Total")...)}
	for _, v := range rep.Vendors {
		row := []any{v.VendorName}
		for _, b := range aging.Buckets() {
			row = append(row, v.Amounts[b])
		}
		vendors.Rows = append(vendors.Rows, append(row, v.Total))
	}

	details := report.Sheet{Name: "Details", Headers: []string{"Invoice #", "Vendor", "Invoice Date", "Due Date", "Days Overdue", "Aging Bucket", "Amount", "Status"}}
	for _, d := range rep.Details {
		details.Rows = append(details.Rows, []any{d.InvoiceNumber, d.VendorName, d.InvoiceDate, d.DueDate, d.DaysOverdue, d.Bucket, d.TotalAmount, d.Status})
	}
	return []report.Sheet{summary, vendors, details}
}

// WriteAgingWorkbook writes the aging report as xlsx.
func (s *Service) WriteAgingWorkbook(ctx context.Context, actor shared.Actor, asOf time.Time, w io.Writer) error {
	rep, err := s.Aging(ctx, actor, asOf)
	if err != nil {
		return err
	}
	return report.WriteWorkbook(w, agingSheets(rep)...)
}

// AgingPDF renders the aging report to PDF.
func (s *Service) AgingPDF(ctx context.Context, actor shared.Actor, asOf time.Time) ([]byte, error) {
	rep, err := s.Aging(ctx, actor, asOf)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, fmt.Errorf("reports: pdf renderer not configured")
	}
	return s.pdf.RenderDocument(ctx, report.Document{
		Title:    "Accounts Payable Aging",
		Subtitle: "As of " + day(rep.AsOf),
		Company:  s.company,
		Sheets:   agingSheets(rep),
	})
}

// VendorSummary lists active vendors with invoice totals and a total row.
func (s *Service) VendorSummary(ctx context.Context, actor shared.Actor) (VendorSummary, error) {
	if err := rbac.Authorize(actor, shared.PermReportsView); err != nil {
		return VendorSummary{}, err
	}
	return s.vendorSummary(ctx)
}

func (s *Service) vendorSummary(ctx context.Context) (VendorSummary, error) {
	var out VendorSummary
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		rows, err := s.repo.VendorTotals(ctx)
		if err != nil {
			return nil, err
		}
		return summarizeVendors(rows), nil
	}, "vendors")
	return out, err
}

func summarizeVendors(rows []VendorSummaryRow) VendorSummary {
	total := VendorSummaryRow{VendorName: "TOTAL", TotalAmount: decimal.Zero, PaidAmount: decimal.Zero, PendingAmount: decimal.Zero}
	for _, r := range rows {
		total.TotalInvoices += r.TotalInvoices
		total.TotalAmount = total.TotalAmount.Add(r.TotalAmount)
		total.PaidInvoices += r.PaidInvoices
		total.PaidAmount = total.PaidAmount.Add(r.PaidAmount)
		total.PendingInvoices += r.PendingInvoices
		total.PendingAmount = total.PendingAmount.Add(r.PendingAmount)
	}
	if rows == nil {
		rows = []VendorSummaryRow{}
	}
	return VendorSummary{Rows: rows, Total: total}
}

// WriteVendorSummaryWorkbook writes the vendor summary as xlsx.
func (s *Service) WriteVendorSummaryWorkbook(ctx context.Context, actor shared.Actor, w io.Writer) error {
	sum, err := s.VendorSummary(ctx, actor)
	if err != nil {
		return err
	}
	sheet := report.Sheet{Name: "Vendor Summary", Headers: []string{
		"Vendor", "Total Invoices", "Total Amount", "Paid Invoices", "Paid Amount", "Pending Invoices", "Pending Amount",
	}}
	for _, r := range append(sum.Rows, sum.Total) {
		sheet.Rows = append(sheet.Rows, []any{r.VendorName, r.TotalInvoices, r.TotalAmount, r.PaidInvoices, r.PaidAmount, r.PendingInvoices, r.PendingAmount})
	}
	return report.WriteWorkbook(w, sheet)
}

// PaymentHistory lists advices generated between from and to inclusive.
// Zero bounds default to the last 30 days.
func (s *Service) PaymentHistory(ctx context.Context, actor shared.Actor, from, to time.Time) ([]PaymentHistoryRow, error) {
	if err := rbac.Authorize(actor, shared.PermReportsView); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if !from.Before(end) {
		return nil, fmt.Errorf("%w: from must not be after to", shared.ErrValidation)
	}
	var out []PaymentHistoryRow
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		rows, err := s.repo.PaymentHistory(ctx, from, end)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []PaymentHistoryRow{}
		}
		return rows, nil
	}, "payments", day(from), day(end))
	return out, err
}

// WritePaymentHistoryWorkbook writes the payment history as xlsx.
func (s *Service) WritePaymentHistoryWorkbook(ctx context.Context, actor shared.Actor, from, to time.Time, w io.Writer) error {
	rows, err := s.PaymentHistory(ctx, actor, from, to)
	if err != nil {
		return err
	}
	sheet := report.Sheet{Name: "Payment History", Headers: []string{
		"Advice #", "Request #", "Generated At", "Payment Date", "Amount", "Status", "Approved By", "Invoices", "Vendors",
	}}
	for _, r := range rows {
		sheet.Rows = append(sheet.Rows, []any{r.AdviceNumber, r.RequestNumber, r.GeneratedAt, r.PaymentDate, r.TotalAmount, r.Status, r.ApproverName, r.InvoiceCount, r.VendorNames})
	}
	return report.WriteWorkbook(w, sheet)
}

// StatusSummary breaks invoices down by status with a 12 month trend.
func (s *Service) StatusSummary(ctx context.Context, actor shared.Actor) (StatusSummary, error) {
	if err := rbac.Authorize(actor, shared.PermReportsView); err != nil {
		return StatusSummary{}, err
	}
	since := monthStart(s.now()).AddDate(0, -11, 0)
	var out StatusSummary
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		totals, err := s.repo.StatusTotals(ctx)
		if err != nil {
			return nil, err
		}
		trend, err := s.repo.StatusTrend(ctx, since)
		if err != nil {
			return nil, err
		}
		return StatusSummary{ByStatus: totals, Trend: trend}, nil
	}, "status", since.Format(monthLayout))
	return out, err
}

// MonthlyTrend compares invoices and payments over the last months months,
// oldest first, with empty months included.
func (s *Service) MonthlyTrend(ctx context.Context, actor shared.Actor, months int) ([]TrendRow, error) {
	if err := rbac.Authorize(actor, shared.PermReportsView); err != nil {
		return nil, err
	}
	if months <= 0 || months > 60 {
		months = 12
	}
	since := monthStart(s.now()).AddDate(0, -(months - 1), 0)
	var out []TrendRow
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		invoices, err := s.repo.InvoicesPerMonth(ctx, since)
		if err != nil {
			return nil, err
		}
		payments, err := s.repo.PaymentsPerMonth(ctx, since)
		if err != nil {
			return nil, err
		}
		return mergeTrend(since, months, invoices, payments), nil
	}, "trend", since.Format(monthLayout), strconv.Itoa(months))
	return out, err
}

func mergeTrend(since time.Time, months int, invoices, payments []MonthTotal) []TrendRow {
	rows := make([]TrendRow, months)
	index := make(map[string]int, months)
	for i := range rows {
		m := since.AddDate(0, i, 0).Format(monthLayout)
		rows[i] = TrendRow{Month: m, InvoiceAmount: decimal.Zero, PaymentAmount: decimal.Zero}
		index[m] = i
	}
	for _, t := range invoices {
		if i, ok := index[t.Month]; ok {
			rows[i].InvoiceCount = t.Count
			rows[i].InvoiceAmount = t.Amount
		}
	}
	for _, t := range payments {
		if i, ok := index[t.Month]; ok {
			rows[i].PaymentCount = t.Count
			rows[i].PaymentAmount = t.Amount
		}
	}
	return rows
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Warmup fills the cache for the current version with today's dashboard,
// aging report and vendor summary.
func (s *Service) Warmup(ctx context.Context) error {
	if _, err := s.dashboard(ctx); err != nil {
		return fmt.Errorf("warm dashboard: %w", err)
	}
	if _, err := s.aging(ctx, time.Time{}); err != nil {
		return fmt.Errorf("warm aging: %w", err)
	}
	if _, err := s.vendorSummary(ctx); err != nil {
		return fmt.Errorf("warm vendor summary: %w", err)
	}
	return nil
}
