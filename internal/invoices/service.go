package invoices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/odyssey-erp/payables/internal/platform/storage"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// RepositoryPort defines data access methods for invoices.
type RepositoryPort interface {
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Invalidator drops cached report data after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service implements invoice entry and maintenance.
type Service struct {
	repo   RepositoryPort
	store  storage.Store
	cache  Invalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the invoice service.
func NewService(repo RepositoryPort, store storage.Store, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, cache: cache, logger: logger, now: time.Now}
}

// fromInput validates in and fills the persisted fields of inv. Due date
// defaults to the invoice date plus DefaultTermDays; total defaults to
// amount plus tax.
func fromInput(inv *Invoice, in Input) error {
	number := strings.TrimSpace(in.InvoiceNumber)
	if number == "" {
		return fmt.Errorf("%w: invoice number required", shared.ErrValidation)
	}
	if in.VendorID <= 0 {
		return fmt.Errorf("%w: vendor required", shared.ErrValidation)
	}
	invoiceDate, err := time.Parse(dateLayout, strings.TrimSpace(in.InvoiceDate))
	if err != nil {
		return fmt.Errorf("%w: invoice date must be YYYY-MM-DD", shared.ErrValidation)
	}
	dueDate := invoiceDate.AddDate(0, 0, DefaultTermDays)
	if s := strings.TrimSpace(in.DueDate); s != "" {
		if dueDate, err = time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("%w: due date must be YYYY-MM-DD", shared.ErrValidation)
		}
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", shared.ErrValidation)
	}
	if in.TaxAmount.IsNegative() {
		return fmt.Errorf("%w: tax amount cannot be negative", shared.ErrValidation)
	}
	total := in.TotalAmount
	if total.IsZero() {
		total = in.Amount.Add(in.TaxAmount)
	}
	if !total.IsPositive() {
		return fmt.Errorf("%w: total amount must be greater than zero", shared.ErrValidation)
	}
	inv.VendorID = in.VendorID
	inv.InvoiceNumber = number
	inv.InvoiceDate = invoiceDate
	inv.DueDate = dueDate
	inv.Amount = in.Amount.Round(2)
	inv.TaxAmount = in.TaxAmount.Round(2)
	inv.TotalAmount = total.Round(2)
	inv.Description = strings.TrimSpace(in.Description)
	return nil
}

// Create records a pending invoice against an active vendor.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in Input) (Invoice, error) {
	if err := rbac.Authorize(actor, shared.PermInvoicesEdit); err != nil {
		return Invoice{}, err
	}
	var inv Invoice
	if err := fromInput(&inv, in); err != nil {
		return Invoice{}, err
	}
	inv.Status = StatusPending
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.VendorStatus(ctx, inv.VendorID)
		if err != nil {
			return err
		}
		if status != "active" {
			return fmt.Errorf("%w: vendor %d is %s", shared.ErrValidation, inv.VendorID, status)
		}
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditCreated, EntityType: "invoice", EntityID: id,
			Details: "Created invoice: " + inv.InvoiceNumber,
		})
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: create: %w", err)
	}
	s.invalidate(ctx)
	return s.Get(ctx, actor, inv.ID)
}

// Update rewrites invoice fields. A supplied status is applied as a manual
// edit; omitted status keeps the current one.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, in Input) (Invoice, error) {
	if err := rbac.Authorize(actor, shared.PermInvoicesEdit); err != nil {
		return Invoice{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if err := fromInput(&inv, in); err != nil {
		return Invoice{}, err
	}
	if in.Status != "" {
		if !validStatus(in.Status) {
			return Invoice{}, fmt.Errorf("%w: unknown invoice status %q", shared.ErrValidation, in.Status)
		}
		inv.Status = in.Status
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.VendorStatus(ctx, inv.VendorID); err != nil {
			return err
		}
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditUpdated, EntityType: "invoice", EntityID: id,
			Details: fmt.Sprintf("Updated invoice: %s (status %s)", inv.InvoiceNumber, inv.Status),
		})
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: update: %w", err)
	}
	s.invalidate(ctx)
	return s.Get(ctx, actor, id)
}

// Get returns one invoice with its days to due date.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Invoice, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermInvoicesView, shared.PermPaymentsView); err != nil {
		return Invoice{}, err
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.DaysToDue = DaysBetween(s.now(), inv.DueDate)
	return inv, nil
}

// List returns invoices ordered by due date ascending.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Invoice, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermInvoicesView, shared.PermPaymentsView); err != nil {
		return nil, err
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown invoice status %q", shared.ErrValidation, filter.Status)
	}
	list, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, err
	}
	today := s.now()
	for i := range list {
		list[i].DaysToDue = DaysBetween(today, list[i].DueDate)
	}
	return list, nil
}

// FileName builds the stored name of an invoice scan.
func FileName(original string, at time.Time) string {
	return "invoice_" + at.Format("20060102150405") + strings.ToLower(filepath.Ext(original))
}

// AttachFile stores the invoice scan and links it to the invoice.
func (s *Service) AttachFile(ctx context.Context, actor shared.Actor, id int64, filename string, body io.Reader) (Invoice, error) {
	if err := rbac.Authorize(actor, shared.PermInvoicesEdit); err != nil {
		return Invoice{}, err
	}
	if strings.TrimSpace(filename) == "" {
		return Invoice{}, fmt.Errorf("%w: file required", shared.ErrValidation)
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	path, err := s.store.Save(ctx, FileName(filename, s.now()), body)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: save file: %w", err)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.SetFilePath(ctx, id, path); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditUpdated, EntityType: "invoice", EntityID: id,
			Details: "Attached file to invoice: " + inv.InvoiceNumber,
		})
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("invoices: attach file: %w", err)
	}
	inv.FilePath = &path
	inv.DaysToDue = DaysBetween(s.now(), inv.DueDate)
	return inv, nil
}

// OpenFile returns the stored scan of an invoice.
func (s *Service) OpenFile(ctx context.Context, actor shared.Actor, id int64) (string, io.ReadCloser, error) {
	if err := rbac.AuthorizeAny(actor, shared.PermInvoicesView, shared.PermPaymentsView); err != nil {
		return "", nil, err
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if inv.FilePath == nil || *inv.FilePath == "" {
		return "", nil, fmt.Errorf("%w: invoice %d has no file", shared.ErrNotFound, id)
	}
	rc, err := s.store.Open(ctx, *inv.FilePath)
	if errors.Is(err, storage.ErrNotExist) {
		return "", nil, fmt.Errorf("%w: invoice file %s", shared.ErrNotFound, *inv.FilePath)
	}
	if err != nil {
		return "", nil, err
	}
	return *inv.FilePath, rc, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump report cache", slog.Any("error", err))
	}
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

