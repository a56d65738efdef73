package erpsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/payables/internal/shared"
)

const (
	lockTTL        = 10 * time.Minute
	defaultDueDays = 30
)

// Source fetches records from the ERP.
type Source interface {
	Creditors(ctx context.Context) ([]Ledger, error)
	PendingBills(ctx context.Context) ([]Bill, error)
}

// RepositoryPort opens import transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Invalidator drops cached report data after an import.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// MetricsPort records imported counts.
type MetricsPort interface {
	SyncImported(kind string, n int)
}

// Option customises the service.
type Option func(*Service)

// WithCache bumps the report cache after an import.
func WithCache(c Invalidator) Option { return func(s *Service) { s.cache = c } }

// WithMetrics records imports.
func WithMetrics(m MetricsPort) Option { return func(s *Service) { s.metrics = m } }

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithPhoneNormalizer formats vendor phone numbers. Numbers it rejects are kept as sent by the ERP.
func WithPhoneNormalizer(fn func(string) (string, error)) Option {
	return func(s *Service) { s.phone = fn }
}

// Service imports vendors and pending bills from Tally.
type Service struct {
	source  Source
	repo    RepositoryPort
	locker  Locker
	cache   Invalidator
	metrics MetricsPort
	phone   func(string) (string, error)
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the sync service. A nil locker disables cross-process locking.
func NewService(source Source, repo RepositoryPort, locker Locker, opts ...Option) *Service {
	s := &Service{source: source, repo: repo, locker: locker, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncVendors upserts every Sundry Creditors ledger and returns how many were written.
func (s *Service) SyncVendors(ctx context.Context) (int, error) {
	res, err := s.run(ctx, KindVendors, s.importVendors)
	return res.Imported, err
}

// SyncInvoices inserts pending bills not seen before and returns how many were new.
func (s *Service) SyncInvoices(ctx context.Context) (int, error) {
	res, err := s.run(ctx, KindInvoices, s.importInvoices)
	return res.Imported, err
}

// Run executes the sync for kind.
func (s *Service) Run(ctx context.Context, kind string) (Result, error) {
	switch kind {
	case KindVendors:
		return s.run(ctx, kind, s.importVendors)
	case KindInvoices:
		return s.run(ctx, kind, s.importInvoices)
	default:
		return Result{}, fmt.Errorf("%w: unknown sync kind %q", shared.ErrValidation, kind)
	}
}

func (s *Service) run(ctx context.Context, kind string, fn func(context.Context, shared.Actor) (Result, error)) (Result, error) {
	actor, _ := shared.ActorFromContext(ctx)
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.SyncLockKey(kind), lockTTL)
		if err != nil {
			return Result{Kind: kind}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sync lock", slog.String("kind", kind), slog.Any("error", err))
			}
		}()
	}
	start := s.now()
	res, err := fn(ctx, actor)
	res.Kind = kind
	if err != nil {
		s.logger.Error("erp sync failed", slog.String("kind", kind), slog.Any("error", err))
		return res, err
	}
	if s.metrics != nil {
		s.metrics.SyncImported(kind, res.Imported)
	}
	if res.Imported > 0 && s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
	s.logger.Info("erp sync finished", slog.String("kind", kind), slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped), slog.Duration("took", s.now().Sub(start)))
	return res, nil
}

func (s *Service) vendorRecord(l Ledger) VendorRecord {
	name := strings.TrimSpace(l.Name)
	phone := strings.TrimSpace(l.Phone)
	if phone != "" && s.phone != nil {
		if normalized, err := s.phone(phone); err == nil {
			phone = normalized
		}
	}
	taxID := strings.TrimSpace(l.GSTIN)
	if taxID == "" {
		taxID = strings.TrimSpace(l.PAN)
	}
	var lines []string
	for _, a := range l.Address {
		if a = strings.TrimSpace(a); a != "" {
			lines = append(lines, a)
		}
	}
	return VendorRecord{
		ExternalRef:   vendorRef(name),
		Name:          name,
		ContactPerson: strings.TrimSpace(l.Contact),
		Email:         strings.TrimSpace(l.Email),
		Phone:         phone,
		Address:       strings.Join(lines, ", "),
		TaxID:         taxID,
	}
}

func (s *Service) importVendors(ctx context.Context, actor shared.Actor) (Result, error) {
	ledgers, err := s.source.Creditors(ctx)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res = Result{}
		for _, l := range ledgers {
			if _, err := tx.UpsertVendor(ctx, s.vendorRecord(l)); err != nil {
				return fmt.Errorf("erpsync: upsert vendor %q: %w", l.Name, err)
			}
			res.Imported++
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID:     actor.UserID,
			Action:     shared.AuditImportVendors,
			EntityType: "vendor",
			Details:    fmt.Sprintf("Imported %d vendors from Tally", res.Imported),
			At:         s.now(),
		})
	})
	return res, err
}

func (s *Service) invoiceRecord(b Bill) (InvoiceRecord, error) {
	party := strings.TrimSpace(b.Party)
	number := strings.TrimSpace(b.Name)
	if party == "" || number == "" {
		return InvoiceRecord{}, fmt.Errorf("%w: bill without party or number", shared.ErrValidation)
	}
	amount, err := parseAmount(b.Closing)
	if err != nil {
		return InvoiceRecord{}, err
	}
	invDate, ok := parseTallyDate(b.BillDate)
	if !ok {
		invDate = s.now()
	}
	invDate = time.Date(invDate.Year(), invDate.Month(), invDate.Day(), 0, 0, 0, 0, time.UTC)
	due, ok := parseTallyDate(b.DueDate)
	if !ok {
		due = invDate.AddDate(0, 0, defaultDueDays)
	}
	desc := strings.TrimSpace(b.Narration)
	if desc == "" {
		desc = "Imported from Tally"
	}
	return InvoiceRecord{
		ExternalRef:   invoiceRef(party, number),
		VendorRef:     vendorRef(party),
		InvoiceNumber: number,
		InvoiceDate:   invDate,
		DueDate:       due,
		Amount:        amount,
		Description:   desc,
	}, nil
}

func (s *Service) importInvoices(ctx context.Context, actor shared.Actor) (Result, error) {
	bills, err := s.source.PendingBills(ctx)
	if err != nil {
		return Result{}, err
	}
	var res Result
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res = Result{}
		vendorIDs := make(map[string]int64)
		for _, b := range bills {
			rec, err := s.invoiceRecord(b)
			if err != nil {
				s.logger.Warn("skip tally bill", slog.String("bill", b.Name), slog.Any("error", err))
				res.Skipped++
				continue
			}
			id, ok := vendorIDs[rec.VendorRef]
			if !ok {
				id, err = tx.VendorIDByRef(ctx, rec.VendorRef)
				if errors.Is(err, shared.ErrNotFound) {
					s.logger.Warn("skip bill for unknown vendor", slog.String("party", b.Party), slog.String("bill", b.Name))
					res.Skipped++
					continue
				}
				if err != nil {
					return err
				}
				vendorIDs[rec.VendorRef] = id
			}
			rec.VendorID = id
			inserted, err := tx.InsertInvoiceIfNew(ctx, rec)
			if err != nil {
				return fmt.Errorf("erpsync: insert invoice %q: %w", rec.InvoiceNumber, err)
			}
			if inserted {
				res.Imported++
			} else {
				res.Skipped++
			}
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID:     actor.UserID,
			Action:     shared.AuditImportInvoices,
			EntityType: "invoice",
			Details:    fmt.Sprintf("Imported %d invoices from Tally", res.Imported),
			At:         s.now(),
		})
	})
	return res, err
}
