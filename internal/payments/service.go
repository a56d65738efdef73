package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/odyssey-erp/payables/internal/platform/storage"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// RepositoryPort defines data access for the payment workflow.
type RepositoryPort interface {
	GetRequest(ctx context.Context, id int64) (Request, error)
	ListRequests(ctx context.Context, filter ListFilter) ([]Request, error)
	ListItems(ctx context.Context, requestID int64) ([]Item, error)
	ListAdvices(ctx context.Context, requestID int64) ([]Advice, error)
	GetAdvice(ctx context.Context, id int64) (Advice, error)
	GetVendor(ctx context.Context, vendorID int64) (Vendor, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AdviceGenerator renders and stores an advice document, returning the
// storage key of the file.
type AdviceGenerator interface {
	GenerateAdvice(ctx context.Context, doc AdviceDocument) (string, error)
}

// IdempotencyPort claims client supplied keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Invalidator drops cached report data after a write.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// MetricsPort records workflow counters.
type MetricsPort interface {
	PaymentTransition(to string)
	AdviceGenerated(amount float64)
}

// Service implements the payment request workflow.
type Service struct {
	repo        RepositoryPort
	generator   AdviceGenerator
	store       storage.Store
	idempotency IdempotencyPort
	cache       Invalidator
	metrics     MetricsPort
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithIdempotency enables Idempotency-Key handling on Create.
func WithIdempotency(idem IdempotencyPort) Option {
	return func(s *Service) { s.idempotency = idem }
}

// WithCache bumps the report cache after every transition.
func WithCache(cache Invalidator) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics records transitions.
func WithMetrics(m MetricsPort) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the payment service.
func NewService(repo RepositoryPort, generator AdviceGenerator, store storage.Store, opts ...Option) *Service {
	s := &Service{repo: repo, generator: generator, store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a pending request for invoices of a single vendor and marks
// the invoices approved.
func (s *Service) Create(ctx context.Context, actor shared.Actor, in CreateInput) (Request, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsRequest); err != nil {
		return Request{}, err
	}
	ids := uniqueIDs(in.InvoiceIDs)
	if len(ids) == 0 {
		return Request{}, fmt.Errorf("%w: at least one invoice is required", shared.ErrValidation)
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if s.idempotency != nil && key != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return Request{}, err
		}
	}

	now := s.now()
	req := Request{
		Number:      RequestNumber(now),
		RequestedBy: actor.UserID,
		RequestedAt: now,
		Status:      StatusPending,
		Notes:       strings.TrimSpace(in.Notes),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		refs, err := tx.LockInvoices(ctx, ids)
		if err != nil {
			return err
		}
		if err := checkInvoices(ids, refs); err != nil {
			return err
		}
		id, err := tx.InsertRequest(ctx, req)
		if err != nil {
			return err
		}
		req.ID = id
		for _, invoiceID := range ids {
			if err := tx.InsertItem(ctx, id, invoiceID); err != nil {
				return err
			}
		}
		if err := tx.SetInvoiceStatus(ctx, ids, invoiceApproved); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditCreated, EntityType: "payment_request", EntityID: id,
			Details: fmt.Sprintf("Created payment request for %d invoices", len(ids)),
		})
	})
	if err != nil {
		if s.idempotency != nil && key != "" {
			if relErr := s.idempotency.Release(ctx, key, idempotencyModule); relErr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", relErr))
			}
		}
		return Request{}, fmt.Errorf("payments: create: %w", err)
	}
	s.transitioned(ctx, StatusPending)
	s.logger.Info("payment request created", slog.Int64("request_id", req.ID), slog.String("number", req.Number), slog.Int("invoices", len(ids)))
	return s.repo.GetRequest(ctx, req.ID)
}

func checkInvoices(ids []int64, refs []InvoiceRef) error {
	found := make(map[int64]InvoiceRef, len(refs))
	for _, ref := range refs {
		found[ref.ID] = ref
	}
	var vendorID int64
	for _, id := range ids {
		ref, ok := found[id]
		if !ok {
			return fmt.Errorf("%w: invoice %d", shared.ErrNotFound, id)
		}
		if ref.Status != invoicePending && ref.Status != invoiceApproved {
			return fmt.Errorf("%w: invoice %s is %s", shared.ErrValidation, ref.Number, ref.Status)
		}
		if vendorID == 0 {
			vendorID = ref.VendorID
			continue
		}
		if ref.VendorID != vendorID {
			return fmt.Errorf("%w: invoices must belong to the same vendor", shared.ErrValidation)
		}
	}
	return nil
}

// Approve moves a pending request to approved.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64) (Request, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsApprove); err != nil {
		return Request{}, err
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: request %s is %s", shared.ErrInvalidState, req.Number, req.Status)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.Decide(ctx, id, StatusApproved, actor.UserID, s.now(), nil)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %s is no longer pending", shared.ErrInvalidState, req.Number)
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditApproved, EntityType: "payment_request", EntityID: id,
			Details: "Approved payment request " + req.Number,
		})
	})
	if err != nil {
		return Request{}, fmt.Errorf("payments: approve: %w", err)
	}
	s.transitioned(ctx, StatusApproved)
	return s.repo.GetRequest(ctx, id)
}

// Reject moves a pending request to rejected and returns every linked
// invoice to pending.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, in RejectInput) (Request, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsApprove); err != nil {
		return Request{}, err
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("%w: request %s is %s", shared.ErrInvalidState, req.Number, req.Status)
	}
	reason := in.Reason
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.Decide(ctx, id, StatusRejected, actor.UserID, s.now(), &reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %s is no longer pending", shared.ErrInvalidState, req.Number)
		}
		ids, err := tx.RequestInvoiceIDs(ctx, id)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.SetInvoiceStatus(ctx, ids, invoicePending); err != nil {
				return err
			}
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditRejected, EntityType: "payment_request", EntityID: id,
			Details: "Rejected payment request " + req.Number,
		})
	})
	if err != nil {
		return Request{}, fmt.Errorf("payments: reject: %w", err)
	}
	s.transitioned(ctx, StatusRejected)
	return s.repo.GetRequest(ctx, id)
}

// GenerateAdvice renders the advice for an approved request, records it and
// marks the request processed. Nothing is written when rendering fails.
func (s *Service) GenerateAdvice(ctx context.Context, actor shared.Actor, id int64) (Advice, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsAdvice); err != nil {
		return Advice{}, err
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Advice{}, err
	}
	if req.Status != StatusApproved {
		return Advice{}, fmt.Errorf("%w: request %s is %s", shared.ErrInvalidState, req.Number, req.Status)
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return Advice{}, err
	}
	if len(items) == 0 {
		return Advice{}, fmt.Errorf("%w: request %s has no invoices", shared.ErrValidation, req.Number)
	}
	vendor, err := s.repo.GetVendor(ctx, items[0].VendorID)
	if err != nil {
		return Advice{}, err
	}
	total := items[0].TotalAmount
	for _, it := range items[1:] {
		total = total.Add(it.TotalAmount)
	}
	now := s.now()
	paymentDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	doc := AdviceDocument{
		AdviceNumber: AdviceNumber(now),
		PaymentDate:  paymentDate,
		Request:      req,
		Vendor:       vendor,
		Items:        items,
		Total:        total,
	}
	if s.generator == nil {
		return Advice{}, errors.New("payments: advice generator not configured")
	}
	file, err := s.generator.GenerateAdvice(ctx, doc)
	if err != nil {
		return Advice{}, fmt.Errorf("payments: render advice: %w", err)
	}

	advice := Advice{
		RequestID:     id,
		RequestNumber: req.Number,
		Number:        doc.AdviceNumber,
		TotalAmount:   total,
		GeneratedAt:   now,
		PaymentDate:   paymentDate,
		Status:        AdviceStatusPending,
		FilePath:      &file,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.MarkProcessed(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %s is no longer approved", shared.ErrInvalidState, req.Number)
		}
		adviceID, err := tx.InsertAdvice(ctx, advice)
		if err != nil {
			return err
		}
		advice.ID = adviceID
		return tx.InsertAudit(ctx, shared.AuditLog{
			UserID: actor.UserID, Action: shared.AuditAdviceGenerated, EntityType: "payment_request", EntityID: id,
			Details: fmt.Sprintf("Generated payment advice %s for %s", advice.Number, req.Number),
		})
	})
	if err != nil {
		s.discard(ctx, file)
		return Advice{}, fmt.Errorf("payments: generate advice: %w", err)
	}
	s.transitioned(ctx, StatusProcessed)
	if s.metrics != nil {
		s.metrics.AdviceGenerated(total.InexactFloat64())
	}
	return advice, nil
}

// Get returns a request with its invoices and advices.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Detail, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsView); err != nil {
		return Detail{}, err
	}
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	advices, err := s.repo.ListAdvices(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Request: req, Items: items, Advices: advices}, nil
}

// List returns requests, optionally filtered by status.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Request, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsView); err != nil {
		return nil, err
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown request status %q", shared.ErrValidation, filter.Status)
	}
	return s.repo.ListRequests(ctx, filter)
}

// ListPendingApprovals returns pending requests, oldest first.
func (s *Service) ListPendingApprovals(ctx context.Context, actor shared.Actor) ([]Request, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsApprove); err != nil {
		return nil, err
	}
	return s.repo.ListRequests(ctx, ListFilter{Status: StatusPending})
}

// ListAdvices returns generated advices; requestID 0 lists all of them.
func (s *Service) ListAdvices(ctx context.Context, actor shared.Actor, requestID int64) ([]Advice, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsView); err != nil {
		return nil, err
	}
	return s.repo.ListAdvices(ctx, requestID)
}

// OpenAdvice streams a generated advice file.
func (s *Service) OpenAdvice(ctx context.Context, actor shared.Actor, adviceID int64) (string, io.ReadCloser, error) {
	if err := rbac.Authorize(actor, shared.PermPaymentsView); err != nil {
		return "", nil, err
	}
	advice, err := s.repo.GetAdvice(ctx, adviceID)
	if err != nil {
		return "", nil, err
	}
	if advice.FilePath == nil || *advice.FilePath == "" {
		return "", nil, fmt.Errorf("%w: advice %s has no file", shared.ErrNotFound, advice.Number)
	}
	rc, err := s.store.Open(ctx, *advice.FilePath)
	if errors.Is(err, storage.ErrNotExist) {
		return "", nil, fmt.Errorf("%w: advice file %s", shared.ErrNotFound, *advice.FilePath)
	}
	if err != nil {
		return "", nil, err
	}
	return path.Base(*advice.FilePath), rc, nil
}

func (s *Service) transitioned(ctx context.Context, to string) {
	if s.metrics != nil {
		s.metrics.PaymentTransition(to)
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
}

func (s *Service) discard(ctx context.Context, file string) {
	if s.store == nil {
		return
	}
	if err := s.store.Remove(ctx, file); err != nil && !errors.Is(err, storage.ErrNotExist) {
		s.logger.Warn("remove orphaned advice", slog.String("file", file), slog.Any("error", err))
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusProcessed:
		return true
	}
	return false
}
