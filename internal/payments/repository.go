package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Repository provides PostgreSQL backed persistence for payment requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	LockInvoices(ctx context.Context, ids []int64) ([]InvoiceRef, error)
	InsertRequest(ctx context.Context, req Request) (int64, error)
	InsertItem(ctx context.Context, requestID, invoiceID int64) error
	SetInvoiceStatus(ctx context.Context, ids []int64, status string) error
	RequestInvoiceIDs(ctx context.Context, requestID int64) ([]int64, error)
	// Decide moves a pending request to approved or rejected. It reports
	// false when the request was no longer pending.
	Decide(ctx context.Context, requestID int64, status string, actorID int64, at time.Time, reason *string) (bool, error)
	// MarkProcessed moves an approved request to processed. It reports false
	// when the request was no longer approved.
	MarkProcessed(ctx context.Context, requestID int64) (bool, error)
	InsertAdvice(ctx context.Context, advice Advice) (int64, error)
	InsertAudit(ctx context.Context, log shared.AuditLog) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const requestSelect = `SELECT pr.request_id, pr.request_number, pr.requested_by, COALESCE(u1.full_name, u1.username, ''),
    pr.requested_at, pr.status, pr.approved_by, COALESCE(u2.full_name, u2.username, ''), pr.approved_at,
    pr.rejection_reason, pr.notes, COALESCE(MIN(v.vendor_name), ''), COUNT(pri.invoice_id),
    COALESCE(SUM(i.total_amount), 0)
FROM payment_requests pr
LEFT JOIN users u1 ON u1.user_id = pr.requested_by
LEFT JOIN users u2 ON u2.user_id = pr.approved_by
LEFT JOIN payment_request_items pri ON pri.request_id = pr.request_id
LEFT JOIN invoices i ON i.invoice_id = pri.invoice_id
LEFT JOIN vendors v ON v.vendor_id = i.vendor_id`

const requestGroup = ` GROUP BY pr.request_id, u1.full_name, u1.username, u2.full_name, u2.username`

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	err := row.Scan(&req.ID, &req.Number, &req.RequestedBy, &req.RequesterName, &req.RequestedAt, &req.Status,
		&req.ApprovedBy, &req.ApproverName, &req.ApprovedAt, &req.RejectionReason, &req.Notes, &req.VendorName,
		&req.InvoiceCount, &req.TotalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, shared.ErrNotFound
	}
	return req, err
}

// GetRequest loads one request with its aggregates.
func (r *Repository) GetRequest(ctx context.Context, id int64) (Request, error) {
	return scanRequest(r.pool.QueryRow(ctx, requestSelect+` WHERE pr.request_id = $1`+requestGroup, id))
}

// ListRequests returns requests, newest first, or oldest first when
// listing pending approvals.
func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]Request, error) {
	sql := requestSelect
	var args []any
	order := ` ORDER BY pr.requested_at DESC, pr.request_id DESC`
	if filter.Status != "" {
		args = append(args, filter.Status)
		sql += fmt.Sprintf(` WHERE pr.status = $%d`, len(args))
		if filter.Status == StatusPending {
			order = ` ORDER BY pr.requested_at ASC, pr.request_id ASC`
		}
	}
	rows, err := r.pool.Query(ctx, sql+requestGroup+order, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListItems returns the invoices of a request.
func (r *Repository) ListItems(ctx context.Context, requestID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT pri.item_id, pri.request_id, i.invoice_id, i.invoice_number, i.invoice_date,
    i.due_date, i.amount, i.tax_amount, i.total_amount, i.status, v.vendor_id, v.vendor_name
FROM payment_request_items pri
JOIN invoices i ON i.invoice_id = pri.invoice_id
JOIN vendors v ON v.vendor_id = i.vendor_id
WHERE pri.request_id = $1
ORDER BY i.due_date, i.invoice_id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.RequestID, &it.InvoiceID, &it.InvoiceNumber, &it.InvoiceDate, &it.DueDate,
			&it.Amount, &it.TaxAmount, &it.TotalAmount, &it.InvoiceStatus, &it.VendorID, &it.VendorName); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const adviceSelect = `SELECT a.advice_id, a.request_id, pr.request_number, a.advice_number, a.total_amount,
    a.generated_at, a.payment_date, a.status, a.advice_file_path
FROM payment_advices a
JOIN payment_requests pr ON pr.request_id = a.request_id`

func scanAdvice(row pgx.Row) (Advice, error) {
	var a Advice
	var paymentDate *time.Time
	err := row.Scan(&a.ID, &a.RequestID, &a.RequestNumber, &a.Number, &a.TotalAmount, &a.GeneratedAt,
		&paymentDate, &a.Status, &a.FilePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return Advice{}, shared.ErrNotFound
	}
	if paymentDate != nil {
		a.PaymentDate = *paymentDate
	}
	return a, err
}

// ListAdvices returns advices of one request, or all advices when requestID
// is zero, newest first.
func (r *Repository) ListAdvices(ctx context.Context, requestID int64) ([]Advice, error) {
	sql := adviceSelect
	var args []any
	if requestID > 0 {
		sql += ` WHERE a.request_id = $1`
		args = append(args, requestID)
	}
	rows, err := r.pool.Query(ctx, sql+` ORDER BY a.generated_at DESC, a.advice_id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Advice
	for rows.Next() {
		a, err := scanAdvice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAdvice loads one advice.
func (r *Repository) GetAdvice(ctx context.Context, id int64) (Advice, error) {
	return scanAdvice(r.pool.QueryRow(ctx, adviceSelect+` WHERE a.advice_id = $1`, id))
}

// GetVendor loads the payee with its primary bank account, if any.
func (r *Repository) GetVendor(ctx context.Context, vendorID int64) (Vendor, error) {
	var v Vendor
	err := r.pool.QueryRow(ctx, `SELECT vendor_id, vendor_name, contact_person, email, phone, address, tax_id
FROM vendors WHERE vendor_id = $1`, vendorID).Scan(&v.ID, &v.Name, &v.ContactPerson, &v.Email, &v.Phone, &v.Address, &v.TaxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, shared.ErrNotFound
	}
	if err != nil {
		return Vendor{}, err
	}
	var b Bank
	err = r.pool.QueryRow(ctx, `SELECT bank_name, account_number, ifsc_code, account_type, branch_name
FROM vendor_bank_details WHERE vendor_id = $1 AND is_primary LIMIT 1`, vendorID).
		Scan(&b.BankName, &b.AccountNumber, &b.IFSCCode, &b.AccountType, &b.BranchName)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return Vendor{}, err
	default:
		v.Bank = &b
	}
	return v, nil
}

func (t *txRepo) LockInvoices(ctx context.Context, ids []int64) ([]InvoiceRef, error) {
	rows, err := t.tx.Query(ctx, `SELECT invoice_id, invoice_number, vendor_id, status, total_amount
FROM invoices WHERE invoice_id = ANY($1) ORDER BY invoice_id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvoiceRef
	for rows.Next() {
		var ref InvoiceRef
		if err := rows.Scan(&ref.ID, &ref.Number, &ref.VendorID, &ref.Status, &ref.TotalAmount); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertRequest(ctx context.Context, req Request) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_requests (request_number, requested_by, requested_at, status, notes)
VALUES ($1, $2, $3, $4, $5) RETURNING request_id`, req.Number, req.RequestedBy, req.RequestedAt, req.Status, req.Notes).Scan(&id)
	return id, err
}

func (t *txRepo) InsertItem(ctx context.Context, requestID, invoiceID int64) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payment_request_items (request_id, invoice_id) VALUES ($1, $2)`, requestID, invoiceID)
	return err
}

func (t *txRepo) SetInvoiceStatus(ctx context.Context, ids []int64, status string) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2 WHERE invoice_id = ANY($1)`, ids, status)
	return err
}

func (t *txRepo) RequestInvoiceIDs(ctx context.Context, requestID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT invoice_id FROM payment_request_items WHERE request_id = $1 ORDER BY item_id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *txRepo) Decide(ctx context.Context, requestID int64, status string, actorID int64, at time.Time, reason *string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_requests
SET status = $2, approved_by = $3, approved_at = $4, rejection_reason = $5
WHERE request_id = $1 AND status = 'pending'`, requestID, status, actorID, at, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) MarkProcessed(ctx context.Context, requestID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE payment_requests SET status = 'processed'
WHERE request_id = $1 AND status = 'approved'`, requestID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertAdvice(ctx context.Context, advice Advice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_advices (request_id, advice_number, total_amount, generated_at, payment_date, status, advice_file_path)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING advice_id`, advice.RequestID, advice.Number, advice.TotalAmount,
		advice.GeneratedAt, advice.PaymentDate, advice.Status, advice.FilePath).Scan(&id)
	return id, err
}

func (t *txRepo) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, t.tx, log)
}
