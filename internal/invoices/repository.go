package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	VendorStatus(ctx context.Context, vendorID int64) (string, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	SetFilePath(ctx context.Context, id int64, path string) error
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

const invoiceColumns = `i.invoice_id, i.vendor_id, v.vendor_name, i.invoice_number, i.invoice_date, i.due_date,
    i.amount, i.tax_amount, i.total_amount, i.description, i.status, i.invoice_file_path, i.external_ref, i.created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.VendorID, &inv.VendorName, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.DueDate,
		&inv.Amount, &inv.TaxAmount, &inv.TotalAmount, &inv.Description, &inv.Status, &inv.FilePath, &inv.ExternalRef, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, err
}

// GetInvoice loads an invoice with its vendor name.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM invoices i JOIN vendors v ON v.vendor_id = i.vendor_id WHERE i.invoice_id = $1`, id))
}

// ListInvoices returns invoices ordered by due date.
func (r *Repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("i.status = $%d", len(args)))
	}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		where = append(where, fmt.Sprintf("i.vendor_id = $%d", len(args)))
	}
	if filter.DueBefore != nil {
		args = append(args, *filter.DueBefore)
		where = append(where, fmt.Sprintf("i.due_date <= $%d", len(args)))
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices i JOIN vendors v ON v.vendor_id = i.vendor_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY i.due_date, i.invoice_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (t *txRepo) VendorStatus(ctx context.Context, vendorID int64) (string, error) {
	var status string
	err := t.tx.QueryRow(ctx, `SELECT status FROM vendors WHERE vendor_id = $1 FOR SHARE`, vendorID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: vendor %d", shared.ErrNotFound, vendorID)
	}
	return status, err
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO invoices (vendor_id, invoice_number, invoice_date, due_date, amount, tax_amount, total_amount, description, status, external_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING invoice_id`,
		inv.VendorID, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate, inv.Amount, inv.TaxAmount, inv.TotalAmount,
		inv.Description, inv.Status, inv.ExternalRef).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: invoice external reference already imported", shared.ErrConflict)
	}
	return id, err
}

func (t *txRepo) UpdateInvoice(ctx context.Context, inv Invoice) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET vendor_id = $2, invoice_number = $3, invoice_date = $4, due_date = $5,
    amount = $6, tax_amount = $7, total_amount = $8, description = $9, status = $10
WHERE invoice_id = $1`, inv.ID, inv.VendorID, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate,
		inv.Amount, inv.TaxAmount, inv.TotalAmount, inv.Description, inv.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SetFilePath(ctx context.Context, id int64, path string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET invoice_file_path = $2 WHERE invoice_id = $1`, id, path)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, t.tx, log)
}
