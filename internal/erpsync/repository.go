package erpsync

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Repository persists imported records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional write surface of an import.
type TxRepository interface {
	UpsertVendor(ctx context.Context, v VendorRecord) (int64, error)
	VendorIDByRef(ctx context.Context, ref string) (int64, error)
	InsertInvoiceIfNew(ctx context.Context, inv InvoiceRecord) (bool, error)
	InsertAudit(ctx context.Context, log shared.AuditLog) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn within a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) UpsertVendor(ctx context.Context, v VendorRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendors (vendor_name, contact_person, email, phone, address, tax_id, status, external_ref)
VALUES ($1, $2, $3, $4, $5, $6, 'active', $7)
ON CONFLICT (external_ref) DO UPDATE SET vendor_name = EXCLUDED.vendor_name,
    contact_person = EXCLUDED.contact_person, email = EXCLUDED.email, phone = EXCLUDED.phone,
    address = EXCLUDED.address, tax_id = EXCLUDED.tax_id, updated_at = NOW()
RETURNING vendor_id`, v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.TaxID, v.ExternalRef).Scan(&id)
	return id, err
}

func (t *txRepo) VendorIDByRef(ctx context.Context, ref string) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT vendor_id FROM vendors WHERE external_ref = $1`, ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

func (t *txRepo) InsertInvoiceIfNew(ctx context.Context, inv InvoiceRecord) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO invoices (vendor_id, invoice_number, invoice_date, due_date, amount, tax_amount,
    total_amount, description, status, external_ref)
VALUES ($1, $2, $3, $4, $5, 0, $5, $6, 'pending', $7)
ON CONFLICT (external_ref) DO NOTHING`,
		inv.VendorID, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate, inv.Amount, inv.Description, inv.ExternalRef)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, t.tx, log)
}
