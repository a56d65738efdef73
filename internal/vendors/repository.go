package vendors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/shared"
)

// Repository provides PostgreSQL backed persistence for vendors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the writes performed inside one transaction.
type TxRepository interface {
	InsertVendor(ctx context.Context, v Vendor) (int64, error)
	UpdateVendor(ctx context.Context, v Vendor) error
	UnsetPrimaryBanks(ctx context.Context, vendorID, exceptBankID int64) error
	InsertBank(ctx context.Context, b BankDetail) (int64, error)
	UpdateBank(ctx context.Context, b BankDetail) error
	DeleteBank(ctx context.Context, vendorID, bankID int64) error
	InsertDocument(ctx context.Context, d Document) (int64, error)
	UpdateDocumentStatus(ctx context.Context, id int64, status string) error
	DeleteDocument(ctx context.Context, id int64) error
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

const vendorColumns = `v.vendor_id, v.vendor_name, v.contact_person, v.email, v.phone, v.address, v.tax_id,
    v.registration_number, v.status, v.external_ref, v.created_at, v.updated_at`

func scanVendor(row pgx.Row, extra ...any) (Vendor, error) {
	var v Vendor
	dest := append([]any{&v.ID, &v.Name, &v.ContactPerson, &v.Email, &v.Phone, &v.Address, &v.TaxID,
		&v.RegistrationNumber, &v.Status, &v.ExternalRef, &v.CreatedAt, &v.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, shared.ErrNotFound
		}
		return Vendor{}, err
	}
	return v, nil
}

// GetVendor loads a vendor by id.
func (r *Repository) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	return scanVendor(r.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors v WHERE v.vendor_id = $1`, id))
}

// ListVendors returns vendors with invoice counts and outstanding amounts.
func (r *Repository) ListVendors(ctx context.Context, filter ListFilter) ([]Summary, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("v.status = $%d", len(args)))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(v.vendor_name ILIKE $%[1]d OR v.contact_person ILIKE $%[1]d OR v.email ILIKE $%[1]d OR v.tax_id ILIKE $%[1]d)", len(args)))
	}
	query := `SELECT ` + vendorColumns + `,
    COUNT(i.invoice_id),
    COALESCE(SUM(i.total_amount) FILTER (WHERE i.status IN ('pending', 'approved')), 0)
FROM vendors v
LEFT JOIN invoices i ON i.vendor_id = v.vendor_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` GROUP BY v.vendor_id ORDER BY v.vendor_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var s Summary
		v, err := scanVendor(rows, &s.InvoiceCount, &s.OutstandingAmount)
		if err != nil {
			return nil, err
		}
		s.Vendor = v
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListBanks returns bank details of a vendor, primary first.
func (r *Repository) ListBanks(ctx context.Context, vendorID int64) ([]BankDetail, error) {
	rows, err := r.pool.Query(ctx, `SELECT bank_id, vendor_id, bank_name, account_number, ifsc_code, account_type, branch_name, is_primary, created_at
FROM vendor_bank_details WHERE vendor_id = $1 ORDER BY is_primary DESC, bank_id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankDetail
	for rows.Next() {
		var b BankDetail
		if err := rows.Scan(&b.ID, &b.VendorID, &b.BankName, &b.AccountNumber, &b.IFSCCode, &b.AccountType, &b.BranchName, &b.IsPrimary, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetDocument loads a KYC document by id.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	var d Document
	err := r.pool.QueryRow(ctx, `SELECT document_id, vendor_id, document_type, document_path, status, uploaded_at
FROM vendor_documents WHERE document_id = $1`, id).Scan(&d.ID, &d.VendorID, &d.Type, &d.Path, &d.Status, &d.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.ErrNotFound
	}
	return d, err
}

// ListDocuments returns the KYC documents of a vendor, newest first.
func (r *Repository) ListDocuments(ctx context.Context, vendorID int64) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT document_id, vendor_id, document_type, document_path, status, uploaded_at
FROM vendor_documents WHERE vendor_id = $1 ORDER BY uploaded_at DESC, document_id DESC`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.VendorID, &d.Type, &d.Path, &d.Status, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertVendor(ctx context.Context, v Vendor) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendors (vendor_name, contact_person, email, phone, address, tax_id, registration_number, status, external_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING vendor_id`,
		v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.TaxID, v.RegistrationNumber, v.Status, v.ExternalRef).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: vendor external reference already imported", shared.ErrConflict)
	}
	return id, err
}

func (t *txRepo) UpdateVendor(ctx context.Context, v Vendor) error {
	tag, err := t.tx.Exec(ctx, `UPDATE vendors SET vendor_name = $2, contact_person = $3, email = $4, phone = $5, address = $6,
    tax_id = $7, registration_number = $8, status = $9, updated_at = NOW()
WHERE vendor_id = $1`, v.ID, v.Name, v.ContactPerson, v.Email, v.Phone, v.Address, v.TaxID, v.RegistrationNumber, v.Status)
	return affectedOne(tag, err)
}

func (t *txRepo) UnsetPrimaryBanks(ctx context.Context, vendorID, exceptBankID int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE vendor_bank_details SET is_primary = FALSE WHERE vendor_id = $1 AND bank_id <> $2 AND is_primary`, vendorID, exceptBankID)
	return err
}

func (t *txRepo) InsertBank(ctx context.Context, b BankDetail) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_bank_details (vendor_id, bank_name, account_number, ifsc_code, account_type, branch_name, is_primary)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING bank_id`,
		b.VendorID, b.BankName, b.AccountNumber, b.IFSCCode, b.AccountType, b.BranchName, b.IsPrimary).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return 0, fmt.Errorf("%w: vendor %d", shared.ErrNotFound, b.VendorID)
	}
	return id, err
}

func (t *txRepo) UpdateBank(ctx context.Context, b BankDetail) error {
	tag, err := t.tx.Exec(ctx, `UPDATE vendor_bank_details SET bank_name = $3, account_number = $4, ifsc_code = $5, account_type = $6,
    branch_name = $7, is_primary = $8
WHERE bank_id = $1 AND vendor_id = $2`, b.ID, b.VendorID, b.BankName, b.AccountNumber, b.IFSCCode, b.AccountType, b.BranchName, b.IsPrimary)
	return affectedOne(tag, err)
}

func (t *txRepo) DeleteBank(ctx context.Context, vendorID, bankID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM vendor_bank_details WHERE bank_id = $1 AND vendor_id = $2`, bankID, vendorID)
	return affectedOne(tag, err)
}

func (t *txRepo) InsertDocument(ctx context.Context, d Document) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO vendor_documents (vendor_id, document_type, document_path, status)
VALUES ($1, $2, $3, $4) RETURNING document_id`, d.VendorID, d.Type, d.Path, d.Status).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE vendor_documents SET status = $2 WHERE document_id = $1`, id, status)
	return affectedOne(tag, err)
}

func (t *txRepo) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM vendor_documents WHERE document_id = $1`, id)
	return affectedOne(tag, err)
}

func (t *txRepo) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, t.tx, log)
}

func affectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
