package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/payables/internal/aging"
)

// Repository runs the reporting queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DashboardCounts loads the headline counters.
func (r *Repository) DashboardCounts(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	err := r.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM vendors WHERE status = 'active'),
    (SELECT COUNT(*) FROM invoices WHERE status = 'pending'),
    (SELECT COALESCE(SUM(total_amount), 0) FROM invoices WHERE status IN ('pending', 'approved')),
    (SELECT COUNT(*) FROM payment_requests WHERE status = 'pending')`).
		Scan(&d.ActiveVendors, &d.PendingInvoices, &d.OutstandingAmount, &d.PendingApprovals)
	return d, err
}

// OpenInvoices returns every pending or approved invoice.
func (r *Repository) OpenInvoices(ctx context.Context) ([]aging.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.invoice_id, i.invoice_number, i.vendor_id, v.vendor_name, i.invoice_date,
    i.due_date, i.total_amount, i.status
FROM invoices i
JOIN vendors v ON v.vendor_id = i.vendor_id
WHERE i.status IN ('pending', 'approved')
ORDER BY i.due_date, i.invoice_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []aging.Invoice
	for rows.Next() {
		var inv aging.Invoice
		if err := rows.Scan(&inv.InvoiceID, &inv.InvoiceNumber, &inv.VendorID, &inv.VendorName, &inv.InvoiceDate,
			&inv.DueDate, &inv.TotalAmount, &inv.Status); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// VendorTotals aggregates invoices of active vendors, largest pending
// amount first.
func (r *Repository) VendorTotals(ctx context.Context) ([]VendorSummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT v.vendor_id, v.vendor_name,
    COUNT(i.invoice_id),
    COALESCE(SUM(i.total_amount), 0),
    COUNT(i.invoice_id) FILTER (WHERE i.status = 'paid'),
    COALESCE(SUM(i.total_amount) FILTER (WHERE i.status = 'paid'), 0),
    COUNT(i.invoice_id) FILTER (WHERE i.status IN ('pending', 'approved')),
    COALESCE(SUM(i.total_amount) FILTER (WHERE i.status IN ('pending', 'approved')), 0)
FROM vendors v
LEFT JOIN invoices i ON i.vendor_id = v.vendor_id
WHERE v.status = 'active'
GROUP BY v.vendor_id, v.vendor_name
ORDER BY 8 DESC, v.vendor_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VendorSummaryRow
	for rows.Next() {
		var row VendorSummaryRow
		if err := rows.Scan(&row.VendorID, &row.VendorName, &row.TotalInvoices, &row.TotalAmount, &row.PaidInvoices,
			&row.PaidAmount, &row.PendingInvoices, &row.PendingAmount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PaymentHistory lists advices generated within [from, to).
func (r *Repository) PaymentHistory(ctx context.Context, from, to time.Time) ([]PaymentHistoryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.advice_id, a.advice_number, pr.request_number, a.generated_at,
    COALESCE(a.payment_date, a.generated_at::date), a.total_amount, a.status,
    COALESCE(u.full_name, u.username, ''),
    COUNT(pri.invoice_id),
    COALESCE(STRING_AGG(DISTINCT v.vendor_name, ', '), '')
FROM payment_advices a
JOIN payment_requests pr ON pr.request_id = a.request_id
LEFT JOIN users u ON u.user_id = pr.approved_by
LEFT JOIN payment_request_items pri ON pri.request_id = pr.request_id
LEFT JOIN invoices i ON i.invoice_id = pri.invoice_id
LEFT JOIN vendors v ON v.vendor_id = i.vendor_id
WHERE a.generated_at >= $1 AND a.generated_at < $2
GROUP BY a.advice_id, pr.request_number, u.full_name, u.username
ORDER BY a.generated_at DESC, a.advice_id DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentHistoryRow
	for rows.Next() {
		var row PaymentHistoryRow
		if err := rows.Scan(&row.AdviceID, &row.AdviceNumber, &row.RequestNumber, &row.GeneratedAt, &row.PaymentDate,
			&row.TotalAmount, &row.Status, &row.ApproverName, &row.InvoiceCount, &row.VendorNames); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// StatusTotals counts invoices per status.
func (r *Repository) StatusTotals(ctx context.Context) ([]StatusRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
FROM invoices GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusRow
	for rows.Next() {
		var row StatusRow
		if err := rows.Scan(&row.Status, &row.Count, &row.Amount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// StatusTrend counts invoices per invoice month and status since since.
func (r *Repository) StatusTrend(ctx context.Context, since time.Time) ([]MonthStatusRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT TO_CHAR(invoice_date, 'YYYY-MM') AS month, status, COUNT(*),
    COALESCE(SUM(total_amount), 0)
FROM invoices
WHERE invoice_date >= $1
GROUP BY month, status
ORDER BY month, status`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthStatusRow
	for rows.Next() {
		var row MonthStatusRow
		if err := rows.Scan(&row.Month, &row.Status, &row.Count, &row.Amount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InvoicesPerMonth totals invoices by invoice month since since.
func (r *Repository) InvoicesPerMonth(ctx context.Context, since time.Time) ([]MonthTotal, error) {
	return r.monthTotals(ctx, `SELECT TO_CHAR(invoice_date, 'YYYY-MM') AS month, COUNT(*), COALESCE(SUM(total_amount), 0)
FROM invoices WHERE invoice_date >= $1 GROUP BY month ORDER BY month`, since)
}

// PaymentsPerMonth totals advices by generation month since since.
func (r *Repository) PaymentsPerMonth(ctx context.Context, since time.Time) ([]MonthTotal, error) {
	return r.monthTotals(ctx, `SELECT TO_CHAR(generated_at, 'YYYY-MM') AS month, COUNT(*), COALESCE(SUM(total_amount), 0)
FROM payment_advices WHERE generated_at >= $1 GROUP BY month ORDER BY month`, since)
}

func (r *Repository) monthTotals(ctx context.Context, sql string, since time.Time) ([]MonthTotal, error) {
	rows, err := r.pool.Query(ctx, sql, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthTotal
	for rows.Next() {
		var row MonthTotal
		if err := rows.Scan(&row.Month, &row.Count, &row.Amount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
