// Package reports serves dashboard figures and payables reports, cached per
// data version.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/payables/internal/aging"
)

// Dashboard holds the headline figures of the landing page.
type Dashboard struct {
	ActiveVendors     int             `json:"active_vendors"`
	PendingInvoices   int             `json:"pending_invoices"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	PendingApprovals  int             `json:"pending_approvals"`
	Aging             []aging.Summary `json:"aging"`
}

// VendorSummaryRow aggregates the invoices of one vendor.
type VendorSummaryRow struct {
	VendorID        int64           `json:"vendor_id"`
	VendorName      string          `json:"vendor_name"`
	TotalInvoices   int             `json:"total_invoices"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidInvoices    int             `json:"paid_invoices"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	PendingInvoices int             `json:"pending_invoices"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
}

// VendorSummary lists active vendors by pending amount, plus a total row.
type VendorSummary struct {
	Rows  []VendorSummaryRow `json:"rows"`
	Total VendorSummaryRow   `json:"total"`
}

// PaymentHistoryRow is one generated advice.
type PaymentHistoryRow struct {
	AdviceID      int64           `json:"advice_id"`
	AdviceNumber  string          `json:"advice_number"`
	RequestNumber string          `json:"request_number"`
	GeneratedAt   time.Time       `json:"generated_at"`
	PaymentDate   time.Time       `json:"payment_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	ApproverName  string          `json:"approver_name"`
	InvoiceCount  int             `json:"invoice_count"`
	VendorNames   string          `json:"vendor_names"`
}

// StatusRow counts invoices in one status.
type StatusRow struct {
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthStatusRow counts invoices per invoice month and status.
type MonthStatusRow struct {
	Month  string          `json:"month"`
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// StatusSummary is the invoice status breakdown with its monthly trend.
type StatusSummary struct {
	ByStatus []StatusRow      `json:"by_status"`
	Trend    []MonthStatusRow `json:"trend"`
}

// MonthTotal is a count and amount for one month.
type MonthTotal struct {
	Month  string          `json:"month"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// TrendRow compares invoices received and payments made in one month.
type TrendRow struct {
	Month         string          `json:"month"`
	InvoiceCount  int             `json:"invoice_count"`
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	PaymentCount  int             `json:"payment_count"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
}

const monthLayout = "2006-01"
