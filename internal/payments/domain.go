package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request statuses. A request moves pending -> approved -> processed or
// pending -> rejected; there are no other transitions.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusProcessed = "processed"
)

// AdviceStatusPending is the status of a freshly generated advice.
const AdviceStatusPending = "pending"

// Invoice statuses touched by the workflow.
const (
	invoicePending  = "pending"
	invoiceApproved = "approved"
)

const idempotencyModule = "payment_request"

// Request is a payment request with its aggregates.
type Request struct {
	ID              int64           `json:"request_id"`
	Number          string          `json:"request_number"`
	RequestedBy     int64           `json:"requested_by"`
	RequesterName   string          `json:"requester_name"`
	RequestedAt     time.Time       `json:"requested_at"`
	Status          string          `json:"status"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	ApproverName    string          `json:"approver_name,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	Notes           string          `json:"notes"`
	VendorName      string          `json:"vendor_name"`
	InvoiceCount    int             `json:"invoice_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// Item links one invoice to a request.
type Item struct {
	ID            int64           `json:"item_id"`
	RequestID     int64           `json:"request_id"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	InvoiceStatus string          `json:"invoice_status"`
	VendorID      int64           `json:"vendor_id"`
	VendorName    string          `json:"vendor_name"`
}

// Advice records a generated payment advice.
type Advice struct {
	ID            int64           `json:"advice_id"`
	RequestID     int64           `json:"request_id"`
	RequestNumber string          `json:"request_number,omitempty"`
	Number        string          `json:"advice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	GeneratedAt   time.Time       `json:"generated_at"`
	PaymentDate   time.Time       `json:"payment_date"`
	Status        string          `json:"status"`
	FilePath      *string         `json:"advice_file_path,omitempty"`
}

// Detail is a request with its items and advices.
type Detail struct {
	Request
	Items   []Item   `json:"items"`
	Advices []Advice `json:"advices"`
}

// InvoiceRef is the locked view of an invoice used when building a request.
type InvoiceRef struct {
	ID          int64
	Number      string
	VendorID    int64
	Status      string
	TotalAmount decimal.Decimal
}

// Bank is the vendor account printed on an advice.
type Bank struct {
	BankName      string
	AccountNumber string
	IFSCCode      string
	AccountType   string
	BranchName    string
}

// Vendor is the payee printed on an advice.
type Vendor struct {
	ID            int64
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
	TaxID         string
	Bank          *Bank
}

// AdviceDocument is everything an advice renderer needs.
type AdviceDocument struct {
	AdviceNumber string
	PaymentDate  time.Time
	Request      Request
	Vendor       Vendor
	Items        []Item
	Total        decimal.Decimal
}

// CreateInput describes a new payment request.
type CreateInput struct {
	InvoiceIDs     []int64 `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	Notes          string  `json:"notes" validate:"max=2000"`
	IdempotencyKey string  `json:"-"`
}

// RejectInput carries the rejection reason, stored verbatim.
type RejectInput struct {
	Reason string `json:"reason"`
}

// ListFilter narrows request listings.
type ListFilter struct {
	Status string
}

// RequestNumber formats a request number for t (minute resolution).
func RequestNumber(t time.Time) string {
	return "PR" + t.Format("200601021504")
}

// AdviceNumber formats an advice number for t (minute resolution).
func AdviceNumber(t time.Time) string {
	return "PA" + t.Format("200601021504")
}
