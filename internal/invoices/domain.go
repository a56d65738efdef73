package invoices

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusPaid     = "paid"
)

// DefaultTermDays is applied when an invoice has no due date.
const DefaultTermDays = 30

const dateLayout = "2006-01-02"

// Invoice is a vendor bill awaiting payment.
type Invoice struct {
	ID            int64           `json:"invoice_id"`
	VendorID      int64           `json:"vendor_id"`
	VendorName    string          `json:"vendor_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	FilePath      *string         `json:"invoice_file_path,omitempty"`
	ExternalRef   *string         `json:"external_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DaysToDue     int             `json:"days_to_due"`
}

// Input carries invoice fields for create and update. Dates use YYYY-MM-DD.
type Input struct {
	VendorID      int64           `json:"vendor_id" validate:"required,gt=0"`
	InvoiceNumber string          `json:"invoice_number" validate:"required,max=100"`
	InvoiceDate   string          `json:"invoice_date" validate:"required"`
	DueDate       string          `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Description   string          `json:"description"`
	Status        string          `json:"status" validate:"omitempty,oneof=pending approved rejected paid"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status    string
	VendorID  int64
	DueBefore *time.Time
}

// DaysBetween returns whole calendar days from a to b, ignoring time of day.
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
