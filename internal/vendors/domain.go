package vendors

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor statuses.
const (
	StatusActive      = "active"
	StatusInactive    = "inactive"
	StatusBlacklisted = "blacklisted"
)

// KYC document review statuses.
const (
	DocumentPending  = "pending"
	DocumentApproved = "approved"
	DocumentRejected = "rejected"
)

// DocumentTypes lists the accepted KYC document types.
var DocumentTypes = []string{
	"PAN Card",
	"GST Certificate",
	"Incorporation Certificate",
	"Address Proof",
	"Bank Statement",
	"Other",
}

// Vendor is a supplier invoices are raised against.
type Vendor struct {
	ID                 int64     `json:"vendor_id"`
	Name               string    `json:"vendor_name"`
	ContactPerson      string    `json:"contact_person"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Address            string    `json:"address"`
	TaxID              string    `json:"tax_id"`
	RegistrationNumber string    `json:"registration_number"`
	Status             string    `json:"status"`
	ExternalRef        *string   `json:"external_ref,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Summary is a vendor row in listings with its open exposure.
type Summary struct {
	Vendor
	InvoiceCount      int             `json:"invoice_count"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// BankDetail is a payout account of a vendor.
type BankDetail struct {
	ID            int64     `json:"bank_id"`
	VendorID      int64     `json:"vendor_id"`
	BankName      string    `json:"bank_name"`
	AccountNumber string    `json:"account_number"`
	IFSCCode      string    `json:"ifsc_code"`
	AccountType   string    `json:"account_type"`
	BranchName    string    `json:"branch_name"`
	IsPrimary     bool      `json:"is_primary"`
	CreatedAt     time.Time `json:"created_at"`
}

// Document is an uploaded KYC file.
type Document struct {
	ID         int64     `json:"document_id"`
	VendorID   int64     `json:"vendor_id"`
	Type       string    `json:"document_type"`
	Path       string    `json:"document_path"`
	Status     string    `json:"status"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// VendorInput carries vendor fields for create and update.
type VendorInput struct {
	Name               string `json:"vendor_name" validate:"required,max=200"`
	ContactPerson      string `json:"contact_person" validate:"max=200"`
	Email              string `json:"email" validate:"omitempty,email"`
	Phone              string `json:"phone" validate:"max=40"`
	Address            string `json:"address"`
	TaxID              string `json:"tax_id" validate:"max=50"`
	RegistrationNumber string `json:"registration_number" validate:"max=50"`
	Status             string `json:"status" validate:"omitempty,oneof=active inactive blacklisted"`
}

// BankInput carries bank detail fields.
type BankInput struct {
	BankName      string `json:"bank_name" validate:"required,max=200"`
	AccountNumber string `json:"account_number" validate:"required,max=50"`
	IFSCCode      string `json:"ifsc_code" validate:"max=20"`
	AccountType   string `json:"account_type" validate:"max=50"`
	BranchName    string `json:"branch_name" validate:"max=200"`
	IsPrimary     bool   `json:"is_primary"`
}

// ListFilter narrows vendor listings.
type ListFilter struct {
	Status string
	Search string
}
