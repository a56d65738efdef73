package erpsync

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sync kinds. They double as lock names and metric labels.
const (
	KindVendors  = "vendors"
	KindInvoices = "invoices"
)

const refPrefix = "tally:"

// VendorRecord is a vendor ready to be upserted by external reference.
type VendorRecord struct {
	ExternalRef   string
	Name          string
	ContactPerson string
	Email         string
	Phone         string
	Address       string
	TaxID         string
}

// InvoiceRecord is an invoice inserted when its external reference is new.
type InvoiceRecord struct {
	ExternalRef   string
	VendorRef     string
	VendorID      int64
	InvoiceNumber string
	InvoiceDate   time.Time
	DueDate       time.Time
	Amount        decimal.Decimal
	Description   string
}

// Result reports one sync run.
type Result struct {
	Kind     string `json:"kind"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

func vendorRef(ledger string) string {
	return refPrefix + ledger
}

func invoiceRef(party, bill string) string {
	return refPrefix + party + "/" + bill
}
