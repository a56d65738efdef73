// Package aging classifies open vendor invoices by how long they are past due.
package aging

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Bucket labels in report order.
const (
	BucketCurrent = "Current"
	Bucket1To30   = "1-30 Days"
	Bucket31To60  = "31-60 Days"
	Bucket61To90  = "61-90 Days"
	BucketOver90  = "Over 90 Days"
)

// Buckets returns the bucket labels in the order reports emit them.
func Buckets() []string {
	return []string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}
}

// Invoice is the slice of an invoice the aging calculation needs.
type Invoice struct {
	InvoiceID     int64
	InvoiceNumber string
	VendorID      int64
	VendorName    string
	InvoiceDate   time.Time
	DueDate       time.Time
	TotalAmount   decimal.Decimal
	Status        string
}

// Open reports whether the invoice still counts towards payables.
func (i Invoice) Open() bool {
	return i.Status == "pending" || i.Status == "approved"
}

// Summary aggregates one bucket.
type Summary struct {
	Bucket string          `json:"bucket"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Row is one open invoice with its computed age.
type Row struct {
	Invoice
	DaysOverdue int    `json:"days_overdue"`
	Bucket      string `json:"bucket"`
}

// VendorRow holds one vendor's amounts per bucket, keyed by bucket label.
type VendorRow struct {
	VendorID   int64                      `json:"vendor_id"`
	VendorName string                     `json:"vendor_name"`
	Amounts    map[string]decimal.Decimal `json:"amounts"`
	Total      decimal.Decimal            `json:"total"`
}

// Report is the complete aging picture as of one date.
type Report struct {
	AsOf    time.Time       `json:"as_of"`
	Summary []Summary       `json:"summary"`
	Vendors []VendorRow     `json:"vendors"`
	Details []Row           `json:"details"`
	Total   decimal.Decimal `json:"total"`
}

// DaysOverdue returns whole calendar days between due and asOf. Negative
// values mean the invoice is not yet due.
func DaysOverdue(due, asOf time.Time) int {
	dy, dm, dd := due.Date()
	ay, am, ad := asOf.Date()
	d := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	a := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(d).Hours() / 24)
}

// BucketFor maps days overdue to its bucket label.
func BucketFor(days int) string {
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// Summarize buckets the open invoices. Every bucket is present in the result,
// in Buckets order, even when empty.
func Summarize(invoices []Invoice, asOf time.Time) []Summary {
	index := make(map[string]int, 5)
	out := make([]Summary, 0, 5)
	for i, b := range Buckets() {
		index[b] = i
		out = append(out, Summary{Bucket: b, Amount: decimal.Zero})
	}
	for _, inv := range invoices {
		if !inv.Open() {
			continue
		}
		s := &out[index[BucketFor(DaysOverdue(inv.DueDate, asOf))]]
		s.Count++
		s.Amount = s.Amount.Add(inv.TotalAmount)
	}
	return out
}

// Details returns the open invoices with their age, oldest due date first.
func Details(invoices []Invoice, asOf time.Time) []Row {
	rows := make([]Row, 0, len(invoices))
	for _, inv := range invoices {
		if !inv.Open() {
			continue
		}
		days := DaysOverdue(inv.DueDate, asOf)
		rows = append(rows, Row{Invoice: inv, DaysOverdue: days, Bucket: BucketFor(days)})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].DueDate.Equal(rows[j].DueDate) {
			return rows[i].DueDate.Before(rows[j].DueDate)
		}
		return rows[i].InvoiceID < rows[j].InvoiceID
	})
	return rows
}

// ByVendor builds the vendor by bucket matrix ordered by vendor name.
func ByVendor(invoices []Invoice, asOf time.Time) []VendorRow {
	rows := map[int64]*VendorRow{}
	for _, inv := range invoices {
		if !inv.Open() {
			continue
		}
		row, ok := rows[inv.VendorID]
		if !ok {
			row = &VendorRow{VendorID: inv.VendorID, VendorName: inv.VendorName, Amounts: map[string]decimal.Decimal{}, Total: decimal.Zero}
			for _, b := range Buckets() {
				row.Amounts[b] = decimal.Zero
			}
			rows[inv.VendorID] = row
		}
		b := BucketFor(DaysOverdue(inv.DueDate, asOf))
		row.Amounts[b] = row.Amounts[b].Add(inv.TotalAmount)
		row.Total = row.Total.Add(inv.TotalAmount)
	}
	out := make([]VendorRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VendorName != out[j].VendorName {
			return out[i].VendorName < out[j].VendorName
		}
		return out[i].VendorID < out[j].VendorID
	})
	return out
}

// Build assembles the summary, vendor matrix and details in one pass.
func Build(invoices []Invoice, asOf time.Time) Report {
	summary := Summarize(invoices, asOf)
	total := decimal.Zero
	for _, s := range summary {
		total = total.Add(s.Amount)
	}
	return Report{
		AsOf:    asOf,
		Summary: summary,
		Vendors: ByVendor(invoices, asOf),
		Details: Details(invoices, asOf),
		Total:   total,
	}
}
