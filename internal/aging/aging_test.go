package aging

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2024, 6, 30, 15, 0, 0, 0, time.UTC)

func dueIn(days int) time.Time {
	return asOf.AddDate(0, 0, days)
}

func TestBucketBoundaries(t *testing.T) {
	cases := map[int]string{
		-5: BucketCurrent,
		0:  BucketCurrent,
		1:  Bucket1To30,
		30: Bucket1To30,
		31: Bucket31To60,
		60: Bucket31To60,
		61: Bucket61To90,
		90: Bucket61To90,
		91: BucketOver90,
	}
	for days, want := range cases {
		require.Equal(t, want, BucketFor(days), "days=%d", days)
	}
}

func TestDaysOverdueIgnoresTimeOfDay(t *testing.T) {
	due := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 30, DaysOverdue(due, asOf))
	require.Equal(t, 31, DaysOverdue(due.AddDate(0, 0, -1), asOf))
	require.Equal(t, -1, DaysOverdue(asOf.AddDate(0, 0, 1), asOf))
}

func TestSummarizeFixedOrderAndOpenOnly(t *testing.T) {
	invoices := []Invoice{
		{InvoiceID: 1, VendorID: 1, DueDate: dueIn(-10), TotalAmount: decimal.NewFromInt(500), Status: "pending"},
		{InvoiceID: 2, VendorID: 1, DueDate: dueIn(5), TotalAmount: decimal.NewFromInt(300), Status: "approved"},
		{InvoiceID: 3, VendorID: 2, DueDate: dueIn(-100), TotalAmount: decimal.NewFromInt(50), Status: "approved"},
		{InvoiceID: 4, VendorID: 2, DueDate: dueIn(-100), TotalAmount: decimal.NewFromInt(999), Status: "paid"},
		{InvoiceID: 5, VendorID: 2, DueDate: dueIn(-40), TotalAmount: decimal.NewFromInt(999), Status: "rejected"},
	}
	summary := Summarize(invoices, asOf)
	require.Len(t, summary, 5)
	for i, b := range Buckets() {
		require.Equal(t, b, summary[i].Bucket)
	}
	require.Equal(t, 1, summary[0].Count)
	require.True(t, summary[0].Amount.Equal(decimal.NewFromInt(300)))
	require.Equal(t, 1, summary[1].Count)
	require.True(t, summary[1].Amount.Equal(decimal.NewFromInt(500)))
	require.Equal(t, 0, summary[2].Count)
	require.True(t, summary[2].Amount.IsZero())
	require.Equal(t, 1, summary[4].Count)
}

func TestBuildReport(t *testing.T) {
	invoices := []Invoice{
		{InvoiceID: 2, VendorID: 2, VendorName: "Zeta", DueDate: dueIn(-45), TotalAmount: decimal.RequireFromString("120.50"), Status: "pending"},
		{InvoiceID: 1, VendorID: 1, VendorName: "Acme", DueDate: dueIn(-10), TotalAmount: decimal.NewFromInt(500), Status: "pending"},
		{InvoiceID: 3, VendorID: 1, VendorName: "Acme", DueDate: dueIn(5), TotalAmount: decimal.NewFromInt(300), Status: "approved"},
	}
	rep := Build(invoices, asOf)
	require.True(t, rep.Total.Equal(decimal.RequireFromString("920.50")))

	require.Len(t, rep.Vendors, 2)
	require.Equal(t, "Acme", rep.Vendors[0].VendorName)
	require.True(t, rep.Vendors[0].Total.Equal(decimal.NewFromInt(800)))
	require.True(t, rep.Vendors[0].Amounts[Bucket1To30].Equal(decimal.NewFromInt(500)))
	require.True(t, rep.Vendors[0].Amounts[Bucket61To90].IsZero())

	require.Len(t, rep.Details, 3)
	require.Equal(t, int64(2), rep.Details[0].InvoiceID)
	require.Equal(t, 45, rep.Details[0].DaysOverdue)
	require.Equal(t, Bucket31To60, rep.Details[0].Bucket)
	require.Equal(t, -5, rep.Details[2].DaysOverdue)
}
