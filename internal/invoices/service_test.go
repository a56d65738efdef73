package invoices

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/platform/storage"
	"github.com/odyssey-erp/payables/internal/shared"
)

type memoryRepo struct {
	vendors  map[int64]string
	invoices map[int64]Invoice
	audit    []shared.AuditLog
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		vendors:  map[int64]string{1: "active", 2: "blacklisted"},
		invoices: map[int64]Invoice{},
		nextID:   1,
	}
}

func (m *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

func (m *memoryRepo) ListInvoices(_ context.Context, filter ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.VendorID > 0 && inv.VendorID != filter.VendorID {
			continue
		}
		if filter.DueBefore != nil && inv.DueDate.After(*filter.DueBefore) {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: m, invoices: map[int64]Invoice{}, nextID: m.nextID}
	for k, v := range m.invoices {
		tx.invoices[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.invoices = tx.invoices
	m.nextID = tx.nextID
	m.audit = append(m.audit, tx.audit...)
	return nil
}

type memoryTx struct {
	repo     *memoryRepo
	invoices map[int64]Invoice
	audit    []shared.AuditLog
	nextID   int64
}

func (t *memoryTx) VendorStatus(_ context.Context, vendorID int64) (string, error) {
	status, ok := t.repo.vendors[vendorID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return status, nil
}

func (t *memoryTx) InsertInvoice(_ context.Context, inv Invoice) (int64, error) {
	inv.ID = t.nextID
	t.nextID++
	t.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *memoryTx) UpdateInvoice(_ context.Context, inv Invoice) error {
	if _, ok := t.invoices[inv.ID]; !ok {
		return shared.ErrNotFound
	}
	t.invoices[inv.ID] = inv
	return nil
}

func (t *memoryTx) SetFilePath(_ context.Context, id int64, path string) error {
	inv, ok := t.invoices[id]
	if !ok {
		return shared.ErrNotFound
	}
	inv.FilePath = &path
	t.invoices[id] = inv
	return nil
}

func (t *memoryTx) InsertAudit(_ context.Context, log shared.AuditLog) error {
	t.audit = append(t.audit, log)
	return nil
}

var accountant = shared.Actor{UserID: 2, Role: shared.RoleAccountant}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	repo := newMemoryRepo()
	svc := NewService(repo, store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC) }
	return svc, repo
}

func TestCreateInvoiceDefaults(t *testing.T) {
	svc, repo := newTestService(t)
	inv, err := svc.Create(context.Background(), accountant, Input{
		VendorID: 1, InvoiceNumber: "INV-001", InvoiceDate: "2024-01-01",
		Amount: decimal.RequireFromString("450.00"), TaxAmount: decimal.RequireFromString("50.00"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, inv.Status)
	require.Equal(t, "2024-01-31", inv.DueDate.Format(dateLayout))
	require.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(500)))
	require.Equal(t, 21, inv.DaysToDue)
	require.Len(t, repo.audit, 1)
	require.Equal(t, "Created invoice: INV-001", repo.audit[0].Details)
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	cases := []Input{
		{VendorID: 1, InvoiceNumber: "", InvoiceDate: "2024-01-01", Amount: decimal.NewFromInt(1)},
		{VendorID: 1, InvoiceNumber: "X", InvoiceDate: "01/01/2024", Amount: decimal.NewFromInt(1)},
		{VendorID: 1, InvoiceNumber: "X", InvoiceDate: "2024-01-01", Amount: decimal.Zero},
		{VendorID: 1, InvoiceNumber: "X", InvoiceDate: "2024-01-01", Amount: decimal.NewFromInt(5), TotalAmount: decimal.NewFromInt(-1)},
		{VendorID: 2, InvoiceNumber: "X", InvoiceDate: "2024-01-01", Amount: decimal.NewFromInt(5)},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, accountant, in)
		require.ErrorIs(t, err, shared.ErrValidation, "%+v", in)
	}
	_, err := svc.Create(ctx, accountant, Input{VendorID: 42, InvoiceNumber: "X", InvoiceDate: "2024-01-01", Amount: decimal.NewFromInt(5)})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.invoices)
}

func TestUpdateInvoiceManualStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, accountant, Input{VendorID: 1, InvoiceNumber: "INV-9", InvoiceDate: "2024-01-01", DueDate: "2024-01-05", Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	require.Equal(t, -5, inv.DaysToDue)

	inv, err = svc.Update(ctx, accountant, inv.ID, Input{VendorID: 1, InvoiceNumber: "INV-9", InvoiceDate: "2024-01-01", DueDate: "2024-01-05", Amount: decimal.NewFromInt(100), Status: StatusPaid})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status)

	inv, err = svc.Update(ctx, accountant, inv.ID, Input{VendorID: 1, InvoiceNumber: "INV-9", InvoiceDate: "2024-01-01", Amount: decimal.NewFromInt(120)})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, inv.Status)
	require.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(120)))
}

func TestListOrdersByDueDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, due := range []string{"2024-03-01", "2024-01-15", "2024-02-01"} {
		_, err := svc.Create(ctx, accountant, Input{VendorID: 1, InvoiceNumber: "INV-" + due, InvoiceDate: "2024-01-01", DueDate: due, Amount: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}
	cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	list, err := svc.List(ctx, accountant, ListFilter{DueBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "INV-2024-01-15", list[0].InvoiceNumber)
	require.Equal(t, 5, list[0].DaysToDue)

	viewer := shared.Actor{UserID: 8, Role: shared.RoleViewer}
	_, err = svc.List(ctx, viewer, ListFilter{})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAttachAndOpenFile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, accountant, Input{VendorID: 1, InvoiceNumber: "INV-1", InvoiceDate: "2024-01-01", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, _, err = svc.OpenFile(ctx, accountant, inv.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	inv, err = svc.AttachFile(ctx, accountant, inv.ID, "scan.PDF", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "invoice_20240110093000.pdf", *inv.FilePath)

	name, rc, err := svc.OpenFile(ctx, accountant, inv.ID)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	require.Equal(t, "invoice_20240110093000.pdf", name)
	require.Equal(t, "%PDF-1.4", string(body))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 1, 11, 0, 1, 0, 0, time.UTC)
	require.Equal(t, 1, DaysBetween(a, b))
	require.Equal(t, -1, DaysBetween(b, a))
	require.Equal(t, 0, DaysBetween(a, a))
}
