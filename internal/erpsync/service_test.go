package erpsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/shared"
)

type stubSource struct {
	ledgers []Ledger
	bills   []Bill
	err     error
}

func (s stubSource) Creditors(context.Context) ([]Ledger, error)  { return s.ledgers, s.err }
func (s stubSource) PendingBills(context.Context) ([]Bill, error) { return s.bills, s.err }

type memoryState struct {
	vendors  map[string]VendorRecord
	ids      map[string]int64
	invoices map[string]InvoiceRecord
	audits   []shared.AuditLog
}

type memoryRepo struct {
	state memoryState
	fail  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		vendors:  map[string]VendorRecord{},
		ids:      map[string]int64{},
		invoices: map[string]InvoiceRecord{},
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := memoryState{
		vendors:  map[string]VendorRecord{},
		ids:      map[string]int64{},
		invoices: map[string]InvoiceRecord{},
		audits:   append([]shared.AuditLog(nil), r.state.audits...),
	}
	for k, v := range r.state.vendors {
		work.vendors[k] = v
	}
	for k, v := range r.state.ids {
		work.ids[k] = v
	}
	for k, v := range r.state.invoices {
		work.invoices[k] = v
	}
	tx := &memoryTx{state: &work, fail: r.fail}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = work
	return nil
}

type memoryTx struct {
	state *memoryState
	fail  error
}

func (t *memoryTx) UpsertVendor(_ context.Context, v VendorRecord) (int64, error) {
	id, ok := t.state.ids[v.ExternalRef]
	if !ok {
		id = int64(len(t.state.ids) + 1)
		t.state.ids[v.ExternalRef] = id
	}
	t.state.vendors[v.ExternalRef] = v
	return id, nil
}

func (t *memoryTx) VendorIDByRef(_ context.Context, ref string) (int64, error) {
	id, ok := t.state.ids[ref]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

func (t *memoryTx) InsertInvoiceIfNew(_ context.Context, inv InvoiceRecord) (bool, error) {
	if t.fail != nil {
		return false, t.fail
	}
	if _, ok := t.state.invoices[inv.ExternalRef]; ok {
		return false, nil
	}
	t.state.invoices[inv.ExternalRef] = inv
	return true, nil
}

func (t *memoryTx) InsertAudit(_ context.Context, log shared.AuditLog) error {
	t.state.audits = append(t.state.audits, log)
	return nil
}

type countingMetrics map[string]int

func (m countingMetrics) SyncImported(kind string, n int) { m[kind] += n }

type bumpCounter struct{ n int }

func (b *bumpCounter) Bump(context.Context) error { b.n++; return nil }

var fixedNow = time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC)

func newTestService(t *testing.T, src Source, repo *memoryRepo, opts ...Option) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc := NewService(src, repo, NewRedisLocker(rdb), opts...)
	svc.now = func() time.Time { return fixedNow }
	return svc, mr
}

func TestSyncVendorsUpserts(t *testing.T) {
	repo := newMemoryRepo()
	metrics := countingMetrics{}
	src := stubSource{ledgers: []Ledger{
		{Name: "Acme Supplies", Phone: "98765 43210", GSTIN: "27AAAAA0000A1Z5", Address: []string{"12 Park Road", " ", "Pune"}},
		{Name: "Beta Traders", PAN: "ABCDE1234F"},
	}}
	normalize := func(raw string) (string, error) { return "+919876543210", nil }
	svc, _ := newTestService(t, src, repo, WithMetrics(metrics), WithPhoneNormalizer(normalize))

	ctx := shared.ContextWithActor(context.Background(), shared.Actor{UserID: 4, Role: shared.RoleAccountant})
	n, err := svc.SyncVendors(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	acme := repo.state.vendors["tally:Acme Supplies"]
	require.Equal(t, "+919876543210", acme.Phone)
	require.Equal(t, "12 Park Road, Pune", acme.Address)
	require.Equal(t, "27AAAAA0000A1Z5", acme.TaxID)
	require.Equal(t, "ABCDE1234F", repo.state.vendors["tally:Beta Traders"].TaxID)

	n, err = svc.SyncVendors(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, repo.state.ids, 2)
	require.Equal(t, 4, metrics[KindVendors])

	require.Len(t, repo.state.audits, 2)
	last := repo.state.audits[1]
	require.Equal(t, shared.AuditImportVendors, last.Action)
	require.Equal(t, "Imported 2 vendors from Tally", last.Details)
	require.EqualValues(t, 4, last.UserID)
}

func TestSyncInvoicesInsertsOnlyNew(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.ids["tally:Acme Supplies"] = 1
	bump := &bumpCounter{}
	src := stubSource{bills: []Bill{
		{Name: "INV-001", Party: "Acme Supplies", BillDate: "20240301", DueDate: "20240331", Closing: "-500.00"},
		{Name: "INV-002", Party: "Acme Supplies", BillDate: "20240305", Closing: "300.00"},
		{Name: "X-9", Party: "Unknown Ltd", BillDate: "20240301", Closing: "10.00"},
		{Name: "", Party: "Acme Supplies"},
	}}
	svc, _ := newTestService(t, src, repo, WithCache(bump))

	n, err := svc.SyncInvoices(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, bump.n)

	inv := repo.state.invoices["tally:Acme Supplies/INV-001"]
	require.EqualValues(t, 1, inv.VendorID)
	require.True(t, inv.Amount.Equal(decimal.NewFromInt(500)))
	require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), inv.DueDate)

	second := repo.state.invoices["tally:Acme Supplies/INV-002"]
	require.Equal(t, time.Date(2024, 4, 4, 0, 0, 0, 0, time.UTC), second.DueDate)
	require.Equal(t, "Imported from Tally", second.Description)

	res, err := svc.Run(context.Background(), KindInvoices)
	require.NoError(t, err)
	require.Equal(t, 0, res.Imported)
	require.Equal(t, 4, res.Skipped)
	require.Equal(t, 1, bump.n)

	audit := repo.state.audits[len(repo.state.audits)-1]
	require.Equal(t, shared.AuditImportInvoices, audit.Action)
	require.Equal(t, "Imported 0 invoices from Tally", audit.Details)
	require.Zero(t, audit.UserID)
}

func TestSyncRollsBackOnFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.ids["tally:Acme Supplies"] = 1
	repo.fail = errors.New("disk full")
	src := stubSource{bills: []Bill{{Name: "INV-1", Party: "Acme Supplies", Closing: "1"}}}
	svc, _ := newTestService(t, src, repo)

	_, err := svc.SyncInvoices(context.Background())
	require.Error(t, err)
	require.Empty(t, repo.state.invoices)
	require.Empty(t, repo.state.audits)
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	repo := newMemoryRepo()
	svc, mr := newTestService(t, stubSource{}, repo)
	require.NoError(t, mr.Set(shared.SyncLockKey(KindVendors), "other-worker"))

	_, err := svc.SyncVendors(context.Background())
	require.ErrorIs(t, err, ErrSyncRunning)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Empty(t, repo.state.audits)

	mr.Del(shared.SyncLockKey(KindVendors))
	_, err = svc.SyncVendors(context.Background())
	require.NoError(t, err)
	require.False(t, mr.Exists(shared.SyncLockKey(KindVendors)))
}

func TestRunUnknownKind(t *testing.T) {
	svc, _ := newTestService(t, stubSource{}, newMemoryRepo())
	_, err := svc.Run(context.Background(), "ledgers")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSourceErrorIsReturned(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(t, stubSource{err: errors.New("connection refused")}, repo)
	_, err := svc.SyncVendors(context.Background())
	require.EqualError(t, err, "connection refused")
	require.Empty(t, repo.state.audits)
}
