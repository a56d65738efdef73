package datamanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/report"
)

type memoryState struct {
	rows   map[string]map[int64]Record
	nextID map[string]int64
	audits []shared.AuditLog
}

func (s memoryState) clone() memoryState {
	out := memoryState{rows: map[string]map[int64]Record{}, nextID: map[string]int64{}, audits: append([]shared.AuditLog(nil), s.audits...)}
	for table, rows := range s.rows {
		out.rows[table] = map[int64]Record{}
		for id, rec := range rows {
			cp := Record{}
			for k, v := range rec {
				cp[k] = v
			}
			out.rows[table][id] = cp
		}
	}
	for k, v := range s.nextID {
		out.nextID[k] = v
	}
	return out
}

type memoryRepo struct {
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{rows: map[string]map[int64]Record{}, nextID: map[string]int64{}}}
}

func (r *memoryRepo) sorted(t Table) []Record {
	rows := r.state.rows[t.Name]
	ids := make([]int64, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec := Record{}
		for _, c := range t.Visible() {
			rec[c.Name] = rows[id][c.Name]
		}
		out = append(out, rec)
	}
	return out
}

func (r *memoryRepo) Count(_ context.Context, t Table) (int, error) { return len(r.state.rows[t.Name]), nil }

func (r *memoryRepo) List(_ context.Context, t Table, limit, offset int) ([]Record, error) {
	all := r.sorted(t)
	if offset > len(all) {
		return []Record{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memoryRepo) All(_ context.Context, t Table) ([]Record, error) { return r.sorted(t), nil }

func (r *memoryRepo) Get(_ context.Context, t Table, id int64) (Record, error) {
	for _, rec := range r.sorted(t) {
		if rec[t.PrimaryKey().Name] == id {
			return rec, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) Options(_ context.Context, t Table) ([]Option, error) {
	var out []Option
	for _, rec := range r.sorted(t) {
		out = append(out, Option{ID: rec[t.PrimaryKey().Name].(int64), Label: fmt.Sprint(rec[t.Display])})
	}
	return out, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	work := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &work}); err != nil {
		return err
	}
	r.state = work
	return nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) Insert(_ context.Context, tbl Table, p prepared) (int64, error) {
	for i, c := range p.columns {
		if c == "vendor_name" && p.args[i] == "FAIL" {
			return 0, errors.New("constraint failed")
		}
	}
	t.state.nextID[tbl.Name]++
	id := t.state.nextID[tbl.Name]
	rec := Record{tbl.PrimaryKey().Name: id}
	for i, c := range p.columns {
		rec[c] = p.args[i]
	}
	if t.state.rows[tbl.Name] == nil {
		t.state.rows[tbl.Name] = map[int64]Record{}
	}
	t.state.rows[tbl.Name][id] = rec
	return id, nil
}

func (t *memoryTx) Update(_ context.Context, tbl Table, id int64, p prepared) error {
	rec, ok := t.state.rows[tbl.Name][id]
	if !ok {
		return shared.ErrNotFound
	}
	for i, c := range p.columns {
		rec[c] = p.args[i]
	}
	return nil
}

func (t *memoryTx) Delete(_ context.Context, tbl Table, id int64) error {
	if _, ok := t.state.rows[tbl.Name][id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.state.rows[tbl.Name], id)
	return nil
}

func (t *memoryTx) DeleteAll(_ context.Context, tbl Table) (int64, error) {
	n := int64(len(t.state.rows[tbl.Name]))
	t.state.rows[tbl.Name] = map[int64]Record{}
	return n, nil
}

func (t *memoryTx) ClearExclusive(_ context.Context, tbl Table, col Column, group any, exceptID int64) error {
	rows := t.state.rows[tbl.Name]
	if group == nil {
		group = rows[exceptID][col.ExclusiveWithin]
	}
	for id, rec := range rows {
		if id != exceptID && rec[col.ExclusiveWithin] == group && rec[col.Name] == true {
			rec[col.Name] = false
		}
	}
	return nil
}

func (t *memoryTx) InsertAudit(_ context.Context, log shared.AuditLog) error {
	t.state.audits = append(t.state.audits, log)
	return nil
}

type bumpCounter struct{ n int }

func (b *bumpCounter) Bump(context.Context) error { b.n++; return nil }

var admin = shared.Actor{UserID: 1, Role: shared.RoleAdmin}

func newTestService(repo *memoryRepo) (*Service, *bumpCounter) {
	bump := &bumpCounter{}
	svc := NewService(repo, bump, func(s string) (string, error) { return "hashed:" + s, nil }, nil)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC) }
	return svc, bump
}

func TestEditorRequiresDataManage(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	accountant := shared.Actor{UserID: 2, Role: shared.RoleAccountant}
	_, err := svc.Tables(context.Background(), accountant)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Insert(context.Background(), accountant, "vendors", Record{"vendor_name": "Acme"})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestInsertUpdateDeleteAudited(t *testing.T) {
	repo := newMemoryRepo()
	svc, bump := newTestService(repo)
	ctx := context.Background()

	rec, err := svc.Insert(ctx, admin, "vendors", Record{"vendor_name": "Acme", "email": "ap@acme.test"})
	require.NoError(t, err)
	require.EqualValues(t, 1, rec["vendor_id"])
	require.Equal(t, "Acme", rec["vendor_name"])

	rec, err = svc.Update(ctx, admin, "vendors", 1, Record{"vendor_id": 1, "status": "inactive"})
	require.NoError(t, err)
	require.Equal(t, "inactive", rec["status"])

	_, err = svc.Update(ctx, admin, "vendors", 42, Record{"status": "active"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, admin, "vendors", 1))
	_, err = svc.Get(ctx, admin, "vendors", 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	audits := repo.state.audits
	require.Len(t, audits, 3)
	require.Equal(t, shared.AuditCreated, audits[0].Action)
	require.Equal(t, "Added new record to vendors", audits[0].Details)
	require.Equal(t, "vendors", audits[0].EntityType)
	require.EqualValues(t, 1, audits[0].EntityID)
	require.Equal(t, "Updated record in vendors (status)", audits[1].Details)
	require.Equal(t, shared.AuditDeleted, audits[2].Action)
	require.Equal(t, 3, bump.n)
}

func TestUsersPasswordIsHashedAndHidden(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)

	rec, err := svc.Insert(context.Background(), admin, "users", Record{"username": "ana", "password_hash": "pw", "role": "viewer"})
	require.NoError(t, err)
	require.NotContains(t, rec, "password_hash")
	require.Equal(t, "hashed:pw", repo.state.rows["users"][1]["password_hash"])
}

func TestListPaginates(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Insert(ctx, admin, "vendors", Record{"vendor_name": fmt.Sprintf("V%d", i)})
		require.NoError(t, err)
	}
	page, err := svc.List(ctx, admin, "vendors", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	require.Equal(t, "V2", page.Rows[0]["vendor_name"])
	require.Equal(t, 3, page.Pagination.TotalPages)

	stats, err := svc.Stats(ctx, admin)
	require.NoError(t, err)
	require.Len(t, stats, 9)
	require.Equal(t, TableStat{Table: "vendors", Count: 5}, stats[1])
}

func TestOptionsFollowReferences(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	_, err := svc.Insert(ctx, admin, "vendors", Record{"vendor_name": "Acme"})
	require.NoError(t, err)

	opts, err := svc.Options(ctx, admin, "invoices", "vendor_id")
	require.NoError(t, err)
	require.Equal(t, []Option{{ID: 1, Label: "Acme"}}, opts)

	_, err = svc.Options(ctx, admin, "invoices", "description")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestImportCSVAppendAndReplace(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	_, err := svc.Insert(ctx, admin, "vendors", Record{"vendor_name": "Existing"})
	require.NoError(t, err)

	csvBody := "\ufeffvendor_id,Vendor_Name,email,unknown_col\n99,Acme,,x\n100,Beta,b@beta.test,y\n,,,\n"
	res, err := svc.Import(ctx, admin, "vendors", "csv", "", strings.NewReader(csvBody))
	require.NoError(t, err)
	require.Equal(t, ImportResult{Table: "vendors", Mode: ModeAppend, Imported: 2}, res)
	require.Len(t, repo.state.rows["vendors"], 3)
	acme := repo.state.rows["vendors"][2]
	require.Equal(t, "Acme", acme["vendor_name"])
	require.NotContains(t, acme, "email")

	res, err = svc.Import(ctx, admin, "vendors", "csv", ModeReplace, strings.NewReader(csvBody))
	require.NoError(t, err)
	require.EqualValues(t, 3, res.Deleted)
	require.Len(t, repo.state.rows["vendors"], 2)

	last := repo.state.audits[len(repo.state.audits)-1]
	require.Equal(t, shared.AuditImported, last.Action)
	require.Equal(t, "Imported 2 records to vendors (replaced 3)", last.Details)
	require.Zero(t, last.EntityID)
}

func TestImportIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Import(ctx, admin, "vendors", "csv", ModeAppend, strings.NewReader("vendor_name\nAcme\nFAIL\n"))
	require.Error(t, err)
	require.Empty(t, repo.state.rows["vendors"])
	require.Empty(t, repo.state.audits)

	_, err = svc.Import(ctx, admin, "invoices", "csv", ModeAppend, strings.NewReader("vendor_id,invoice_number\n1,INV-1\n"))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorContains(t, err, "row 2")

	_, err = svc.Import(ctx, admin, "vendors", "json", ModeAppend, strings.NewReader("{}"))
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Import(ctx, admin, "vendors", "csv", "merge", strings.NewReader("vendor_name\nA\n"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestExportCSVAndXLSX(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	_, err := svc.Insert(ctx, admin, "vendor_bank_details", Record{"vendor_id": 3, "bank_name": "HDFC", "account_number": "001", "is_primary": true})
	require.NoError(t, err)

	var buf bytes.Buffer
	name, err := svc.Export(ctx, admin, "vendor_bank_details", "csv", &buf)
	require.NoError(t, err)
	require.Equal(t, "vendor_bank_details_20240315104200.csv", name)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "bank_id,vendor_id,bank_name,account_number,ifsc_code,account_type,branch_name,is_primary,created_at", lines[0])
	require.Equal(t, "1,3,HDFC,001,,,,true,", lines[1])

	buf.Reset()
	name, err = svc.Export(ctx, admin, "vendor_bank_details", "XLSX", &buf)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(name, ".xlsx"))
	rows, err := report.ReadFirstSheet(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "HDFC", rows[1][2])

	res, err := svc.Import(ctx, admin, "vendor_bank_details", "xlsx", ModeReplace, bytes.NewReader(mustExport(t, svc)))
	require.NoError(t, err)
	require.Equal(t, 1, res.Imported)
}

func mustExport(t *testing.T, svc *Service) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), admin, "vendor_bank_details", "xlsx", &buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestAuditLogIsReadOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc, bump := newTestService(repo)
	ctx := context.Background()
	repo.state.rows["audit_logs"] = map[int64]Record{
		1: {"log_id": int64(1), "action": "approved", "entity_type": "payment_request", "details": "Approved payment request"},
	}
	repo.state.nextID["audit_logs"] = 1

	_, err := svc.Update(ctx, admin, "audit_logs", 1, Record{"details": "tampered"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.ErrorIs(t, svc.Delete(ctx, admin, "audit_logs", 1), shared.ErrForbidden)
	_, err = svc.Insert(ctx, admin, "audit_logs", Record{"action": "approved", "entity_type": "payment_request"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	for _, mode := range []string{ModeAppend, ModeReplace} {
		_, err = svc.Import(ctx, admin, "audit_logs", "csv", mode, strings.NewReader("action,entity_type\nx,y\n"))
		require.ErrorIs(t, err, shared.ErrForbidden)
	}

	rec, err := svc.Get(ctx, admin, "audit_logs", 1)
	require.NoError(t, err)
	require.Equal(t, "Approved payment request", rec["details"])
	require.Len(t, repo.state.rows["audit_logs"], 1)
	require.Empty(t, repo.state.audits)
	require.Zero(t, bump.n)

	var buf bytes.Buffer
	_, err = svc.Export(ctx, admin, "audit_logs", "csv", &buf)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Approved payment request")
}

func TestPrimaryBankIsExclusivePerVendor(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()
	bank := func(vendorID int64, name string, primary bool) Record {
		return Record{"vendor_id": vendorID, "bank_name": name, "account_number": name + "-001", "is_primary": primary}
	}
	primary := func(id int64) any { return repo.state.rows["vendor_bank_details"][id]["is_primary"] }

	for _, r := range []Record{bank(1, "HDFC", true), bank(2, "SBI", true), bank(1, "ICICI", true)} {
		_, err := svc.Insert(ctx, admin, "vendor_bank_details", r)
		require.NoError(t, err)
	}
	require.Equal(t, false, primary(1))
	require.Equal(t, true, primary(2))
	require.Equal(t, true, primary(3))

	// Update without vendor_id resolves the group from the stored row.
	_, err := svc.Update(ctx, admin, "vendor_bank_details", 1, Record{"is_primary": true})
	require.NoError(t, err)
	require.Equal(t, true, primary(1))
	require.Equal(t, true, primary(2))
	require.Equal(t, false, primary(3))

	_, err = svc.Update(ctx, admin, "vendor_bank_details", 3, Record{"is_primary": false})
	require.NoError(t, err)
	require.Equal(t, true, primary(1))
}
