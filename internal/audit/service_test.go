package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/shared"
)

type stubRepo struct {
	rows       []Entry
	imports    []ImportRecord
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubRepo) Window(_ context.Context, f TimelineFilters, offset, limit int) ([]Entry, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = f, offset, limit
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	if offset > len(s.rows) {
		return nil, nil
	}
	return s.rows[offset:end], nil
}

func (s *stubRepo) All(_ context.Context, f TimelineFilters) ([]Entry, error) {
	s.lastFilter = f
	return s.rows, nil
}

func (s *stubRepo) ImportHistory(context.Context) ([]ImportRecord, error) {
	return s.imports, nil
}

var admin = shared.Actor{UserID: 1, Role: shared.RoleAdmin}

func entries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{ID: int64(n - i), Action: shared.AuditCreated, EntityType: "invoice", At: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
	}
	return out
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: entries(5)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), admin, TimelineFilters{Page: 1, PageSize: 2, EntityType: "invoice"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)
	require.Equal(t, 3, repo.lastLimit)
	require.Equal(t, 0, repo.lastOffset)
	require.Equal(t, "invoice", repo.lastFilter.EntityType)

	res, err = svc.Timeline(context.Background(), admin, TimelineFilters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.PrevPage)
	require.Equal(t, 4, repo.lastOffset)
}

func TestTimelineRules(t *testing.T) {
	svc := NewService(&stubRepo{})
	ctx := context.Background()

	_, err := svc.Timeline(ctx, shared.Actor{UserID: 2, Role: shared.RoleAccountant}, TimelineFilters{})
	require.ErrorIs(t, err, shared.ErrForbidden)

	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err = svc.Timeline(ctx, admin, TimelineFilters{From: from, To: from.AddDate(0, 0, -1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	res, err := svc.Timeline(ctx, admin, TimelineFilters{PageSize: 1000})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, res.Paging.PageSize)
	require.NotNil(t, res.Rows)
}

func TestImportHistoryAccess(t *testing.T) {
	repo := &stubRepo{imports: []ImportRecord{{Action: shared.AuditImportVendors, EntityType: "vendor", Count: 3}}}
	svc := NewService(repo)
	ctx := context.Background()

	recs, err := svc.ImportHistory(ctx, shared.Actor{UserID: 2, Role: shared.RoleAccountant})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	_, err = svc.ImportHistory(ctx, shared.Actor{UserID: 3, Role: shared.RoleViewer})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestWriteCSV(t *testing.T) {
	uid, eid := int64(7), int64(42)
	out, err := WriteCSV([]Entry{
		{ID: 1, At: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC), UserID: &uid, Username: "ana", Action: "approved", EntityType: "payment_request", EntityID: &eid, Details: "Approved payment request PR1, urgent"},
		{ID: 2, At: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), Action: "import_vendors", EntityType: "vendor", Details: "Imported 3 vendors"},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "log_id,created_at,user_id,username,action,entity_type,entity_id,details", lines[0])
	require.Equal(t, `1,2024-03-10T08:00:00Z,7,ana,approved,payment_request,42,"Approved payment request PR1, urgent"`, lines[1])
	require.Equal(t, "2,2024-03-10T09:00:00Z,,,import_vendors,vendor,,Imported 3 vendors", lines[2])
}
