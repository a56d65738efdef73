package audithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/audit"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.Entry
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, _ shared.Actor, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(_ context.Context, _ shared.Actor, filters audit.TimelineFilters) ([]audit.Entry, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func (s *stubTimelineService) ImportHistory(context.Context, shared.Actor) ([]audit.ImportRecord, error) {
	return []audit.ImportRecord{{Action: shared.AuditImportInvoices, EntityType: "invoice", Count: 2}}, nil
}

func newRouter(svc *stubTimelineService) http.Handler {
	h := NewHandler(nil, svc, rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func request(path string, role shared.Role, userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	return req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{UserID: userID, Role: role}))
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &stubTimelineService{result: audit.Result{Rows: []audit.Entry{{ID: 1, Action: "created"}}, Paging: audit.PagingInfo{Page: 2, PageSize: 10}}}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/?from=2024-03-01&to=2024-03-10&entity_type=invoice&entity_id=5&action=updated&page=2&page_size=10", shared.RoleAdmin, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"log_id":1`)

	f := svc.lastFilters
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), f.From)
	require.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), f.To)
	require.Equal(t, "invoice", f.EntityType)
	require.EqualValues(t, 5, f.EntityID)
	require.Equal(t, "updated", f.Action)
	require.Equal(t, 2, f.Page)
	require.Equal(t, 10, f.PageSize)
}

func TestTimelineRejectsBadInput(t *testing.T) {
	router := newRouter(&stubTimelineService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/?from=03-01-2024", shared.RoleAdmin, 1))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/", shared.RoleApprover, 2))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportCSV(t *testing.T) {
	svc := &stubTimelineService{exportRows: []audit.Entry{{ID: 9, At: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Action: "deleted", EntityType: "vendor", Details: "Deleted vendor"}}}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/export.csv?action=deleted", shared.RoleAdmin, 1))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Disposition"), "audit_log_20240315104200.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "log_id,created_at"))
	require.Contains(t, rec.Body.String(), "9,2024-03-10T00:00:00Z,,,deleted,vendor,,Deleted vendor")
	require.Equal(t, "deleted", svc.lastFilters.Action)
}

func TestExportRateLimitedPerUser(t *testing.T) {
	router := newRouter(&stubTimelineService{})
	for i := 0; i < exportsPerWindow; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, request("/audit/export.csv", shared.RoleAdmin, 1))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/export.csv", shared.RoleAdmin, 1))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/export.csv", shared.RoleAdmin, 2))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestImportHistoryRoute(t *testing.T) {
	router := newRouter(&stubTimelineService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, request("/audit/imports", shared.RoleAccountant, 3))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":2`)
}
