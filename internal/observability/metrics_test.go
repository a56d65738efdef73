package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("erpsync").End(nil)

	body := scrape(t, metrics)
	require.Contains(t, body, `payables_jobs_total{job="erpsync",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `payables_http_requests_total{code="418",route="/test"} 1`)
	require.True(t, strings.Contains(body, `payables_http_request_duration_seconds_bucket{route="/test"`))
}

func TestWorkflowCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.PaymentTransition("approved")
	metrics.PaymentTransition("approved")
	metrics.AdviceGenerated(800)
	metrics.SyncImported("vendors", 3)
	metrics.SyncImported("invoices", 0)

	body := scrape(t, metrics)
	require.Contains(t, body, `payables_payment_request_transitions_total{to="approved"} 2`)
	require.Contains(t, body, `payables_payment_advice_amount_total 800`)
	require.Contains(t, body, `payables_erpsync_imported_total{kind="vendors"} 3`)
	require.NotContains(t, body, `kind="invoices"`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.PaymentTransition("approved")
	m.AdviceGenerated(1)
	m.SyncImported("vendors", 1)
	require.Nil(t, m.Jobs())
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	require.NotNil(t, m.Middleware(next))
}
