package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/app"
	"github.com/odyssey-erp/payables/internal/observability"
	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
	_ "github.com/odyssey-erp/payables/testing"
)

func newRouter(t *testing.T, checks ...app.HealthCheck) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rbacMW := rbac.Middleware{Logger: logger}
	return app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             &app.Config{AppEnv: "test", RateLimitPerMin: 1000},
		SessionManager:     shared.NewSessionManager(rdb, "payables_session", time.Hour, false),
		CSRFManager:        shared.NewCSRFManager("csrfsecret"),
		RBACMiddleware:     rbacMW,
		Metrics:            observability.NewMetrics(),
		HealthChecks:       checks,
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMW),
	})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newRouter(t), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	h := newRouter(t,
		app.HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		app.HealthCheck{Name: "gotenberg", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec := get(t, h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "ok", body.Checks["postgres"])
	require.Equal(t, "connection refused", body.Checks["gotenberg"])
}

func TestReadyzHealthy(t *testing.T) {
	h := newRouter(t, app.HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }})
	rec := get(t, h, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresSession(t *testing.T) {
	rec := get(t, newRouter(t), "/api/permissions")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnmountedModuleIsNotFound(t *testing.T) {
	h := newRouter(t)
	require.Equal(t, http.StatusNotFound, get(t, h, "/api/vendors").Code)
	require.Equal(t, http.StatusNotFound, get(t, h, "/nope").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newRouter(t)
	_ = get(t, h, "/healthz")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}
