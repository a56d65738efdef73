package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/payables/internal/app"
	"github.com/odyssey-erp/payables/internal/auth"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/internal/users"
	_ "github.com/odyssey-erp/payables/testing"
)

type stubUsers struct {
	byName map[string]users.User
}

func (s *stubUsers) FindByUsername(_ context.Context, username string) (users.User, error) {
	u, ok := s.byName[username]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) GetUser(_ context.Context, id int64) (users.User, error) {
	for _, u := range s.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return users.User{}, shared.ErrNotFound
}

type auditSink struct{ logs []shared.AuditLog }

func (a *auditSink) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type client struct {
	t       *testing.T
	server  *httptest.Server
	cookies []*http.Cookie
	token   string
}

func (c *client) do(method, path, body string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, strings.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(shared.CSRFHeader, c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	if len(res.Cookies()) > 0 {
		c.cookies = res.Cookies()
	}
	return res
}

func decode(t *testing.T, res *http.Response, dst any) {
	t.Helper()
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst), string(raw))
}

func newServer(t *testing.T, active bool) (*client, *auditSink) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "payables_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")

	hash, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	status := users.StatusActive
	if !active {
		status = users.StatusInactive
	}
	finder := &stubUsers{byName: map[string]users.User{
		"approver": {ID: 7, Username: "approver", FullName: "Ada Approver", PasswordHash: string(hash), Role: shared.RoleApprover, Status: status},
	}}
	audit := &auditSink{}
	service := auth.NewService(finder, audit)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, service, sessions, csrf)

	cfg := app.MiddlewareConfig{Logger: logger, SessionManager: sessions, CSRFManager: csrf, Actors: service}
	r := chi.NewRouter()
	r.Use(app.SessionMiddleware(cfg), app.CSRFMiddleware(cfg))
	r.Route("/auth", handler.MountRoutes)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &client{t: t, server: srv}, audit
}

func (c *client) primeCSRF() {
	res := c.do(http.MethodGet, "/auth/csrf", "")
	require.Equal(c.t, http.StatusOK, res.StatusCode)
	var body map[string]string
	decode(c.t, res, &body)
	c.token = body["csrf_token"]
	require.NotEmpty(c.t, c.token)
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	c, _ := newServer(t, true)
	res := c.do(http.MethodPost, "/auth/login", `{"username":"approver","password":"correctpass"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestLoginInvalidCredentials(t *testing.T) {
	c, audit := newServer(t, true)
	c.primeCSRF()
	res := c.do(http.MethodPost, "/auth/login", `{"username":"approver","password":"wrongpass"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Empty(t, audit.logs)
}

func TestLoginInactiveUserRejected(t *testing.T) {
	c, _ := newServer(t, false)
	c.primeCSRF()
	res := c.do(http.MethodPost, "/auth/login", `{"username":"approver","password":"correctpass"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestLoginMeLogout(t *testing.T) {
	c, audit := newServer(t, true)
	c.primeCSRF()
	preLogin := c.cookies[0].Value

	res := c.do(http.MethodPost, "/auth/login", `{"username":"approver","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var login struct {
		User      shared.Actor `json:"user"`
		CSRFToken string       `json:"csrf_token"`
	}
	decode(t, res, &login)
	require.Equal(t, int64(7), login.User.UserID)
	require.Equal(t, shared.RoleApprover, login.User.Role)
	require.NotEqual(t, c.token, login.CSRFToken)
	require.NotEqual(t, preLogin, c.cookies[0].Value)
	require.Len(t, audit.logs, 1)
	require.Equal(t, shared.AuditLogin, audit.logs[0].Action)
	c.token = login.CSRFToken

	res = c.do(http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var me shared.Actor
	decode(t, res, &me)
	require.Equal(t, "Ada Approver", me.FullName)

	res = c.do(http.MethodPost, "/auth/logout", "")
	res.Body.Close()
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res = c.do(http.MethodGet, "/auth/me", "")
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
