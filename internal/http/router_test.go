package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/taskmaster-auth/internal/authn"
	"github.com/pribylovaa/taskmaster-auth/internal/http/handlers"
	"github.com/pribylovaa/taskmaster-auth/internal/models"
	"github.com/pribylovaa/taskmaster-auth/internal/service"
	"github.com/pribylovaa/taskmaster-auth/internal/storage"
	"github.com/pribylovaa/taskmaster-auth/internal/token"
)

const testSecret = "router-test-secret-router-test-secret"

// stubService реализует только то, до чего доходят тесты роутера;
// остальные методы встроенного интерфейса паникуют.
type stubService struct {
	handlers.Service
}

func (stubService) ListAccounts(context.Context, storage.Page) ([]models.Account, error) {
	return []models.Account{{ID: 1, Username: "root", Status: models.StatusActive}}, nil
}

func (stubService) AccountByID(_ context.Context, id int64) (*models.Account, error) {
	return &models.Account{ID: id, Username: "bob", Status: models.StatusActive}, nil
}

func (stubService) Logout(context.Context, string) error { return nil }

type stubLoader map[string]*models.Principal

func (l stubLoader) LoadPrincipal(_ context.Context, username string) (*models.Principal, error) {
	if p, ok := l[username]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("service.principal.LoadPrincipal: %w", service.ErrAccountNotFound)
}

func newTestRouter(t *testing.T) (http.Handler, *token.Service) {
	t.Helper()
	tokens, err := token.New(testSecret)
	require.NoError(t, err)

	loader := stubLoader{
		"bob":  {AccountID: 1, Username: "bob", Enabled: true, Authorities: []string{"ROLE_USER"}},
		"root": {AccountID: 2, Username: "root", Enabled: true, Authorities: []string{"ROLE_ADMIN"}},
	}

	h := NewRouter(stubService{}, Options{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout:       time.Second,
		BasePath:      "/api/v1",
		Authenticator: authn.New(tokens, loader),
	})
	return h, tokens
}

func call(t *testing.T, h http.Handler, method, path, auth, body string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr.Code, env
}

func bearerFor(t *testing.T, tokens *token.Service, subject string) string {
	t.Helper()
	tok, err := tokens.Issue(subject, token.Claims{Kind: token.KindAccess}, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

var gatedRoutes = []struct{ method, path string }{
	{http.MethodPost, "/api/v1/auth/logout"},
	{http.MethodGet, "/api/v1/users/me"},
	{http.MethodGet, "/api/v1/admin/users"},
	{http.MethodGet, "/api/v1/admin/users/1"},
	{http.MethodPatch, "/api/v1/admin/users/1/role"},
	{http.MethodPatch, "/api/v1/admin/users/1/status"},
	{http.MethodDelete, "/api/v1/admin/users/1"},
}

func TestRouter_AnonymousForbiddenOnGatedRoutes(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, rt := range gatedRoutes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			code, env := call(t, h, rt.method, rt.path, "", "")
			require.Equal(t, http.StatusForbidden, code)
			require.Equal(t, false, env["success"])
		})
	}
}

func TestRouter_InvalidTokenIsAnonymous(t *testing.T) {
	h, _ := newTestRouter(t)

	code, _ := call(t, h, http.MethodGet, "/api/v1/users/me", "Bearer not-a-jwt", "")
	require.Equal(t, http.StatusForbidden, code)

	// публичный маршрут с мусорным токеном остаётся доступным
	code, _ = call(t, h, http.MethodPost, "/api/v1/auth/login", "Bearer not-a-jwt", `{"email":"x"}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_AdminRoutesRequireAdmin(t *testing.T) {
	h, tokens := newTestRouter(t)

	code, _ := call(t, h, http.MethodGet, "/api/v1/admin/users", bearerFor(t, tokens, "bob"), "")
	require.Equal(t, http.StatusForbidden, code)

	code, env := call(t, h, http.MethodGet, "/api/v1/admin/users", bearerFor(t, tokens, "root"), "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, env["success"])
	require.Len(t, env["data"], 1)
}

func TestRouter_AuthenticatedRoutes(t *testing.T) {
	h, tokens := newTestRouter(t)
	auth := bearerFor(t, tokens, "bob")

	code, env := call(t, h, http.MethodGet, "/api/v1/users/me", auth, "")
	require.Equal(t, http.StatusOK, code)
	data, ok := env["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(1), data["id"])

	code, _ = call(t, h, http.MethodPost, "/api/v1/auth/logout", auth, "")
	require.Equal(t, http.StatusOK, code)
}

func TestRouter_BasePathAndRequestID(t *testing.T) {
	h, _ := newTestRouter(t)

	// без префикса маршрутов нет
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{`))
	req.Header.Set("X-Request-Id", "rid-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "rid-123", rr.Header().Get("X-Request-Id"))

	var env map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "rid-123", env["requestId"])
}
