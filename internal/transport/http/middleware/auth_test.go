package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
)

type sessionStub struct {
	active bool
	calls  int
}

func (s *sessionStub) SessionActive(_ context.Context, userID, sessionID string) (bool, error) {
	s.calls++
	return s.active && userID == "u1" && sessionID == "s1", nil
}

func newToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", RoleName: auth.RoleHR, SessionID: "s1"}, time.Hour)
	require.NoError(t, err)
	return token
}

func TestAuthMiddlewareSetsUser(t *testing.T) {
	secret := "test-secret"
	token := newToken(t, secret)

	called := false
	handler := RequestID(Auth(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r.Context())
		require.True(t, ok)
		assert.Equal(t, "u1", user.UserID)
		assert.Equal(t, auth.RoleHR, user.RoleName)
		assert.Equal(t, "s1", user.SessionID)
		called = true
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, called)
}

func TestAuthMiddlewareMissingToken(t *testing.T) {
	handler := Auth("secret", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := GetUser(r.Context())
		assert.False(t, ok)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestAuthMiddlewareRejectsRevokedSession(t *testing.T) {
	secret := "test-secret"
	sessions := &sessionStub{active: false}
	handler := Auth(secret, sessions)(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("revoked session reached handler")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+newToken(t, secret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, sessions.calls)
}

func TestAuthMiddlewareWebsocketQueryToken(t *testing.T) {
	secret := "test-secret"
	token := newToken(t, secret)
	var seen bool
	handler := Auth(secret, &sessionStub{active: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, seen = GetUser(r.Context())
	}))

	plain := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	handler.ServeHTTP(httptest.NewRecorder(), plain)
	assert.False(t, seen, "query tokens are only honoured on upgrades")

	upgrade := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	upgrade.Header.Set("Upgrade", "websocket")
	handler.ServeHTTP(httptest.NewRecorder(), upgrade)
	assert.True(t, seen)
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RequirePermission(auth.PermAuditRead, auth.StaticPermissions{})(ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "e1", RoleName: auth.RoleEmployee}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "h1", RoleName: auth.RoleHR}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
