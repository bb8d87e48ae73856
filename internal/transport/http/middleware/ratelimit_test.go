package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func request(method, path, remote, body string, user *auth.UserContext) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = remote
	if user != nil {
		req = req.WithContext(WithUser(context.Background(), *user))
	}
	return req
}

func hit(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitKeysByUserBeforeIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent)
	hr := &auth.UserContext{UserID: "hr-1", RoleName: auth.RoleHR}

	assert.Equal(t, http.StatusNoContent, hit(limited, request(http.MethodPost, "/api/v1/tasks", "198.51.100.11:1", "", hr)).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(limited, request(http.MethodPost, "/api/v1/tasks", "198.51.100.12:2", "", hr)).Code,
		"a second IP does not reset the user's bucket")

	other := &auth.UserContext{UserID: "hr-2", RoleName: auth.RoleHR}
	assert.Equal(t, http.StatusNoContent, hit(limited, request(http.MethodPost, "/api/v1/tasks", "198.51.100.11:1", "", other)).Code)
}

func TestRateLimitAnonymousUsesIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent)
	assert.Equal(t, http.StatusNoContent, hit(limited, request(http.MethodGet, "/api/v1/x", "203.0.113.10:4444", "", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(limited, request(http.MethodGet, "/api/v1/x", "203.0.113.10:5555", "", nil)).Code)

	forwarded := request(http.MethodGet, "/api/v1/x", "203.0.113.10:4444", "", nil)
	forwarded.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")
	assert.Equal(t, http.StatusNoContent, hit(limited, forwarded).Code)
}

func TestRateLimitHeaders(t *testing.T) {
	limited := RateLimit(1, time.Minute)(noContent)
	first := hit(limited, request(http.MethodGet, "/", "192.0.2.30:1", "", nil))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	rec := hit(limited, request(http.MethodGet, "/", "192.0.2.30:1", "", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestFixedWindowResetsAndSweeps(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fw := newFixedWindow(1, time.Minute, nil)
	fw.now = func() time.Time { return now }

	assert.True(t, fw.allow("a").allowed)
	assert.False(t, fw.allow("a").allowed)
	assert.True(t, fw.allow("b").allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, fw.allow("a").allowed)
	fw.mu.Lock()
	_, kept := fw.buckets["b"]
	fw.mu.Unlock()
	assert.False(t, kept, "expired bucket is swept")
}

func TestAuthEmailKeyKeepsBody(t *testing.T) {
	keyFn := AuthEmailOrIPKey("")
	req := request(http.MethodPost, "/api/v1/auth/login", "192.0.2.1:1", `{"email":" Ada@Example.com ","password":"x"}`, nil)
	assert.Equal(t, "email:ada@example.com", keyFn(req))

	var buf bytes.Buffer
	_, err := buf.ReadFrom(req.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"password":"x"`)

	assert.Equal(t, "192.0.2.1", keyFn(request(http.MethodPost, "/api/v1/auth/login", "192.0.2.1:1", `{"email":42}`, nil)))
}

func TestSensitiveMutationRateLimit(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(noContent)

	for i := 0; i < 6; i++ {
		assert.Equal(t, http.StatusNoContent, hit(limited, request(http.MethodGet, "/api/v1/reports/dashboard", "198.51.100.40:1", "", nil)).Code)
	}

	hr := &auth.UserContext{UserID: "hr-1", RoleName: auth.RoleHR}
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = hit(limited, request(http.MethodPost, "/api/v1/work-requests/w1/approve", "198.51.100.41:1", "", hr)).Code
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	login := func(email, remote string) int {
		return hit(limited, request(http.MethodPost, "/api/v1/auth/login", remote, `{"email":"`+email+`"}`, nil)).Code
	}
	assert.Equal(t, http.StatusNoContent, login("a@example.com", "192.0.2.50:1"))
	assert.Equal(t, http.StatusTooManyRequests, login("a@example.com", "192.0.2.51:1"), "same email from another IP")
	assert.Equal(t, http.StatusTooManyRequests, login("b@example.com", "192.0.2.50:1"), "same IP with another email")
}

func TestSensitiveRateScopePaths(t *testing.T) {
	cases := map[string]sensitiveScope{
		"/api/v1/auth/login":                   sensitiveScopeAuth,
		"/api/v1/auth/mfa/enable":              sensitiveScopeAuth,
		"/api/v1/work-requests/w1/approve":     sensitiveScopeActor,
		"/api/v1/resource-requests/r1/reject":  sensitiveScopeActor,
		"/api/v1/work-requests/w1/documents":   sensitiveScopeActor,
		"/api/v1/reports/utilization/generate": sensitiveScopeActor,
		"/api/v1/admin/roles/hr":               sensitiveScopeActor,
		"/api/v1/users/u1/role":                sensitiveScopeActor,
		"/api/v1/auth/logout":                  sensitiveScopeNone,
		"/api/v1/tasks":                        sensitiveScopeNone,
		"/api/v1/users/u1":                     sensitiveScopeNone,
	}
	for path, want := range cases {
		assert.Equal(t, want, sensitiveRateScope(httptest.NewRequest(http.MethodPost, path, nil)), path)
	}
	assert.Equal(t, sensitiveScopeNone, sensitiveRateScope(httptest.NewRequest(http.MethodGet, "/api/v1/auth/login", nil)))
}
