package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/platform/config"
	"workforce/internal/platform/metrics"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingRoute struct{}

func (pingRoute) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))
	return config.Config{
		JWTSecret:          "secret",
		FrontendDir:        dir,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 100,
		AccessLogLevel:     "info",
	}
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestProbes(t *testing.T) {
	router := NewRouter(RouterConfig{Config: testConfig(t), DB: pinger{}})
	rec := serve(router, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/readyz").Code)

	down := NewRouter(RouterConfig{Config: testConfig(t), DB: pinger{err: errors.New("down")}})
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/readyz").Code)
}

func TestAPIRoutesAndMetrics(t *testing.T) {
	collector := metrics.New()
	router := NewRouter(RouterConfig{Config: testConfig(t), Metrics: collector, Handlers: []Registrar{pingRoute{}}})

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/api/v1/ping").Code)

	rec := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	router := NewRouter(RouterConfig{Config: testConfig(t)})
	rec := serve(router, http.MethodGet, "/metrics")
	assert.Contains(t, rec.Body.String(), "app")
}

func TestSPAFallback(t *testing.T) {
	router := NewRouter(RouterConfig{Config: testConfig(t)})

	rec := serve(router, http.MethodGet, "/app.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")

	rec = serve(router, http.MethodGet, "/projects/42")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html>app</html>")

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodPost, "/projects").Code)
}

func TestRateLimitOnAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitPerMinute = 2
	router := NewRouter(RouterConfig{Config: cfg, Handlers: []Registrar{pingRoute{}}})

	var last int
	for i := 0; i < 4; i++ {
		last = serve(router, http.MethodGet, "/api/v1/ping").Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz").Code)
}

func TestCheckNotificationDefaults(t *testing.T) {
	assert.NoError(t, checkNotificationDefaults(nil))
	assert.NoError(t, checkNotificationDefaults([]config.NotificationDefault{
		{Role: "hr", Type: "work_request_pending_hr", Email: true},
		{Role: "employee", Type: "*", InApp: true},
	}))

	err := checkNotificationDefaults([]config.NotificationDefault{{Role: "hr", Type: "work_request_pending"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")

	err = checkNotificationDefaults([]config.NotificationDefault{{Role: "manager", Type: "task_assigned"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown role")
}

func TestNewRejectsUnknownNotificationDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.NotificationDefaults = []config.NotificationDefault{{Role: "hr", Type: "bogus"}}
	app, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
}
