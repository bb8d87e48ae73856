package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"workforce/internal/transport/http/api"
)

// RateLimitKeyFunc picks the bucket a request is counted against.
type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*fixedWindow)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(fw *fixedWindow) {
		if fn != nil {
			fw.keyFn = fn
		}
	}
}

// RateLimit allows limit requests per window per caller. Authenticated
// callers are keyed by user id, anonymous ones by client IP.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	fw := newFixedWindow(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(fw)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fw.serve(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

type sensitiveScope string

const (
	sensitiveScopeNone  sensitiveScope = ""
	sensitiveScopeAuth  sensitiveScope = "auth"
	sensitiveScopeActor sensitiveScope = "actor"
)

type scopeRule struct {
	prefix string
	suffix string
	exact  bool
	scope  sensitiveScope
}

// sensitiveRules match paths below /api/v1. The first matching rule wins.
var sensitiveRules = []scopeRule{
	{prefix: "/auth/login", exact: true, scope: sensitiveScopeAuth},
	{prefix: "/auth/request-reset", exact: true, scope: sensitiveScopeAuth},
	{prefix: "/auth/reset", exact: true, scope: sensitiveScopeAuth},
	{prefix: "/auth/mfa/", scope: sensitiveScopeAuth},
	{prefix: "/reports/utilization/generate", exact: true, scope: sensitiveScopeActor},
	{prefix: "/resource-requests/", suffix: "/approve", scope: sensitiveScopeActor},
	{prefix: "/resource-requests/", suffix: "/reject", scope: sensitiveScopeActor},
	{prefix: "/work-requests/", suffix: "/approve", scope: sensitiveScopeActor},
	{prefix: "/work-requests/", suffix: "/reject", scope: sensitiveScopeActor},
	{prefix: "/work-requests/", suffix: "/documents", scope: sensitiveScopeActor},
	{prefix: "/admin/roles/", scope: sensitiveScopeActor},
	{prefix: "/users/", suffix: "/role", scope: sensitiveScopeActor},
}

func (rule scopeRule) matches(path string) bool {
	if rule.exact {
		return path == rule.prefix
	}
	return strings.HasPrefix(path, rule.prefix) && strings.HasSuffix(path, rule.suffix)
}

func sensitiveRateScope(r *http.Request) sensitiveScope {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return sensitiveScopeNone
	}
	path := strings.TrimPrefix(strings.TrimSpace(r.URL.Path), "/api/v1")
	for _, rule := range sensitiveRules {
		if rule.matches(path) {
			return rule.scope
		}
	}
	return sensitiveScopeNone
}

// SensitiveMutationRateLimit adds tighter limits on credential endpoints
// (a quarter of baseLimit, by IP and by submitted email) and on approval and
// permission changes (half of baseLimit, by actor).
func SensitiveMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	authLimit := max(baseLimit/4, 1)
	byIP := newFixedWindow(authLimit, window, clientIPKey)
	byEmail := newFixedWindow(authLimit, window, AuthEmailOrIPKey("email"))
	byActor := newFixedWindow(max(baseLimit/2, 1), window, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var limiters []*fixedWindow
			switch sensitiveRateScope(r) {
			case sensitiveScopeAuth:
				limiters = []*fixedWindow{byIP, byEmail}
			case sensitiveScopeActor:
				limiters = []*fixedWindow{byActor}
			}
			for _, fw := range limiters {
				if !fw.serve(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthEmailOrIPKey keys credential endpoints by the email in the JSON body
// so one address cannot be brute forced from many IPs.
func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	if field = strings.TrimSpace(field); field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		if email := peekJSONString(r, field); email != "" {
			return "email:" + strings.ToLower(email)
		}
		return clientIPKey(r)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// peekJSONString reads one string field from a JSON body and restores the
// body for the handler.
func peekJSONString(r *http.Request, field string) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(payload[field], &value); err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

type windowCount struct {
	count int
	reset time.Time
}

type decision struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

// fixedWindow counts requests per key in fixed windows. Expired buckets are
// swept at most once per window.
type fixedWindow struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	keyFn     RateLimitKeyFunc
	buckets   map[string]*windowCount
	nextSweep time.Time
	now       func() time.Time
}

func newFixedWindow(limit int, window time.Duration, keyFn RateLimitKeyFunc) *fixedWindow {
	if keyFn == nil {
		keyFn = clientIPKey
	}
	return &fixedWindow{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		buckets: map[string]*windowCount{},
		now:     time.Now,
	}
}

func (fw *fixedWindow) allow(key string) decision {
	now := fw.now()
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if now.After(fw.nextSweep) {
		for k, b := range fw.buckets {
			if now.After(b.reset) {
				delete(fw.buckets, k)
			}
		}
		fw.nextSweep = now.Add(fw.window)
	}

	b := fw.buckets[key]
	if b == nil || now.After(b.reset) {
		b = &windowCount{reset: now.Add(fw.window)}
		fw.buckets[key] = b
	}
	b.count++
	return decision{
		allowed:   b.count <= fw.limit,
		remaining: max(fw.limit-b.count, 0),
		resetIn:   b.reset.Sub(now),
	}
}

// serve applies the limit and writes the 429 response when exceeded.
func (fw *fixedWindow) serve(w http.ResponseWriter, r *http.Request) bool {
	if fw.limit <= 0 {
		return true
	}
	key := fw.keyFn(r)
	if key == "" {
		key = clientIPKey(r)
	}
	d := fw.allow(key)
	resetSec := ceilSeconds(d.resetIn)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(fw.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if d.allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", fw.limit)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
