// Package handlertest holds helpers shared by the HTTP handler tests.
package handlertest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"workforce/internal/domain/auth"
	"workforce/internal/transport/http/middleware"
)

type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// ErrorCode returns the error code or "" for successful responses.
func (e Envelope) ErrorCode() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

// Decode unmarshals the data payload into dst.
func (e Envelope) Decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, dst))
}

type Registrar interface {
	RegisterRoutes(r chi.Router)
}

func Router(handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	for _, h := range handlers {
		h.RegisterRoutes(r)
	}
	return r
}

// Raw sends a request and returns the recorder without decoding the body.
func Raw(handler http.Handler, method, target string, body io.Reader, contentType string, user *auth.UserContext) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return Send(handler, req, user)
}

// Send serves a prepared request as user.
func Send(handler http.Handler, req *http.Request, user *auth.UserContext) *httptest.ResponseRecorder {
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// Do sends a JSON request and decodes the response envelope.
func Do(t *testing.T, handler http.Handler, method, target, body string, user *auth.UserContext) (int, Envelope) {
	t.Helper()
	rec := Raw(handler, method, target, strings.NewReader(body), "application/json", user)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func User(id, role string) *auth.UserContext {
	return &auth.UserContext{UserID: id, RoleName: role}
}

// AuditLog records the actions passed to it.
type AuditLog struct {
	mu      sync.Mutex
	Actions []string
	Entity  []string
}

func (a *AuditLog) Record(_ context.Context, _, action, _, entityID, _, _ string, _, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Actions = append(a.Actions, action)
	a.Entity = append(a.Entity, entityID)
	return nil
}

// Idempotency is an in-memory idempotency backend.
type Idempotency struct {
	mu    sync.Mutex
	saved map[string]middleware.StoredResponse
	hash  map[string]string
}

func NewIdempotency() *Idempotency {
	return &Idempotency{saved: map[string]middleware.StoredResponse{}, hash: map[string]string{}}
}

func (m *Idempotency) Check(_ context.Context, userID, endpoint, key, requestHash string) (middleware.StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := userID + "|" + endpoint + "|" + key
	stored, ok := m.saved[id]
	if !ok {
		return middleware.StoredResponse{}, false, nil
	}
	if m.hash[id] != requestHash {
		return middleware.StoredResponse{}, false, middleware.ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (m *Idempotency) Save(_ context.Context, userID, endpoint, key, requestHash string, response middleware.StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := userID + "|" + endpoint + "|" + key
	m.saved[id] = response
	m.hash[id] = requestHash
	return nil
}
