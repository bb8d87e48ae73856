package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSetsTotalHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []string{"a", "b"}, 7, "req-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-Total-Count"))

	var env struct {
		Success   bool     `json:"success"`
		Data      []string `json:"data"`
		RequestID string   `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, []string{"a", "b"}, env.Data)
	assert.Equal(t, "req-1", env.RequestID)
}

func TestFailWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": []string{"name"}}, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.NotNil(t, env.Error.Details)
}
