package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/api/middleware"
	"github.com/breatheroute/aqbackfill/internal/api/models"
	"github.com/breatheroute/aqbackfill/internal/api/response"
)

// serve runs fn behind the RequestID middleware.
func serve(fn http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/progress", http.NoBody)
	middleware.RequestID(fn).ServeHTTP(rec, req)
	return rec
}

func TestJSON_IncludesRequestID(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"message": "hello"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "hello", body["message"])
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", http.NoBody)

	response.JSON(rec, req, http.StatusAccepted, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestServiceUnavailable(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		response.ServiceUnavailable(w, r, "no job")
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, "/v1/progress", p.Instance)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), p.TraceID)
}

func TestNotFound(t *testing.T) {
	rec := serve(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "missing")
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
