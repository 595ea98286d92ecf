package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/api/models"
)

func TestProblem_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	models.NewServiceUnavailable("req-1", "no job running").WithInstance("/v1/progress").Write(rec)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))

	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, models.ProblemTypeUnavailable, p.Type)
	assert.Equal(t, "no job running", p.Detail)
	assert.Equal(t, "/v1/progress", p.Instance)
	assert.Equal(t, http.StatusServiceUnavailable, p.Status)
}

func TestProblem_Constructors(t *testing.T) {
	tests := []struct {
		problem *models.Problem
		status  int
	}{
		{models.NewNotFound("r", "x"), http.StatusNotFound},
		{models.NewTooManyRequests("r", "x"), http.StatusTooManyRequests},
		{models.NewInternalError("r", "x"), http.StatusInternalServerError},
		{models.NewServiceUnavailable("r", "x"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.problem.Status)
		assert.Equal(t, "x", tt.problem.Detail)
		assert.NotEmpty(t, tt.problem.Title)
	}
}

func TestTimestamp_MarshalsUTC(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	ts := models.Timestamp(time.Date(2022, 1, 1, 7, 0, 0, 0, loc))

	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2022-01-01T00:00:00Z"`, string(b))

	assert.Nil(t, models.TimestampPtr(nil))
	now := time.Now()
	assert.True(t, models.TimestampPtr(&now).Time().Equal(now))
}
