package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/workers"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) Health(ctx context.Context) error { return f(ctx) }

type staticWorkers []workers.Status

func (s staticWorkers) Statuses() []workers.Status { return s }

func ok(context.Context) error { return nil }

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]Checker
		wantCode int
		wantBody string
	}{
		{
			name:     "all healthy",
			checks:   map[string]Checker{"postgres": checkFunc(ok), "redis": checkFunc(ok)},
			wantCode: http.StatusOK,
			wantBody: "healthy",
		},
		{
			name: "redis down",
			checks: map[string]Checker{
				"postgres": checkFunc(ok),
				"redis":    checkFunc(func(context.Context) error { return errors.New("connection refused") }),
			},
			wantCode: http.StatusServiceUnavailable,
			wantBody: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.checks, nil, "lendingrisk", "test")
			rec := httptest.NewRecorder()
			h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantCode, rec.Code)

			var body Status
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestHealthIncludesWorkers(t *testing.T) {
	h := New(map[string]Checker{"postgres": checkFunc(ok)}, staticWorkers{{Name: "health_factor_analyzer", RunCount: 3}}, "lendingrisk", "test")
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Workers, 1)
	assert.Equal(t, int64(3), body.Workers[0].RunCount)
}

func TestLiveness(t *testing.T) {
	h := New(nil, nil, "lendingrisk", "test")
	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
