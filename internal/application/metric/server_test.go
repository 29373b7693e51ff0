package metric

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServer_Ready(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]HealthCheck
		status int
		body   string
	}{
		{name: "no checks", checks: nil, status: http.StatusOK, body: `"ok"`},
		{name: "healthy", checks: map[string]HealthCheck{"postgres": healthy}, status: http.StatusOK, body: `"ok"`},
		{
			name:   "failing",
			checks: map[string]HealthCheck{"postgres": healthy, "rooms": broken},
			status: http.StatusServiceUnavailable,
			body:   `"rooms":"connection refused"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewServer(tt.checks)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestServer_Live(t *testing.T) {
	e := NewServer(map[string]HealthCheck{
		"rooms": func(context.Context) error { return errors.New("down") },
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
