package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goblin987/ultramaxgoodbot/internal/transport/http/dto"
)

func TestHealthHandler(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	cases := []struct {
		name   string
		checks map[string]Pinger
		status int
		want   string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"all up", map[string]Pinger{"postgres": up, "redis": up, "s3": nil}, http.StatusOK, "ok"},
		{"redis down", map[string]Pinger{"postgres": up, "redis": down}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandler(tc.checks).Get(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tc.status {
				t.Fatalf("unexpected status: got %d want %d", rr.Code, tc.status)
			}
			var resp dto.HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tc.want {
				t.Fatalf("unexpected health status %q", resp.Status)
			}
			if tc.name == "redis down" && resp.Components["redis"] != "down" {
				t.Fatalf("unexpected components %v", resp.Components)
			}
		})
	}
}
