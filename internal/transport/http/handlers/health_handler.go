package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/goblin987/ultramaxgoodbot/internal/transport/http/dto"
	httperrors "github.com/goblin987/ultramaxgoodbot/internal/transport/http/errors"
)

const healthTimeout = 2 * time.Second

// Pinger is any dependency the health endpoint should probe.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Components = make(map[string]string, len(h.checks))
	}
	for name, ping := range h.checks {
		if ping == nil {
			resp.Components[name] = "disabled"
			continue
		}
		if err := ping(ctx); err != nil {
			resp.Components[name] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "up"
	}

	httperrors.Write(w, status, resp)
}
