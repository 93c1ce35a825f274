package api

import (
	"context"
	"net/http"
	"time"
)

const readyTimeout = 2 * time.Second

// Readiness reports whether the service can serve traffic.
type Readiness interface {
	Ready(ctx context.Context) error
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	ready   Readiness
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready Readiness) *HealthHandler {
	return &HealthHandler{ready: ready, started: time.Now()}
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Error         string  `json:"error,omitempty"`
}

// HandleHealth handles GET /healthz. It only reports that the process is up.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", UptimeSeconds: time.Since(h.started).Seconds()})
}

// HandleReady handles GET /readyz, which also checks the database.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := healthResponse{Status: "ready", UptimeSeconds: time.Since(h.started).Seconds()}
	if err := h.ready.Ready(ctx); err != nil {
		resp.Status, resp.Error = "unavailable", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
