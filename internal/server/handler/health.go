package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	mode    string
	days    int
	started time.Time
}

// NewHealthHandler creates a HealthHandler reporting the given mode and
// arena size.
func NewHealthHandler(mode string, days int) *HealthHandler {
	return &HealthHandler{
		mode:    mode,
		days:    days,
		started: time.Now().UTC(),
	}
}

// HealthCheck reports that the server is alive together with its mode, the
// arena size, and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"days":           h.days,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
