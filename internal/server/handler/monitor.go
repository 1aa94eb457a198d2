package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// Triggerer requests an immediate monitor tick.
type Triggerer interface {
	Trigger() bool
}

// MonitorHandler serves the monitor trigger endpoint.
type MonitorHandler struct {
	monitor Triggerer
	logger  *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler. A nil monitor answers 503,
// which is the case in server-only mode.
func NewMonitorHandler(monitor Triggerer, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, logger: logHandler(logger, "monitor")}
}

// Trigger enqueues one monitor tick.
// POST /api/monitor/trigger
func (h *MonitorHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor is not running in this process")
		return
	}
	queued := h.monitor.Trigger()
	h.logger.InfoContext(r.Context(), "monitor trigger requested", slog.Bool("queued", queued))

	msg := "monitor tick enqueued"
	if !queued {
		// already triggered and not yet consumed
		msg = "monitor tick already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
