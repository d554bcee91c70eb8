package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// MarketCounter reports how many markets are currently tracked in memory.
type MarketCounter interface {
	Len() int
}

// StatusHandler reports runtime information about the mirror process.
type StatusHandler struct {
	mode     string
	start    time.Time
	registry MarketCounter
	logger   *slog.Logger
}

// NewStatusHandler creates a StatusHandler. registry may be nil when the
// process runs in serve-only mode without a local market registry.
func NewStatusHandler(mode string, registry MarketCounter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:     mode,
		start:    time.Now(),
		registry: registry,
		logger:   logger,
	}
}

// GetStatus responds with the process mode, uptime, and tracked market count.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	markets := 0
	if h.registry != nil {
		markets = h.registry.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":      h.mode,
		"uptime":    time.Since(h.start).Round(time.Second).String(),
		"markets":   markets,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
