package handler

import (
	"net/http"
	"runtime/debug"
	"time"
)

// StatusHandler reports which detectors this process runs.
type StatusHandler struct {
	mode       string
	strategies []string
	startedAt  time.Time
	version    string
}

// NewStatusHandler reports the build version read from the binary.
func NewStatusHandler(mode string, strategies []string, startedAt time.Time) *StatusHandler {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	return &StatusHandler{mode: mode, strategies: strategies, startedAt: startedAt.UTC(), version: version}
}

type statusJSON struct {
	Mode          string   `json:"mode"`
	Strategies    []string `json:"strategies"`
	Version       string   `json:"version"`
	StartedAt     string   `json:"startedAt"`
	UptimeSeconds int64    `json:"uptimeSeconds"`
}

// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusJSON{
		Mode:          h.mode,
		Strategies:    nonNil(h.strategies),
		Version:       h.version,
		StartedAt:     h.startedAt.Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}
