package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// JobRunner runs a named maintenance job once.
type JobRunner interface {
	HasJob(name string) bool
	RunNamed(ctx context.Context, name string) error
}

// JobHandler lets operators trigger archive and re-baseline runs by hand.
type JobHandler struct {
	runner JobRunner
	logger *slog.Logger
}

// NewJobHandler lets operators trigger maintenance jobs on runner.
func NewJobHandler(runner JobRunner, logger *slog.Logger) *JobHandler {
	return &JobHandler{runner: runner, logger: logHandler(logger, "jobs")}
}

// TriggerJob starts the job in the background and returns immediately.
// POST /api/jobs/{name}/run
func (h *JobHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.runner.HasJob(name) {
		writeError(w, http.StatusNotFound, "unknown job "+name)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := h.runner.RunNamed(ctx, name); err != nil && !errors.Is(err, domain.ErrLockHeld) {
			h.logger.Error("triggered job failed", slog.String("job", name), slog.String("error", err.Error()))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"job":          name,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
