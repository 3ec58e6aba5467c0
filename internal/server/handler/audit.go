package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

const maxAuditLimit = 500

// AuditLister is the read side of the audit log.
type AuditLister interface {
	List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit trail read API.
type AuditHandler struct {
	audit  AuditLister
	logger *slog.Logger
}

// NewAuditHandler wires the audit list endpoint to audit.
func NewAuditHandler(audit AuditLister, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logHandler(logger, "audit")}
}

type auditEntryJSON struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt string         `json:"createdAt"`
}

// ListAudit returns audit entries newest first.
// GET /api/audit?event=&since=&until=&limit=&offset=
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, until, err := queryTimeRange(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := queryInt(r, "limit")
	if limit == 0 {
		limit = 100
	}
	limit = min(limit, maxAuditLimit)

	entries, err := h.audit.List(r.Context(), domain.AuditFilter{
		ListOpts:    domain.ListOpts{Limit: limit, Offset: queryInt(r, "offset"), Since: since, Until: until},
		EventPrefix: q.Get("event"),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	out := make([]auditEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = auditEntryJSON{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "count": len(out)})
}
