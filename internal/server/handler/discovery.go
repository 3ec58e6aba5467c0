package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gniumg-source/clawfi-g-sub001/internal/discovery"
	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// DiscoveryEngine is what the discovery endpoints need from the engine.
type DiscoveryEngine interface {
	Scan(ctx context.Context, opts discovery.ScanOptions) ([]domain.Evaluation, error)
	AnalyzeToken(ctx context.Context, address, chain string) (domain.Evaluation, error)
	Latest(ctx context.Context) ([]domain.Evaluation, error)
}

// DiscoveryHandler exposes on-demand scans and single-token analysis.
type DiscoveryHandler struct {
	engine DiscoveryEngine
	logger *slog.Logger
}

// NewDiscoveryHandler exposes engine scans and cached candidates.
func NewDiscoveryHandler(engine DiscoveryEngine, logger *slog.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{engine: engine, logger: logHandler(logger, "discovery")}
}

// Scan runs a discovery pass.
// GET /api/discovery/scan?chains=base,solana&limit=20
func (h *DiscoveryHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var chains []string
	if v := r.URL.Query().Get("chains"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				chains = append(chains, c)
			}
		}
	}
	evals, err := h.engine.Scan(r.Context(), discovery.ScanOptions{Chains: chains, Limit: queryInt(r, "limit")})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(evals), "count": len(evals)})
}

// AnalyzeToken evaluates one token against the gate.
// GET /api/discovery/token/{address}?chain=
func (h *DiscoveryHandler) AnalyzeToken(w http.ResponseWriter, r *http.Request) {
	ev, err := h.engine.AnalyzeToken(r.Context(), r.PathValue("address"), r.URL.Query().Get("chain"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Latest returns the most recent scan result.
// GET /api/discovery/latest
func (h *DiscoveryHandler) Latest(w http.ResponseWriter, r *http.Request) {
	evals, err := h.engine.Latest(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": nonNil(evals), "count": len(evals)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
