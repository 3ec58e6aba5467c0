package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// SignalService is what the signal endpoints need from the service layer.
type SignalService interface {
	List(ctx context.Context, f domain.SignalFilter, page, limit int) (domain.SignalPage, error)
	ByToken(ctx context.Context, token, chain string, limit int) ([]domain.Signal, error)
	Get(ctx context.Context, id string) (domain.Signal, error)
	Acknowledge(ctx context.Context, id, userID string) (domain.Signal, error)
}

// SignalHandler serves the signal query and acknowledgment endpoints.
type SignalHandler struct {
	svc    SignalService
	logger *slog.Logger
}

// NewSignalHandler serves the /api/signals routes backed by svc.
func NewSignalHandler(svc SignalService, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{svc: svc, logger: logHandler(logger, "signals")}
}

// ListSignals returns one page of signals.
// GET /api/signals?page=&limit=&severity=&strategyId=&chain=&token=&wallet=&acknowledged=&since=&until=
func (h *SignalHandler) ListSignals(w http.ResponseWriter, r *http.Request) {
	f, err := parseSignalFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.svc.List(r.Context(), f, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// SignalsByToken returns the newest signals for one token.
// GET /api/signals/token/{token}?chain=&limit=
func (h *SignalHandler) SignalsByToken(w http.ResponseWriter, r *http.Request) {
	sigs, err := h.svc.ByToken(r.Context(), r.PathValue("token"), r.URL.Query().Get("chain"), queryInt(r, "limit"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sigs})
}

// GetSignal returns one signal.
// GET /api/signals/{id}
func (h *SignalHandler) GetSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

type ackRequest struct {
	UserID string `json:"userId"`
}

// AcknowledgeSignal marks a signal as seen. The user id comes from the JSON
// body or, failing that, the X-User-ID header.
// POST /api/signals/{id}/ack
func (h *SignalHandler) AcknowledgeSignal(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.UserID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}

	sig, err := h.svc.Acknowledge(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func parseSignalFilter(r *http.Request) (domain.SignalFilter, error) {
	q := r.URL.Query()
	f := domain.SignalFilter{
		StrategyID: q.Get("strategyId"),
		Chain:      q.Get("chain"),
		Token:      q.Get("token"),
		Wallet:     q.Get("wallet"),
	}
	if v := q.Get("severity"); v != "" {
		f.Severity = domain.SignalSeverity(strings.ToLower(v))
	}
	if v := q.Get("acknowledged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("acknowledged must be true or false")
		}
		f.Acknowledged = &b
	}
	var err error
	f.Since, f.Until, err = queryTimeRange(q)
	return f, err
}
