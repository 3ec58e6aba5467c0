package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/google/uuid"
)

const (
	defaultSignalChannel = "signals"
	defaultPageLimit     = 20
	maxPageLimit         = 100
	defaultTokenLimit    = 10
	maxTokenLimit        = 50
	publishTimeout       = 2 * time.Second
)

// SignalHandler receives every signal created locally or arriving on the
// shared channel. Returned errors and panics are logged and never stop
// delivery to other handlers.
type SignalHandler func(ctx context.Context, sig domain.Signal) error

// signalEnvelope is the wire form on the shared channel. Origin lets a
// process recognise (and skip) its own publications.
type signalEnvelope struct {
	Origin string        `json:"origin"`
	Signal domain.Signal `json:"signal"`
}

// SignalService is the canonical sink for alerts: it persists signals,
// fans them out to subscribers, and serves filtered reads.
type SignalService struct {
	store   domain.SignalStore
	bus     domain.SignalBus
	audit   domain.AuditStore
	channel string
	origin  string
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]SignalHandler
	nextID uint64
}

// NewSignalService creates a SignalService. bus and audit may be nil, in
// which case signals are only delivered in-process and nothing is audited.
func NewSignalService(
	store domain.SignalStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	channel string,
	logger *slog.Logger,
) *SignalService {
	if channel == "" {
		channel = defaultSignalChannel
	}
	return &SignalService{
		store:   store,
		bus:     bus,
		audit:   audit,
		channel: channel,
		origin:  uuid.NewString(),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "signal_service")),
		subs:    make(map[uint64]SignalHandler),
	}
}

// WithClock overrides the timestamp source.
func (s *SignalService) WithClock(now func() time.Time) *SignalService {
	s.now = now
	return s
}

// Create validates the payload, assigns an id and server timestamp,
// persists the signal, then publishes it. Nothing is published when
// persistence fails. Publish failures are logged and do not fail creation.
func (s *SignalService) Create(ctx context.Context, in domain.CreateSignal) (domain.Signal, error) {
	if err := validateCreate(in); err != nil {
		return domain.Signal{}, err
	}

	sig := domain.Signal{
		ID:                uuid.NewString(),
		Timestamp:         s.now().UTC().Truncate(time.Microsecond),
		Severity:          in.Severity,
		Type:              in.Type,
		Title:             in.Title,
		Summary:           in.Summary,
		Token:             in.Token,
		TokenSymbol:       in.TokenSymbol,
		Chain:             in.Chain,
		Wallet:            in.Wallet,
		StrategyID:        in.StrategyID,
		Evidence:          in.Evidence,
		RecommendedAction: in.RecommendedAction,
		Metadata:          in.Metadata,
	}

	if err := s.store.Insert(ctx, sig); err != nil {
		return domain.Signal{}, fmt.Errorf("signal_service: persist %s: %w: %w", sig.ID, domain.ErrPersistence, err)
	}

	s.publish(ctx, sig)
	s.dispatch(ctx, sig)
	s.auditLog(ctx, domain.AuditSignalCreated, map[string]any{
		"signal_id":   sig.ID,
		"signal_type": string(sig.Type),
		"strategy_id": sig.StrategyID,
	})

	s.logger.Info("signal created",
		slog.String("id", sig.ID),
		slog.String("type", string(sig.Type)),
		slog.String("severity", string(sig.Severity)),
		slog.String("token", sig.Token),
		slog.String("wallet", sig.Wallet),
	)
	return sig, nil
}

func validateCreate(in domain.CreateSignal) error {
	var problems []string
	if !in.Severity.Valid() {
		problems = append(problems, fmt.Sprintf("unknown severity %q", in.Severity))
	}
	if in.Type == "" {
		problems = append(problems, "signal type is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if in.StrategyID == "" {
		problems = append(problems, "strategy id is required")
	}
	if len(in.Evidence) > 0 && !json.Valid(in.Evidence) {
		problems = append(problems, "evidence is not valid JSON")
	}
	if len(problems) > 0 {
		return fmt.Errorf("signal_service: %w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// publish is fire-and-forget: a subscriber that misses it can re-query the
// store.
func (s *SignalService) publish(ctx context.Context, sig domain.Signal) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(signalEnvelope{Origin: s.origin, Signal: sig})
	if err != nil {
		s.logger.Error("marshal signal for publish failed",
			slog.String("id", sig.ID), slog.String("error", err.Error()))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.bus.Publish(pubCtx, s.channel, payload); err != nil {
		s.logger.Warn("publish signal failed",
			slog.String("id", sig.ID), slog.String("channel", s.channel), slog.String("error", err.Error()))
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *SignalService) Subscribe(fn SignalHandler) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// dispatch calls every handler in registration order.
func (s *SignalService) dispatch(ctx context.Context, sig domain.Signal) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]SignalHandler, len(ids))
	for i, id := range ids {
		handlers[i] = s.subs[id]
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		s.invoke(ctx, h, sig)
	}
}

func (s *SignalService) invoke(ctx context.Context, h SignalHandler, sig domain.Signal) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("signal handler panicked",
				slog.String("id", sig.ID), slog.Any("panic", r))
		}
	}()
	if err := h(ctx, sig); err != nil {
		s.logger.Warn("signal handler failed",
			slog.String("id", sig.ID), slog.String("error", err.Error()))
	}
}

// Run consumes the shared channel and delivers signals published by other
// processes to local handlers. It blocks until ctx is cancelled.
func (s *SignalService) Run(ctx context.Context) error {
	if s.bus == nil {
		<-ctx.Done()
		return nil
	}

	ch, err := s.bus.Subscribe(ctx, s.channel)
	if err != nil {
		return fmt.Errorf("signal_service: subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("listening for remote signals", slog.String("channel", s.channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			sig, origin, err := decodeSignal(payload)
			if err != nil {
				s.logger.Debug("dropping undecodable signal message", slog.String("error", err.Error()))
				continue
			}
			if origin == s.origin {
				continue
			}
			s.dispatch(ctx, sig)
		}
	}
}

// decodeSignal accepts both the envelope and a bare serialized signal from
// publishers that do not wrap.
func decodeSignal(payload []byte) (domain.Signal, string, error) {
	var env signalEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Signal.ID != "" {
		return env.Signal, env.Origin, nil
	}
	var sig domain.Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return domain.Signal{}, "", err
	}
	if sig.ID == "" {
		return domain.Signal{}, "", errors.New("signal has no id")
	}
	return sig, "", nil
}

// List returns one page of signals matching every set filter field, newest
// first. page starts at 1; limit defaults to 20 and is clamped to [1,100].
func (s *SignalService) List(ctx context.Context, f domain.SignalFilter, page, limit int) (domain.SignalPage, error) {
	if f.Severity != "" && !f.Severity.Valid() {
		return domain.SignalPage{}, fmt.Errorf("signal_service: %w: unknown severity %q", domain.ErrValidation, f.Severity)
	}
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, defaultPageLimit, maxPageLimit)

	// Pages past the end still report the total; saturate instead of overflowing.
	offset := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		offset = (page - 1) * limit
	}

	data, total, err := s.store.List(ctx, f, domain.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		return domain.SignalPage{}, fmt.Errorf("signal_service: list: %w", err)
	}
	if data == nil {
		data = []domain.Signal{}
	}

	return domain.SignalPage{
		Data:       data,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// ByToken returns the newest signals for token, matched case-insensitively
// and optionally narrowed to chain. limit defaults to 10 and is clamped to
// [1,50].
func (s *SignalService) ByToken(ctx context.Context, token, chain string, limit int) ([]domain.Signal, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("signal_service: %w: token is required", domain.ErrValidation)
	}
	limit = clampLimit(limit, defaultTokenLimit, maxTokenLimit)

	data, _, err := s.store.List(ctx, domain.SignalFilter{Token: token, Chain: chain}, domain.ListOpts{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("signal_service: by token %s: %w", token, err)
	}
	if data == nil {
		data = []domain.Signal{}
	}
	return data, nil
}

// Get returns one signal by id.
func (s *SignalService) Get(ctx context.Context, id string) (domain.Signal, error) {
	sig, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("signal_service: get %s: %w", id, err)
	}
	return sig, nil
}

// Acknowledge marks a signal as seen by userID. Re-acknowledging overwrites
// the previous acknowledgment. Unknown ids yield domain.ErrNotFound.
func (s *SignalService) Acknowledge(ctx context.Context, id, userID string) (domain.Signal, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Signal{}, fmt.Errorf("signal_service: %w: user id is required", domain.ErrValidation)
	}

	sig, err := s.store.Acknowledge(ctx, id, userID, s.now().UTC())
	if err != nil {
		return domain.Signal{}, fmt.Errorf("signal_service: acknowledge %s: %w", id, err)
	}

	s.auditLog(ctx, domain.AuditSignalAcknowledged, map[string]any{
		"signal_id": id,
		"user_id":   userID,
	})
	return sig, nil
}

func (s *SignalService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func clampLimit(limit, def, hi int) int {
	if limit == 0 {
		return def
	}
	if limit < 1 {
		return 1
	}
	if limit > hi {
		return hi
	}
	return limit
}
