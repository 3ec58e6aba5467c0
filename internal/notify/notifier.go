// Package notify forwards signals to chat channels (Telegram, Discord). The
// Notifier subscribes to the signal service and drops anything below the
// configured severity.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// Field is a labelled value shown beneath the message body.
type Field struct {
	Name  string
	Value string
}

// Message is a rendered notification. Each sender lays it out in its own
// markup.
type Message struct {
	Title    string
	Body     string
	Fields   []Field
	Action   string
	Severity domain.SignalSeverity
	URL      string
	At       time.Time
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches signals to one or more Senders.
type Notifier struct {
	senders     []Sender
	minSeverity domain.SignalSeverity
	strategies  map[string]bool
	logger      *slog.Logger
}

// NewNotifier creates a Notifier. Signals below minSeverity are dropped; an
// invalid minSeverity means every signal passes. When strategies is
// non-empty only those strategy ids are forwarded.
func NewNotifier(senders []Sender, minSeverity domain.SignalSeverity, strategies []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(strategies))
	for _, s := range strategies {
		if s = strings.TrimSpace(s); s != "" {
			allowed[s] = true
		}
	}
	return &Notifier{
		senders:     senders,
		minSeverity: minSeverity,
		strategies:  allowed,
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether sig passes the severity and strategy filters.
func (n *Notifier) Wants(sig domain.Signal) bool {
	if n.minSeverity.Valid() && sig.Severity.Rank() < n.minSeverity.Rank() {
		return false
	}
	if len(n.strategies) > 0 && !n.strategies[sig.StrategyID] {
		return false
	}
	return true
}

// HandleSignal is a signal service subscriber.
func (n *Notifier) HandleSignal(ctx context.Context, sig domain.Signal) error {
	if !n.Wants(sig) {
		n.logger.DebugContext(ctx, "signal filtered out",
			slog.String("signal_id", sig.ID),
			slog.String("severity", string(sig.Severity)),
		)
		return nil
	}
	return n.dispatch(ctx, Render(sig))
}

// Render formats sig for chat delivery.
func Render(sig domain.Signal) Message {
	msg := Message{
		Title:    fmt.Sprintf("[%s] %s", strings.ToUpper(string(sig.Severity)), sig.Title),
		Body:     sig.Summary,
		Action:   sig.RecommendedAction,
		Severity: sig.Severity,
		At:       sig.Timestamp,
	}
	add := func(name, value string) {
		if value != "" {
			msg.Fields = append(msg.Fields, Field{Name: name, Value: value})
		}
	}
	add("Chain", sig.Chain)
	token := sig.Token
	if sig.TokenSymbol != "" && token != "" {
		token = sig.TokenSymbol + " (" + token + ")"
	}
	add("Token", token)
	add("Wallet", sig.Wallet)
	return msg
}

// dispatch sends msg to every sender. A single sender failure does not
// prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			level := slog.LevelError
			if errors.Is(err, domain.ErrRateLimited) {
				level = slog.LevelWarn
			}
			n.logger.Log(ctx, level, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", msg.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
