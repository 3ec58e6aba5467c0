package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

type stubSender struct {
	name string
	got  []Message
	err  error
}

func (s *stubSender) Send(_ context.Context, msg Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sampleSignal(sev domain.SignalSeverity) domain.Signal {
	return domain.Signal{
		ID:                "s1",
		Severity:          sev,
		Type:              domain.SignalTypeMoltDetected,
		Title:             "Molt: 0x1111…1111 rotated out of AAA",
		Summary:           "Wallet sold 70% of AAA.",
		Token:             "0xaaa",
		TokenSymbol:       "AAA",
		Chain:             "base",
		Wallet:            "0x1111",
		StrategyID:        "molt",
		RecommendedAction: "Review exposure.",
	}
}

func TestNotifierFiltersBySeverity(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, domain.SeverityHigh, nil, testLogger())

	require.NoError(t, n.HandleSignal(context.Background(), sampleSignal(domain.SeverityMedium)))
	assert.Empty(t, s.got)

	require.NoError(t, n.HandleSignal(context.Background(), sampleSignal(domain.SeverityCritical)))
	require.Len(t, s.got, 1)
	assert.Equal(t, "[CRITICAL] Molt: 0x1111…1111 rotated out of AAA", s.got[0].Title)
	assert.Equal(t, "Wallet sold 70% of AAA.", s.got[0].Body)
	assert.Equal(t, []Field{{"Chain", "base"}, {"Token", "AAA (0xaaa)"}, {"Wallet", "0x1111"}}, s.got[0].Fields)
	assert.Equal(t, "Review exposure.", s.got[0].Action)
}

func TestNotifierFiltersByStrategy(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, "", []string{"discovery"}, testLogger())

	require.NoError(t, n.HandleSignal(context.Background(), sampleSignal(domain.SeverityHigh)))
	assert.Empty(t, s.got)
}

func TestNotifierContinuesAfterSenderFailure(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("down")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, domain.SeverityLow, nil, testLogger())

	err := n.HandleSignal(context.Background(), sampleSignal(domain.SeverityHigh))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: down")
	assert.Len(t, good.got, 1)

	limited := &stubSender{name: "limited", err: domain.ErrRateLimited}
	n = NewNotifier([]Sender{limited}, domain.SeverityLow, nil, testLogger())
	assert.ErrorIs(t, n.HandleSignal(context.Background(), sampleSignal(domain.SeverityHigh)), domain.ErrRateLimited)
}

func TestTelegramSenderPostsHTML(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), Message{
		Title:  "a<b",
		Body:   "x & y",
		Fields: []Field{{"Wallet", "0x_1"}},
		Action: "Review",
	}))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>a&lt;b</b>\nx &amp; y\n<b>Wallet:</b> <code>0x_1</code>\n\n<i>Review</i>", got["text"])
}

func TestTelegramSenderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewTelegramSender("T", "1").WithBaseURL(srv.URL).Send(context.Background(), Message{Title: "t"})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "retry after 7s")
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), Message{
		Title:    "t",
		Body:     "b",
		Fields:   []Field{{"Chain", "base"}},
		Action:   "Review",
		Severity: domain.SeverityHigh,
		At:       at,
	}))
	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Equal(t, 0xE74C3C, e.Color)
	assert.Equal(t, []discordField{{Name: "Chain", Value: "base", Inline: true}}, e.Fields)
	require.NotNil(t, e.Footer)
	assert.Equal(t, "Review", e.Footer.Text)
	assert.Equal(t, "2026-05-01T12:00:00Z", e.Timestamp)

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer fail.Close()
	assert.Error(t, NewDiscordSender(fail.URL).Send(context.Background(), Message{Title: "t"}))
}
