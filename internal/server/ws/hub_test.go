package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub("server", slog.Default())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func TestHubBroadcastsSignals(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)

	hello := readEnvelope(t, conn)
	assert.Equal(t, "hello", hello["type"])

	require.NoError(t, hub.HandleSignal(context.Background(), domain.Signal{ID: "s1", StrategyID: "molt"}))

	env := readEnvelope(t, conn)
	assert.Equal(t, "signal", env["type"])
	assert.Equal(t, "signal:molt", env["channel"])
	payload := env["payload"].(map[string]any)
	assert.Equal(t, "s1", payload["id"])
}

func TestHubHonoursUnsubscribe(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{allSignals}}))
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Channels: []string{"signal:discovery"}}))

	// Subscription changes are applied asynchronously by the read pump.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.isSubscribed("signal:discovery") && !c.isSubscribed("signal:molt") {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, hub.HandleSignal(context.Background(), domain.Signal{ID: "m", StrategyID: "molt"}))
	require.NoError(t, hub.HandleSignal(context.Background(), domain.Signal{ID: "d", StrategyID: "discovery"}))

	env := readEnvelope(t, conn)
	assert.Equal(t, "signal:discovery", env["channel"])
}

func TestHubRejectsClientsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub("server", slog.Default())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	handled := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(handled)
		hub.HandleWS(w, r)
	}))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked on a stopped hub")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection should be closed, not idle")
	}
}

func TestIsSubscribedWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"signal:*": true}}
	assert.True(t, c.isSubscribed("signal:molt"))
	assert.False(t, c.isSubscribed("other"))

	c = &client{subs: map[string]bool{"signal:molt": true}}
	assert.True(t, c.isSubscribed("signal:molt"))
	assert.False(t, c.isSubscribed("signal:discovery"))
}
