package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memcache "github.com/gniumg-source/clawfi-g-sub001/internal/cache/memory"
	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHandler struct {
	mu       sync.Mutex
	byWallet map[string][]string
	failIDs  map[string]bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{byWallet: map[string][]string{}, failIDs: map[string]bool{}}
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failIDs[ev.ID] {
		return errors.New("boom")
	}
	h.byWallet[ev.Wallet] = append(h.byWallet[ev.Wallet], ev.ID)
	return nil
}

func (h *recordingHandler) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ids := range h.byWallet {
		n += len(ids)
	}
	return n
}

func TestRouterPreservesPerWalletOrder(t *testing.T) {
	h := newRecordingHandler()
	r := NewRouter(h, 4, discardLogger())

	var events []domain.Event
	for i := 0; i < 50; i++ {
		for w := 0; w < 5; w++ {
			events = append(events, domain.Event{ID: fmt.Sprintf("%d-%03d", w, i), Wallet: fmt.Sprintf("w%d", w)})
		}
	}
	failed := r.Process(context.Background(), events)
	assert.Zero(t, failed)

	for w := 0; w < 5; w++ {
		ids := h.byWallet[fmt.Sprintf("w%d", w)]
		require.Len(t, ids, 50)
		for i := 1; i < len(ids); i++ {
			assert.Less(t, ids[i-1], ids[i])
		}
	}
}

func TestRouterCountsFailuresAndContinues(t *testing.T) {
	h := newRecordingHandler()
	h.failIDs["b"] = true
	r := NewRouter(h, 2, discardLogger())

	failed := r.Process(context.Background(), []domain.Event{
		{ID: "a", Wallet: "w"}, {ID: "b", Wallet: "w"}, {ID: "c", Wallet: "w"},
	})
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"a", "c"}, h.byWallet["w"])
}

func TestRouterShardIsStable(t *testing.T) {
	r := NewRouter(newRecordingHandler(), 8, discardLogger())
	assert.Equal(t, r.Shard("0xabc"), r.Shard("0xabc"))
	assert.GreaterOrEqual(t, r.Shard("0xabc"), 0)
	assert.Less(t, r.Shard("0xabc"), 8)
}

func swapJSON(id, wallet string) []byte {
	return []byte(`{"id":"` + id + `","ts":"2026-03-02T12:00:00Z","type":"swap","chain":"base","wallet":"` + wallet +
		`","tokenOut":"` + evmToken + `","meta":{"direction":"buy","amount":"10"}}`)
}

func TestStreamSourceAdvancesCursor(t *testing.T) {
	bus := memcache.NewSignalBus(100)
	ctx := context.Background()
	require.NoError(t, bus.StreamAppend(ctx, "events", swapJSON("e1", evmWallet)))
	require.NoError(t, bus.StreamAppend(ctx, "events", []byte(`garbage`)))
	require.NoError(t, bus.StreamAppend(ctx, "events", swapJSON("e2", evmWallet)))

	h := newRecordingHandler()
	src := NewStreamSource(bus, NewRouter(h, 2, discardLogger()), "events", 2, time.Millisecond, discardLogger())

	n, err := src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, h.total(), "malformed message dropped")

	n, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, h.total())

	n, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamSourceRunStopsOnCancel(t *testing.T) {
	bus := memcache.NewSignalBus(100)
	h := newRecordingHandler()
	src := NewStreamSource(bus, NewRouter(h, 1, discardLogger()), "events", 10, 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	require.NoError(t, bus.StreamAppend(context.Background(), "events", swapJSON("e1", evmWallet)))
	require.Eventually(t, func() bool { return h.total() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

type fakeConsumer struct {
	mu      sync.Mutex
	queue   [][]byte
	commits int
	closed  bool
	topics  []string
}

func (f *fakeConsumer) SubscribeTopics(topics []string, _ kafka.RebalanceCb) error {
	f.topics = topics
	return nil
}

func (f *fakeConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		time.Sleep(timeout)
		return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
	}
	v := f.queue[0]
	f.queue = f.queue[1:]
	return &kafka.Message{Value: v}, nil
}

func (f *fakeConsumer) Commit() ([]kafka.TopicPartition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil, nil
}

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaSourceCommitsAfterBatch(t *testing.T) {
	fc := &fakeConsumer{queue: [][]byte{
		swapJSON("k1", evmWallet),
		swapJSON("k2", evmWallet),
		swapJSON("k3", evmWallet),
	}}
	h := newRecordingHandler()
	src := newKafkaSource(fc, KafkaConfig{Topic: "onchain", BatchSize: 2, ReadTimeout: time.Millisecond}, NewRouter(h, 2, discardLogger()), discardLogger())

	n, err := src.pollBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, fc.commits)
	assert.Equal(t, 2, h.total())

	n, err = src.pollBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, fc.commits)

	n, err = src.pollBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, fc.commits, "empty polls do not commit")
}

func TestKafkaSourceRunClosesConsumer(t *testing.T) {
	fc := &fakeConsumer{}
	src := newKafkaSource(fc, KafkaConfig{Topic: "onchain", ReadTimeout: time.Millisecond}, NewRouter(newRecordingHandler(), 1, discardLogger()), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, src.Run(ctx))
	assert.True(t, fc.closed)
	assert.Equal(t, []string{"onchain"}, fc.topics)
}

type mapCursor struct {
	mu  sync.Mutex
	ids map[string]string
}

func (c *mapCursor) Load(_ context.Context, stream string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ids[stream], nil
}

func (c *mapCursor) Save(_ context.Context, stream, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[stream] = id
	return nil
}

func TestStreamSourceResumesFromCursor(t *testing.T) {
	bus := memcache.NewSignalBus(100)
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, bus.StreamAppend(ctx, "events", swapJSON(id, evmWallet)))
	}
	cursor := &mapCursor{ids: map[string]string{}}

	first := newRecordingHandler()
	src := NewStreamSource(bus, NewRouter(first, 1, discardLogger()), "events", 2, time.Millisecond, discardLogger()).
		WithCursor(cursor)
	_, err := src.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.total())

	saved, _ := cursor.Load(ctx, "events")
	require.NotEmpty(t, saved)

	// A restarted source picks up after the saved entry.
	second := newRecordingHandler()
	restarted := NewStreamSource(bus, NewRouter(second, 1, discardLogger()), "events", 10, time.Millisecond, discardLogger()).
		WithCursor(cursor)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- restarted.Run(runCtx) }()
	require.Eventually(t, func() bool { return second.total() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, second.total())
}
