package redis

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestCooldownStoreAcquireIsExclusive(t *testing.T) {
	c, _ := newTestClient(t)
	cs := NewCooldownStore(c)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	ok, err := cs.Acquire(ctx, "0xabc", at, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cs.Acquire(ctx, "0xabc", at.Add(29*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire within the cooldown must lose")

	active, err := cs.Active(ctx, "0xabc", at.Add(10*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, active)
	active, err = cs.Active(ctx, "0xabc", at.Add(30*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestCooldownStoreUsesCallerClock(t *testing.T) {
	c, mr := newTestClient(t)
	cs := NewCooldownStore(c)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	// Redis time never moves here; only the event clock advances.
	ok, err := cs.Acquire(ctx, "w", at, 30*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = cs.Acquire(ctx, "w", at.Add(3*time.Hour), 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "cooldown elapsed on the event clock")

	// An older event outside the window may fire but must not rewind the marker.
	ok, err = cs.Acquire(ctx, "w", at.Add(time.Hour), 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = cs.Acquire(ctx, "w", at.Add(3*time.Hour+10*time.Minute), 30*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, domain.CooldownRetention(30*time.Minute), mr.TTL("cooldown:w"))
	mr.FastForward(25 * time.Hour)
	assert.False(t, mr.Exists("cooldown:w"), "marker garbage collected")
}

func TestCooldownStoreRelease(t *testing.T) {
	c, _ := newTestClient(t)
	cs := NewCooldownStore(c)
	ctx := context.Background()
	at := time.Now()

	_, err := cs.Acquire(ctx, "w", at, time.Minute)
	require.NoError(t, err)
	require.NoError(t, cs.Release(ctx, "w"))

	ok, err := cs.Acquire(ctx, "w", at, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPendingSellStoreRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	s := NewPendingSellStore(c)
	ctx := context.Background()
	soldAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ps := domain.PendingSell{
		Wallet:      "0xw",
		Chain:       "base",
		Token:       "0xa",
		SoldAt:      soldAt,
		TxHash:      "0xsell",
		PercentSold: 70,
		Amount:      big.NewInt(700),
	}
	require.NoError(t, s.Put(ctx, ps, time.Hour))

	got, err := s.List(ctx, "0xw")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xa", got[0].Token)
	assert.Equal(t, int64(70), got[0].PercentSold)
	assert.Equal(t, 0, got[0].Amount.Cmp(big.NewInt(700)))
	assert.True(t, got[0].SoldAt.Equal(soldAt))

	ok, err := s.Delete(ctx, "0xw", "0xa")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, "0xw", "0xa")
	require.NoError(t, err)
	assert.False(t, ok, "a pending sell can only be consumed once")
}

func TestPendingSellStoreSweep(t *testing.T) {
	c, mr := newTestClient(t)
	s := NewPendingSellStore(c)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, domain.PendingSell{Wallet: "w1", Token: "old", SoldAt: now.Add(-2 * time.Hour), Amount: big.NewInt(1)}, 0))
	require.NoError(t, s.Put(ctx, domain.PendingSell{Wallet: "w1", Token: "new", SoldAt: now.Add(-time.Minute), Amount: big.NewInt(1)}, 0))
	require.NoError(t, s.Put(ctx, domain.PendingSell{Wallet: "w2", Token: "old", SoldAt: now.Add(-3 * time.Hour), Amount: big.NewInt(1)}, 0))

	removed, err := s.Sweep(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := s.List(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].Token)

	members, err := mr.Members(pendingWalletsKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, members)
}

func TestSignalBusPublishSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "signals")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "signals", []byte(`{"id":"1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"id":"1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBusWithMaxLen(c, 100)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, "events:onchain", []byte("a")))
	require.NoError(t, bus.StreamAppend(ctx, "events:onchain", []byte("b")))

	msgs, err := bus.StreamRead(ctx, "events:onchain", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))

	more, err := bus.StreamRead(ctx, "events:onchain", msgs[1].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, more)
}

func TestSignalBusStreamForeignEntry(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	require.NoError(t, c.Underlying().XAdd(ctx, &goredis.XAddArgs{
		Stream: "events:onchain",
		Values: []any{"other", "x"},
	}).Err())
	require.NoError(t, bus.StreamAppend(ctx, "events:onchain", []byte("ok")))

	msgs, err := bus.StreamRead(ctx, "events:onchain", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Payload)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, "ok", string(msgs[1].Payload))
}

func TestSignalBusPatternSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "signal:*")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, "signal:molt", []byte("m")))

	select {
	case msg := <-ch:
		assert.Equal(t, "m", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLockManager(t *testing.T) {
	c, _ := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "archive", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	holder, err := lm.Holder(ctx, "archive")
	require.NoError(t, err)
	assert.Equal(t, lm.owner, holder)

	unlock()
	unlock()
	holder, err = lm.Holder(ctx, "archive")
	require.NoError(t, err)
	assert.Empty(t, holder)

	_, err = lm.Acquire(ctx, "archive", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	unlock2, err := lm.Acquire(ctx, "archive", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiterAllow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ip:1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "ip:2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, retryAfter, err := rl.Reserve(ctx, "ip:1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiterWithBudget(c, 1, time.Hour)

	require.NoError(t, rl.Wait(context.Background(), "dexscreener"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx, "dexscreener"), context.DeadlineExceeded)
}

func TestCandidateCache(t *testing.T) {
	c, _ := newTestClient(t)
	cc := NewCandidateCache(c)
	ctx := context.Background()

	_, err := cc.GetEvaluation(ctx, "base", "0xAA")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	eval := domain.Evaluation{
		Candidate:        domain.TokenCandidate{Chain: "base", Address: "0xAA", Symbol: "AA", Scores: domain.Scores{Composite: 71}},
		ConditionsPassed: 4,
		Qualifies:        true,
	}
	require.NoError(t, cc.SetEvaluation(ctx, eval, time.Minute))
	got, err := cc.GetEvaluation(ctx, "BASE", "0xaa")
	require.NoError(t, err)
	assert.Equal(t, 71, got.Candidate.Scores.Composite)

	require.NoError(t, cc.SetLatest(ctx, []domain.Evaluation{eval}, time.Minute))
	latest, err := cc.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "AA", latest[0].Candidate.Symbol)
}

func TestStreamCursorRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	cur := NewStreamCursor(c, "molt")
	ctx := context.Background()

	id, err := cur.Load(ctx, "events:onchain")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, cur.Save(ctx, "events:onchain", "1700000000000-3"))
	id, err = cur.Load(ctx, "events:onchain")
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-3", id)

	other := NewStreamCursor(c, "audit")
	id, err = other.Load(ctx, "events:onchain")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestClientConfigFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{URL: "redis://" + mr.Addr() + "/0", PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	assert.NoError(t, c.Ping(context.Background()))

	_, err = ClientConfig{URL: "not a url"}.options()
	assert.Error(t, err)
}
