package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownStoreMeasuresOnCallerClock(t *testing.T) {
	wall := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cs := NewCooldownStore(func() time.Time { return wall })
	ctx := context.Background()
	at := wall.Add(-48 * time.Hour)

	ok, _ := cs.Acquire(ctx, "w", at, 30*time.Minute)
	assert.True(t, ok)
	ok, _ = cs.Acquire(ctx, "w", at.Add(10*time.Minute), 30*time.Minute)
	assert.False(t, ok)

	active, _ := cs.Active(ctx, "w", at.Add(30*time.Minute), 30*time.Minute)
	assert.False(t, active)
	ok, _ = cs.Acquire(ctx, "w", at.Add(30*time.Minute), 30*time.Minute)
	assert.True(t, ok, "wall clock is frozen, event clock moved on")
}

func TestCooldownStoreDropsStaleMarkers(t *testing.T) {
	wall := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cs := NewCooldownStore(func() time.Time { return wall })
	ctx := context.Background()

	ok, _ := cs.Acquire(ctx, "w", wall, time.Hour)
	require.True(t, ok)

	wall = wall.Add(domain.CooldownRetention(time.Hour))
	ok, _ = cs.Acquire(ctx, "w", time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC), time.Hour)
	assert.True(t, ok, "marker past retention is gone")
}

func TestPendingSellStoreSweepDropsEmptyWallets(t *testing.T) {
	s := NewPendingSellStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, domain.PendingSell{Wallet: "a", Token: "x", SoldAt: base, Amount: big.NewInt(5)}, time.Hour))
	require.NoError(t, s.Put(ctx, domain.PendingSell{Wallet: "b", Token: "y", SoldAt: base.Add(time.Hour), Amount: big.NewInt(5)}, time.Hour))
	assert.Equal(t, 2, s.Wallets())

	n, err := s.Sweep(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Wallets())

	list, _ := s.List(ctx, "a")
	assert.Empty(t, list)
}

func TestPendingSellStoreReturnsCopies(t *testing.T) {
	s := NewPendingSellStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, domain.PendingSell{Wallet: "a", Token: "x", Amount: big.NewInt(5)}, 0))

	list, _ := s.List(ctx, "a")
	list[0].Amount.SetInt64(99)

	again, _ := s.List(ctx, "a")
	assert.Equal(t, int64(5), again[0].Amount.Int64())
}

func TestSignalBusFanOut(t *testing.T) {
	bus := NewSignalBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := bus.Subscribe(ctx, "signals")
	b, _ := bus.Subscribe(ctx, "signals")
	require.NoError(t, bus.Publish(ctx, "signals", []byte("hi")))

	assert.Equal(t, "hi", string(<-a))
	assert.Equal(t, "hi", string(<-b))
}

func TestSignalBusStreamTrimAndRead(t *testing.T) {
	bus := NewSignalBus(2)
	ctx := context.Background()
	for _, p := range []string{"1", "2", "3"} {
		require.NoError(t, bus.StreamAppend(ctx, "s", []byte(p)))
	}
	msgs, err := bus.StreamRead(ctx, "s", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", string(msgs[0].Payload))

	rest, _ := bus.StreamRead(ctx, "s", msgs[0].ID, 10)
	require.Len(t, rest, 1)
	assert.Equal(t, "3", string(rest[0].Payload))
}

func TestLockManager(t *testing.T) {
	lm := NewLockManager()
	ctx := context.Background()
	unlock, err := lm.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = lm.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	unlock()
	_, err = lm.Acquire(ctx, "k", time.Minute)
	assert.NoError(t, err)
}
