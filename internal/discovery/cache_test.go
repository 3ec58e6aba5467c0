package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeBaselineKeepsLastTenSamples(t *testing.T) {
	b := NewVolumeBaseline(4)

	_, ok := b.Mean("0xABC")
	assert.False(t, ok)

	for i := 1; i <= 15; i++ {
		b.Observe("0xABC", float64(i))
	}
	assert.Equal(t, BaselineSamples, b.Len("0xabc"))

	mean, ok := b.Mean("0xabc")
	require.True(t, ok)
	assert.InDelta(t, 10.5, mean, 1e-9) // mean of 6..15
}

func TestVolumeBaselineEvictsLeastRecentlyUsed(t *testing.T) {
	b := NewVolumeBaseline(2)
	b.Observe("a", 1)
	b.Observe("b", 2)
	b.Observe("c", 3)

	_, ok := b.Mean("a")
	assert.False(t, ok)
	_, ok = b.Mean("c")
	assert.True(t, ok)
}

func TestTTLCacheExpires(t *testing.T) {
	var mu sync.Mutex
	clock := now
	c := NewTTLCache[int](20*time.Second, func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	})

	c.Set("k", 7)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	mu.Lock()
	clock = clock.Add(20 * time.Second)
	mu.Unlock()

	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestTTLCacheGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewTTLCache[[]string](time.Minute, func() time.Time { return now })
	var calls atomic.Int32

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) ([]string, error) {
		calls.Add(1)
		return nil, errors.New("boom")
	})
	require.Error(t, err)

	load := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"x"}, nil
	}
	v, err := c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, v)

	_, err = c.GetOrLoad(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTTLCachePurge(t *testing.T) {
	clock := now
	c := NewTTLCache[int](time.Second, func() time.Time { return clock })
	c.Set("a", 1)
	c.Set("b", 2)
	clock = clock.Add(2 * time.Second)
	assert.Equal(t, 2, c.Purge())
}
