package discovery

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BaselineSamples is how many volume observations are kept per token.
const BaselineSamples = 10

// VolumeBaseline keeps the last BaselineSamples 24h volume observations per
// token address and reports their mean. Tokens beyond capacity are evicted
// least-recently-used first.
type VolumeBaseline struct {
	mu      sync.Mutex
	samples *lru.Cache[string, []float64]
}

// NewVolumeBaseline creates a baseline tracking at most capacity tokens.
func NewVolumeBaseline(capacity int) *VolumeBaseline {
	if capacity <= 0 {
		capacity = 10_000
	}
	c, err := lru.New[string, []float64](capacity)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &VolumeBaseline{samples: c}
}

func baselineKey(address string) string {
	return strings.ToLower(address)
}

// Mean returns the average of the stored samples for address.
func (b *VolumeBaseline) Mean(address string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples.Get(baselineKey(address))
	if !ok || len(s) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s)), true
}

// Observe appends a sample, dropping the oldest beyond BaselineSamples.
func (b *VolumeBaseline) Observe(address string, volume24h float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := baselineKey(address)
	s, _ := b.samples.Get(key)
	next := make([]float64, 0, BaselineSamples)
	if len(s) >= BaselineSamples {
		s = s[len(s)-BaselineSamples+1:]
	}
	next = append(next, s...)
	next = append(next, volume24h)
	b.samples.Add(key, next)
}

// Len reports how many samples are held for address.
func (b *VolumeBaseline) Len(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, _ := b.samples.Peek(baselineKey(address))
	return len(s)
}
