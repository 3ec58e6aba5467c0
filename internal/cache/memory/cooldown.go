package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

type cooldownMarker struct {
	last    time.Time // caller clock
	expires time.Time // wall clock, garbage collection only
}

// CooldownStore is a process-local domain.CooldownStore.
type CooldownStore struct {
	mu      sync.Mutex
	markers map[string]cooldownMarker
	now     func() time.Time
}

// NewCooldownStore creates a store whose markers are dropped by clock after
// domain.CooldownRetention; nil means time.Now.
func NewCooldownStore(clock func() time.Time) *CooldownStore {
	if clock == nil {
		clock = time.Now
	}
	return &CooldownStore{markers: make(map[string]cooldownMarker), now: clock}
}

// marker returns the live marker for key. Callers hold s.mu.
func (s *CooldownStore) marker(key string) (cooldownMarker, bool) {
	m, ok := s.markers[key]
	if ok && !s.now().Before(m.expires) {
		delete(s.markers, key)
		return m, false
	}
	return m, ok
}

// Acquire implements domain.CooldownStore.
func (s *CooldownStore) Acquire(_ context.Context, key string, at time.Time, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marker(key)
	if ok && domain.WithinCooldown(m.last, at, cooldown) {
		return false, nil
	}
	if !ok || at.After(m.last) {
		m.last = at
	}
	m.expires = s.now().Add(domain.CooldownRetention(cooldown))
	s.markers[key] = m
	return true, nil
}

// Active implements domain.CooldownStore.
func (s *CooldownStore) Active(_ context.Context, key string, at time.Time, cooldown time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.marker(key)
	return ok && domain.WithinCooldown(m.last, at, cooldown), nil
}

// Release drops the marker for key.
func (s *CooldownStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.markers, key)
	s.mu.Unlock()
	return nil
}

var _ domain.CooldownStore = (*CooldownStore)(nil)
