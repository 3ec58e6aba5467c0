package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// PendingSellStore is a process-local domain.PendingSellStore. Running more
// than one detector against it splits pending state between processes; use
// the Redis store for that.
type PendingSellStore struct {
	mu      sync.Mutex
	wallets map[string]map[string]domain.PendingSell
}

// NewPendingSellStore creates an empty store.
func NewPendingSellStore() *PendingSellStore {
	return &PendingSellStore{wallets: make(map[string]map[string]domain.PendingSell)}
}

// Put ignores ttl; expiry is handled by Sweep and by readers checking SoldAt.
func (s *PendingSellStore) Put(_ context.Context, ps domain.PendingSell, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.wallets[ps.Wallet]
	if m == nil {
		m = make(map[string]domain.PendingSell)
		s.wallets[ps.Wallet] = m
	}
	m[ps.Token] = clonePending(ps)
	return nil
}

// List returns the wallet's pending sells, oldest first.
func (s *PendingSellStore) List(_ context.Context, wallet string) ([]domain.PendingSell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.wallets[wallet]
	out := make([]domain.PendingSell, 0, len(m))
	for _, ps := range m {
		out = append(out, clonePending(ps))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SoldAt.Before(out[j].SoldAt) })
	return out, nil
}

// Delete reports whether a pending sell was removed.
func (s *PendingSellStore) Delete(_ context.Context, wallet, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.wallets[wallet]
	if _, ok := m[token]; !ok {
		return false, nil
	}
	delete(m, token)
	if len(m) == 0 {
		delete(s.wallets, wallet)
	}
	return true, nil
}

// Sweep drops pending sells recorded before cutoff.
func (s *PendingSellStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for wallet, m := range s.wallets {
		for token, ps := range m {
			if ps.SoldAt.Before(cutoff) {
				delete(m, token)
				removed++
			}
		}
		if len(m) == 0 {
			delete(s.wallets, wallet)
		}
	}
	return removed, nil
}

// Wallets returns how many wallets currently hold entries.
func (s *PendingSellStore) Wallets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wallets)
}

func clonePending(ps domain.PendingSell) domain.PendingSell {
	if ps.Amount != nil {
		ps.Amount = new(big.Int).Set(ps.Amount)
	}
	if ps.AmountUSD != nil {
		v := *ps.AmountUSD
		ps.AmountUSD = &v
	}
	return ps
}

var _ domain.PendingSellStore = (*PendingSellStore)(nil)
