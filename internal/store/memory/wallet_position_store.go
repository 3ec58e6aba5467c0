package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

type positionKey struct {
	chain, wallet, token string
}

// WalletPositionStore is an in-memory implementation of
// domain.WalletPositionStore.
type WalletPositionStore struct {
	mu   sync.RWMutex
	data map[positionKey]domain.WalletPosition
	// FailWrites makes Upsert return domain.ErrPersistence.
	FailWrites bool
}

// NewWalletPositionStore creates a new in-memory position store.
func NewWalletPositionStore() *WalletPositionStore {
	return &WalletPositionStore{data: make(map[positionKey]domain.WalletPosition)}
}

// Get returns a copy of the position or domain.ErrNotFound.
func (s *WalletPositionStore) Get(_ context.Context, chain, wallet, token string) (domain.WalletPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[positionKey{chain, wallet, token}]
	if !ok {
		return domain.WalletPosition{}, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// Upsert stores a copy of pos and stamps UpdatedAt.
func (s *WalletPositionStore) Upsert(_ context.Context, pos domain.WalletPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return domain.ErrPersistence
	}
	pos = pos.Clone()
	pos.UpdatedAt = time.Now().UTC()
	s.data[positionKey{pos.Chain, pos.Wallet, pos.Token}] = pos
	return nil
}

// ListByWallet returns positions ordered by chain, then token.
func (s *WalletPositionStore) ListByWallet(_ context.Context, wallet string) ([]domain.WalletPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.WalletPosition
	for k, p := range s.data {
		if k.wallet == wallet {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

// ResetBaselines copies current holdings into the baseline. An empty
// wallet resets every position.
func (s *WalletPositionStore) ResetBaselines(_ context.Context, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, p := range s.data {
		if wallet != "" && k.wallet != wallet {
			continue
		}
		if p.CurrentAmount != nil {
			p.BaselineAmount = new(big.Int).Set(p.CurrentAmount)
		}
		p.BaselineUSD = p.CurrentUSD
		s.data[k] = p
		n++
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.WalletPositionStore = (*WalletPositionStore)(nil)
