// Package memory implements the domain store interfaces in process memory
// for single-node runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// SignalStore is an in-memory implementation of domain.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[string]domain.Signal // keyed by signal id
	// FailInserts makes Insert return domain.ErrPersistence; tests use it to
	// exercise the persist-then-publish ordering.
	FailInserts bool
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{data: make(map[string]domain.Signal)}
}

// Insert adds a new signal. Returns ErrAlreadyExists if the id is taken.
func (s *SignalStore) Insert(_ context.Context, sig domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInserts {
		return domain.ErrPersistence
	}
	if _, exists := s.data[sig.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.data[sig.ID] = cloneSignal(sig)
	return nil
}

// GetByID returns a copy of the signal, or ErrNotFound.
func (s *SignalStore) GetByID(_ context.Context, id string) (domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.data[id]
	if !ok {
		return domain.Signal{}, domain.ErrNotFound
	}
	return cloneSignal(sig), nil
}

// List filters, sorts by timestamp descending and pages.
func (s *SignalStore) List(_ context.Context, f domain.SignalFilter, opts domain.ListOpts) ([]domain.Signal, int64, error) {
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, 0, fmt.Errorf("memory: list signals: %w: negative limit or offset", domain.ErrValidation)
	}
	s.mu.RLock()
	var matched []domain.Signal
	for _, sig := range s.data {
		if f.Matches(sig) {
			matched = append(matched, sig)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	total := int64(len(matched))

	if opts.Offset >= len(matched) {
		return []domain.Signal{}, total, nil
	}
	matched = matched[opts.Offset:]
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]domain.Signal, len(matched))
	for i, sig := range matched {
		out[i] = cloneSignal(sig)
	}
	return out, total, nil
}

// Acknowledge overwrites the acknowledgment fields.
func (s *SignalStore) Acknowledge(_ context.Context, id, by string, at time.Time) (domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.data[id]
	if !ok {
		return domain.Signal{}, domain.ErrNotFound
	}
	at = at.UTC()
	sig.Acknowledged = true
	sig.AcknowledgedAt = &at
	sig.AcknowledgedBy = by
	s.data[id] = sig
	return cloneSignal(sig), nil
}

// ListAcknowledgedBefore returns acknowledged signals older than before,
// oldest first.
func (s *SignalStore) ListAcknowledgedBefore(_ context.Context, before time.Time) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Signal
	for _, sig := range s.data {
		if sig.Acknowledged && sig.Timestamp.Before(before) {
			out = append(out, cloneSignal(sig))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// DeleteAcknowledgedBefore removes acknowledged signals older than before.
func (s *SignalStore) DeleteAcknowledgedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sig := range s.data {
		if sig.Acknowledged && sig.Timestamp.Before(before) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

func sortNewestFirst(sigs []domain.Signal) {
	sort.Slice(sigs, func(i, j int) bool {
		if sigs[i].Timestamp.Equal(sigs[j].Timestamp) {
			return sigs[i].ID < sigs[j].ID
		}
		return sigs[i].Timestamp.After(sigs[j].Timestamp)
	})
}

func cloneSignal(sig domain.Signal) domain.Signal {
	if sig.Evidence != nil {
		sig.Evidence = append(json.RawMessage(nil), sig.Evidence...)
	}
	if sig.AcknowledgedAt != nil {
		t := *sig.AcknowledgedAt
		sig.AcknowledgedAt = &t
	}
	if sig.Metadata != nil {
		m := make(map[string]any, len(sig.Metadata))
		for k, v := range sig.Metadata {
			m[k] = v
		}
		sig.Metadata = m
	}
	return sig
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
