package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

type cachedEval struct {
	eval    domain.Evaluation
	expires time.Time
}

// CandidateCache is a process-local domain.CandidateCache.
type CandidateCache struct {
	mu        sync.RWMutex
	evals     map[string]cachedEval
	latest    []domain.Evaluation
	latestExp time.Time
	now       func() time.Time
}

// NewCandidateCache creates an empty cache.
func NewCandidateCache() *CandidateCache {
	return &CandidateCache{evals: make(map[string]cachedEval), now: time.Now}
}

func evalKey(chain, address string) string {
	return strings.ToLower(chain) + ":" + strings.ToLower(address)
}

// SetEvaluation caches eval under its chain and address for ttl.
func (c *CandidateCache) SetEvaluation(_ context.Context, eval domain.Evaluation, ttl time.Duration) error {
	c.mu.Lock()
	c.evals[evalKey(eval.Candidate.Chain, eval.Candidate.Address)] = cachedEval{eval: eval, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// GetEvaluation returns domain.ErrNotFound for missing or expired entries.
func (c *CandidateCache) GetEvaluation(_ context.Context, chain, address string) (domain.Evaluation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.evals[evalKey(chain, address)]
	if !ok || !c.now().Before(e.expires) {
		return domain.Evaluation{}, domain.ErrNotFound
	}
	return e.eval, nil
}

// SetLatest replaces the latest scan result.
func (c *CandidateCache) SetLatest(_ context.Context, evals []domain.Evaluation, ttl time.Duration) error {
	c.mu.Lock()
	c.latest = append([]domain.Evaluation(nil), evals...)
	c.latestExp = c.now().Add(ttl)
	c.mu.Unlock()
	return nil
}

// Latest returns a copy of the latest scan result until it expires.
func (c *CandidateCache) Latest(_ context.Context) ([]domain.Evaluation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil || !c.now().Before(c.latestExp) {
		return nil, domain.ErrNotFound
	}
	return append([]domain.Evaluation(nil), c.latest...), nil
}

var _ domain.CandidateCache = (*CandidateCache)(nil)
