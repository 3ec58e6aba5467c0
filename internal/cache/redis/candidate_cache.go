package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CandidateCache implements domain.CandidateCache. The discover loop writes
// its results here so API processes can serve them without re-scanning.
//
// Key schema:
//
//	discovery:eval:{chain}:{address} - hash with field "data" containing JSON
//	discovery:latest                 - JSON array of the last scan's results
type CandidateCache struct {
	rdb *redis.Client
}

// NewCandidateCache creates a CandidateCache backed by the given Client.
func NewCandidateCache(c *Client) *CandidateCache {
	return &CandidateCache{rdb: c.Underlying()}
}

const latestScanKey = "discovery:latest"

func evaluationKey(chain, address string) string {
	return "discovery:eval:" + strings.ToLower(chain) + ":" + strings.ToLower(address)
}

// SetEvaluation stores one evaluation with the given TTL.
func (cc *CandidateCache) SetEvaluation(ctx context.Context, eval domain.Evaluation, ttl time.Duration) error {
	data, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("redis: marshal evaluation %s: %w", eval.Candidate.Address, err)
	}

	key := evaluationKey(eval.Candidate.Chain, eval.Candidate.Address)
	pipe := cc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set evaluation %s: %w", eval.Candidate.Address, err)
	}
	return nil
}

// GetEvaluation returns domain.ErrNotFound when nothing is cached.
func (cc *CandidateCache) GetEvaluation(ctx context.Context, chain, address string) (domain.Evaluation, error) {
	data, err := cc.rdb.HGet(ctx, evaluationKey(chain, address), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Evaluation{}, domain.ErrNotFound
		}
		return domain.Evaluation{}, fmt.Errorf("redis: get evaluation %s: %w", address, err)
	}

	var eval domain.Evaluation
	if err := json.Unmarshal(data, &eval); err != nil {
		return domain.Evaluation{}, fmt.Errorf("redis: unmarshal evaluation %s: %w", address, err)
	}
	return eval, nil
}

// SetLatest replaces the latest scan snapshot.
func (cc *CandidateCache) SetLatest(ctx context.Context, evals []domain.Evaluation, ttl time.Duration) error {
	data, err := json.Marshal(evals)
	if err != nil {
		return fmt.Errorf("redis: marshal latest scan: %w", err)
	}
	if err := cc.rdb.Set(ctx, latestScanKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set latest scan: %w", err)
	}
	return nil
}

// Latest returns the last scan snapshot, or domain.ErrNotFound.
func (cc *CandidateCache) Latest(ctx context.Context) ([]domain.Evaluation, error) {
	data, err := cc.rdb.Get(ctx, latestScanKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get latest scan: %w", err)
	}
	var evals []domain.Evaluation
	if err := json.Unmarshal(data, &evals); err != nil {
		return nil, fmt.Errorf("redis: unmarshal latest scan: %w", err)
	}
	return evals, nil
}

// Compile-time interface check.
var _ domain.CandidateCache = (*CandidateCache)(nil)
