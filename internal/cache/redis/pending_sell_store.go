package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PendingSellStore implements domain.PendingSellStore using one Redis hash
// per wallet so any detector instance can complete a rotation that another
// instance started.
//
// Key schema:
//
//	molt:pending:{wallet}  - hash, field = token, value = JSON PendingSell
//	molt:pending:wallets   - set of wallets that may hold entries
type PendingSellStore struct {
	rdb *redis.Client
}

// NewPendingSellStore creates a PendingSellStore backed by the given Client.
func NewPendingSellStore(c *Client) *PendingSellStore {
	return &PendingSellStore{rdb: c.Underlying()}
}

const pendingWalletsKey = "molt:pending:wallets"

func pendingKey(wallet string) string {
	return "molt:pending:" + wallet
}

// Put stores ps and refreshes the wallet hash TTL. Entries inside the hash
// may outlive their own window by up to ttl; readers check SoldAt.
func (s *PendingSellStore) Put(ctx context.Context, ps domain.PendingSell, ttl time.Duration) error {
	data, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("redis: marshal pending sell %s/%s: %w", ps.Wallet, ps.Token, err)
	}

	key := pendingKey(ps.Wallet)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, ps.Token, data)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	pipe.SAdd(ctx, pendingWalletsKey, ps.Wallet)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put pending sell %s/%s: %w", ps.Wallet, ps.Token, err)
	}
	return nil
}

// List returns the wallet's pending sells ordered by sell time.
func (s *PendingSellStore) List(ctx context.Context, wallet string) ([]domain.PendingSell, error) {
	raw, err := s.rdb.HGetAll(ctx, pendingKey(wallet)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list pending sells %s: %w", wallet, err)
	}

	out := make([]domain.PendingSell, 0, len(raw))
	for token, v := range raw {
		var ps domain.PendingSell
		if err := json.Unmarshal([]byte(v), &ps); err != nil {
			return nil, fmt.Errorf("redis: unmarshal pending sell %s/%s: %w", wallet, token, err)
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SoldAt.Before(out[j].SoldAt) })
	return out, nil
}

// Delete removes the entry for (wallet, token). HDEL is atomic, so exactly
// one concurrent caller observes true.
func (s *PendingSellStore) Delete(ctx context.Context, wallet, token string) (bool, error) {
	n, err := s.rdb.HDel(ctx, pendingKey(wallet), token).Result()
	if err != nil {
		return false, fmt.Errorf("redis: delete pending sell %s/%s: %w", wallet, token, err)
	}
	return n > 0, nil
}

// Sweep removes entries sold before cutoff and drops wallets whose hash is
// left empty from the index.
func (s *PendingSellStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	wallets, err := s.rdb.SMembers(ctx, pendingWalletsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: sweep pending sells: %w", err)
	}

	removed := 0
	for _, wallet := range wallets {
		entries, err := s.List(ctx, wallet)
		if err != nil {
			return removed, err
		}
		for _, ps := range entries {
			if !ps.SoldAt.Before(cutoff) {
				continue
			}
			ok, err := s.Delete(ctx, wallet, ps.Token)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}

		n, err := s.rdb.HLen(ctx, pendingKey(wallet)).Result()
		if err != nil {
			return removed, fmt.Errorf("redis: sweep pending sells %s: %w", wallet, err)
		}
		if n == 0 {
			if err := s.rdb.SRem(ctx, pendingWalletsKey, wallet).Err(); err != nil {
				return removed, fmt.Errorf("redis: sweep pending sells %s: %w", wallet, err)
			}
		}
	}
	return removed, nil
}

// Compile-time interface check.
var _ domain.PendingSellStore = (*PendingSellStore)(nil)
