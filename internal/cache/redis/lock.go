package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Both scripts act only when the stored token still belongs to the caller.
var (
	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)
)

// LockManager hands out job locks stored under "lock:{key}". A held lock is
// kept alive at half its TTL until released, so a slow archive run cannot
// lose its lock halfway through.
type LockManager struct {
	rdb   *redis.Client
	owner string
}

// NewLockManager tags held locks with this host and process id so only
// the holder can release them.
func NewLockManager(c *Client) *LockManager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &LockManager{rdb: c.Underlying(), owner: fmt.Sprintf("%s:%d", host, os.Getpid())}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire returns domain.ErrLockHeld when another owner holds key. The
// returned unlock is idempotent.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("redis: lock %s: ttl must be positive: %w", key, domain.ErrValidation)
	}
	token := lm.owner + "/" + uuid.NewString()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go lm.keepAlive(lk, token, ttl, stop, done)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-done

		// The caller's ctx may already be cancelled by the time we release.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, lm.rdb, []string{lk}, token).Err()
	}, nil
}

func (lm *LockManager) keepAlive(lk, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := max(ttl/2, 10*time.Millisecond)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			n, err := extendScript.Run(ctx, lm.rdb, []string{lk}, token, ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				// Lost to expiry or another owner; nothing left to extend.
				return
			}
		}
	}
}

// Holder reports which process holds key, or "" when it is free.
func (lm *LockManager) Holder(ctx context.Context, key string) (string, error) {
	v, err := lm.rdb.Get(ctx, lockKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: lock holder %s: %w", key, err)
	}
	owner, _, _ := strings.Cut(v, "/")
	return owner, nil
}

var _ domain.LockManager = (*LockManager)(nil)
