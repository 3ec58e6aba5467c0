package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// acquireCooldown compares and sets in one step so two detector instances
// racing on the same wallet cannot both win.
//
// KEYS[1] marker, ARGV[1] at (unix ms), ARGV[2] cooldown (ms), ARGV[3] ttl (ms)
var acquireCooldown = redis.NewScript(`
local at = tonumber(ARGV[1])
local prev = redis.call('GET', KEYS[1])
local keep = ARGV[1]
local last = tonumber(prev or '')
if last then
  local d = at - last
  if d < 0 then d = -d end
  if d < tonumber(ARGV[2]) then
    return 0
  end
  if last > at then keep = prev end
end
redis.call('SET', KEYS[1], keep, 'PX', ARGV[3])
return 1
`)

// CooldownStore implements domain.CooldownStore. The marker holds the unix
// millisecond time the cooldown started on the caller's clock; its TTL only
// bounds how long stale markers linger.
//
// Key schema:
//
//	cooldown:{key} - start time in unix ms
type CooldownStore struct {
	rdb *redis.Client
}

// NewCooldownStore creates a CooldownStore backed by the given Client.
func NewCooldownStore(c *Client) *CooldownStore {
	return &CooldownStore{rdb: c.Underlying()}
}

func cooldownKey(key string) string {
	return "cooldown:" + key
}

// Acquire implements domain.CooldownStore.
func (cs *CooldownStore) Acquire(ctx context.Context, key string, at time.Time, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	n, err := acquireCooldown.Run(ctx, cs.rdb, []string{cooldownKey(key)},
		at.UnixMilli(), cooldown.Milliseconds(), domain.CooldownRetention(cooldown).Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis: cooldown acquire %s: %w", key, err)
	}
	return n == 1, nil
}

// Active implements domain.CooldownStore.
func (cs *CooldownStore) Active(ctx context.Context, key string, at time.Time, cooldown time.Duration) (bool, error) {
	v, err := cs.rdb.Get(ctx, cooldownKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis: cooldown active %s: %w", key, err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false, fmt.Errorf("redis: cooldown active %s: bad marker %q", key, v)
	}
	return domain.WithinCooldown(time.UnixMilli(ms), at, cooldown), nil
}

// Release removes the marker for key.
func (cs *CooldownStore) Release(ctx context.Context, key string) error {
	if err := cs.rdb.Del(ctx, cooldownKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: cooldown release %s: %w", key, err)
	}
	return nil
}

var _ domain.CooldownStore = (*CooldownStore)(nil)
