package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// CooldownStore holds per-key suppression markers measured on the caller's
// clock (event time for the detector), so replaying a backlog faster than real
// time suppresses exactly what live processing would have. Markers are
// garbage collected after CooldownRetention of wall-clock time.
type CooldownStore interface {
	// Acquire starts a cooldown at at unless one started less than cooldown
	// away from at, and reports whether this caller started it.
	Acquire(ctx context.Context, key string, at time.Time, cooldown time.Duration) (bool, error)
	// Active reports whether a cooldown started less than cooldown away from at.
	Active(ctx context.Context, key string, at time.Time, cooldown time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// CooldownRetention is how long a marker outlives its cooldown in wall-clock
// time before stores may drop it.
func CooldownRetention(cooldown time.Duration) time.Duration {
	return max(2*cooldown, 24*time.Hour)
}

// WithinCooldown reports whether at lies less than cooldown from last in
// either direction.
func WithinCooldown(last, at time.Time, cooldown time.Duration) bool {
	d := at.Sub(last)
	if d < 0 {
		d = -d
	}
	return d < cooldown
}

// PendingSellStore holds sells awaiting a rotation, keyed by wallet and token.
type PendingSellStore interface {
	Put(ctx context.Context, ps PendingSell, ttl time.Duration) error
	List(ctx context.Context, wallet string) ([]PendingSell, error)
	// Delete removes the entry and reports whether it existed, so only one
	// caller can consume a given sell.
	Delete(ctx context.Context, wallet, token string) (bool, error)
	// Sweep drops entries sold before cutoff and returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed locking so periodic jobs run on a single
// instance at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// CandidateCache shares discovery results between processes.
type CandidateCache interface {
	SetEvaluation(ctx context.Context, eval Evaluation, ttl time.Duration) error
	GetEvaluation(ctx context.Context, chain, address string) (Evaluation, error)
	SetLatest(ctx context.Context, evals []Evaluation, ttl time.Duration) error
	Latest(ctx context.Context) ([]Evaluation, error)
}

// StreamCursor remembers the last stream entry a consumer handled so a
// restart resumes instead of replaying the stream.
type StreamCursor interface {
	// Load returns "" when nothing has been saved.
	Load(ctx context.Context, stream string) (string, error)
	Save(ctx context.Context, stream, id string) error
}
