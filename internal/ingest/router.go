package ingest

import (
	"context"
	"hash/fnv"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// EventHandler consumes decoded events. *molt.Detector satisfies it.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

// Router fans a batch of events out over a fixed number of shards keyed by
// wallet. Each shard handles its events in arrival order, so per-wallet
// ordering holds while different wallets run in parallel.
type Router struct {
	handler EventHandler
	shards  int
	logger  *slog.Logger
}

// NewRouter creates a Router with the given shard count (minimum 1).
func NewRouter(handler EventHandler, shards int, logger *slog.Logger) *Router {
	if shards < 1 {
		shards = 1
	}
	return &Router{
		handler: handler,
		shards:  shards,
		logger:  logger.With(slog.String("component", "ingest_router")),
	}
}

// Shard returns the shard index for wallet.
func (r *Router) Shard(wallet string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(wallet))
	return int(h.Sum32() % uint32(r.shards))
}

// Process handles events and returns once every shard has drained. Handler
// errors are logged and do not stop the batch; the returned count is the
// number of events that failed.
func (r *Router) Process(ctx context.Context, events []domain.Event) int {
	if len(events) == 0 {
		return 0
	}

	buckets := make([][]domain.Event, r.shards)
	for _, ev := range events {
		i := r.Shard(ev.Wallet)
		buckets[i] = append(buckets[i], ev)
	}

	failed := make([]int, r.shards)
	var g errgroup.Group
	for i, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		g.Go(func() error {
			for _, ev := range bucket {
				if err := r.handler.HandleEvent(ctx, ev); err != nil {
					failed[i]++
					r.logger.Error("handle event failed",
						slog.String("event_id", ev.ID),
						slog.String("wallet", ev.Wallet),
						slog.String("kind", string(ev.Kind())),
						slog.String("error", err.Error()),
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, n := range failed {
		total += n
	}
	return total
}

// decodeAll decodes payloads, dropping malformed ones at debug level.
func decodeAll(logger *slog.Logger, payloads [][]byte) []domain.Event {
	out := make([]domain.Event, 0, len(payloads))
	for _, p := range payloads {
		ev, err := Decode(p)
		if err != nil {
			logger.Debug("dropping malformed event", slog.String("error", err.Error()))
			continue
		}
		out = append(out, ev)
	}
	return out
}
