package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StreamCursor implements domain.StreamCursor.
//
// Key schema:
//
//	cursor:{group}:{stream} - last handled entry id
type StreamCursor struct {
	rdb   *redis.Client
	group string
}

// NewStreamCursor creates a cursor namespaced by consumer group.
func NewStreamCursor(c *Client, group string) *StreamCursor {
	return &StreamCursor{rdb: c.Underlying(), group: group}
}

func (s *StreamCursor) key(stream string) string {
	return "cursor:" + s.group + ":" + stream
}

// Load returns "" when no cursor has been saved for stream.
func (s *StreamCursor) Load(ctx context.Context, stream string) (string, error) {
	id, err := s.rdb.Get(ctx, s.key(stream)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: load cursor %s: %w", stream, err)
	}
	return id, nil
}

// Save records id as the last processed entry of stream.
func (s *StreamCursor) Save(ctx context.Context, stream, id string) error {
	if err := s.rdb.Set(ctx, s.key(stream), id, 0).Err(); err != nil {
		return fmt.Errorf("redis: save cursor %s: %w", stream, err)
	}
	return nil
}

var _ domain.StreamCursor = (*StreamCursor)(nil)
