package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// StreamSource polls a SignalBus stream and routes each batch. The read
// cursor only advances after a batch has been handled.
type StreamSource struct {
	bus       domain.SignalBus
	router    *Router
	stream    string
	batchSize int
	pollEvery time.Duration
	logger    *slog.Logger

	lastID string
	cursor domain.StreamCursor
}

// NewStreamSource creates a source reading stream from the start ("0").
func NewStreamSource(bus domain.SignalBus, router *Router, stream string, batchSize int, pollEvery time.Duration, logger *slog.Logger) *StreamSource {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pollEvery <= 0 {
		pollEvery = 500 * time.Millisecond
	}
	return &StreamSource{
		bus:       bus,
		router:    router,
		stream:    stream,
		batchSize: batchSize,
		pollEvery: pollEvery,
		logger:    logger.With(slog.String("component", "stream_source")),
		lastID:    "0",
	}
}

// WithCursor persists progress in c after every batch and resumes from it
// when Run starts.
func (s *StreamSource) WithCursor(c domain.StreamCursor) *StreamSource {
	s.cursor = c
	return s
}

// StartAt sets the cursor, e.g. "$"-style resume ids from a previous run.
func (s *StreamSource) StartAt(id string) { s.lastID = id }

// Poll reads and handles at most one batch, returning how many messages were
// read.
func (s *StreamSource) Poll(ctx context.Context) (int, error) {
	msgs, err := s.bus.StreamRead(ctx, s.stream, s.lastID, s.batchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	payloads := make([][]byte, len(msgs))
	for i, m := range msgs {
		payloads[i] = m.Payload
	}
	events := decodeAll(s.logger, payloads)
	if failed := s.router.Process(ctx, events); failed > 0 {
		s.logger.Warn("batch handled with failures", slog.Int("failed", failed), slog.Int("events", len(events)))
	}
	s.lastID = msgs[len(msgs)-1].ID
	if s.cursor != nil {
		if err := s.cursor.Save(ctx, s.stream, s.lastID); err != nil {
			s.logger.Warn("saving stream cursor failed", slog.String("error", err.Error()))
		}
	}
	return len(msgs), nil
}

// Run polls until ctx is cancelled. Full batches are followed immediately by
// another read; otherwise it waits pollEvery.
func (s *StreamSource) Run(ctx context.Context) error {
	if s.cursor != nil {
		id, err := s.cursor.Load(ctx, s.stream)
		if err != nil {
			return fmt.Errorf("ingest: load cursor: %w", err)
		}
		if id != "" {
			s.lastID = id
		}
	}
	s.logger.Info("stream source started", slog.String("stream", s.stream), slog.String("from", s.lastID))
	for {
		n, err := s.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			s.logger.Error("stream read failed", slog.String("error", err.Error()))
		}
		if n >= s.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.pollEvery):
		}
	}
}
