package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaConfig configures the consumer.
type KafkaConfig struct {
	Brokers          []string
	Topic            string
	GroupID          string
	SessionTimeoutMs int
	ReadTimeout      time.Duration
	BatchSize        int
}

// consumer is the subset of *kafka.Consumer the source needs.
type consumer interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Commit() ([]kafka.TopicPartition, error)
	Close() error
}

// KafkaSource consumes on-chain events from a Kafka topic. Offsets are
// committed manually once a batch has been handled.
type KafkaSource struct {
	c      consumer
	cfg    KafkaConfig
	router *Router
	logger *slog.Logger
}

// NewKafkaSource creates a consumer in group cfg.GroupID. Auto-commit is off.
func NewKafkaSource(cfg KafkaConfig, router *Router, logger *slog.Logger) (*KafkaSource, error) {
	hostname, _ := os.Hostname()
	kconf := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Brokers, ","),
		"group.id":           cfg.GroupID,
		"session.timeout.ms": cfg.SessionTimeoutMs,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": false,
		"client.id":          fmt.Sprintf("clawfi-%s", hostname),
	}
	c, err := kafka.NewConsumer(kconf)
	if err != nil {
		return nil, fmt.Errorf("ingest: create kafka consumer: %w", err)
	}
	return newKafkaSource(c, cfg, router, logger), nil
}

func newKafkaSource(c consumer, cfg KafkaConfig, router *Router, logger *slog.Logger) *KafkaSource {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &KafkaSource{
		c:      c,
		cfg:    cfg,
		router: router,
		logger: logger.With(slog.String("component", "kafka_source"), slog.String("topic", cfg.Topic)),
	}
}

// Run subscribes and consumes until ctx is cancelled, then closes the
// consumer.
func (k *KafkaSource) Run(ctx context.Context) error {
	if err := k.c.SubscribeTopics([]string{k.cfg.Topic}, nil); err != nil {
		return fmt.Errorf("ingest: subscribe %s: %w", k.cfg.Topic, err)
	}
	k.logger.Info("kafka consumer subscribed", slog.String("group", k.cfg.GroupID))
	defer func() {
		if err := k.c.Close(); err != nil {
			k.logger.Warn("kafka close failed", slog.String("error", err.Error()))
		}
	}()

	for ctx.Err() == nil {
		if _, err := k.pollBatch(ctx); err != nil {
			k.logger.Error("kafka batch failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// pollBatch reads until BatchSize messages arrive or a read times out, hands
// them to the router and commits. It returns the number of messages read.
func (k *KafkaSource) pollBatch(ctx context.Context) (int, error) {
	payloads := make([][]byte, 0, k.cfg.BatchSize)
	for len(payloads) < k.cfg.BatchSize && ctx.Err() == nil {
		msg, err := k.c.ReadMessage(k.cfg.ReadTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				break
			}
			k.logger.Warn("kafka read failed", slog.String("error", err.Error()))
			break
		}
		payloads = append(payloads, msg.Value)
	}
	if len(payloads) == 0 {
		return 0, nil
	}

	events := decodeAll(k.logger, payloads)
	if failed := k.router.Process(ctx, events); failed > 0 {
		k.logger.Warn("batch handled with failures", slog.Int("failed", failed), slog.Int("events", len(events)))
	}
	if _, err := k.c.Commit(); err != nil {
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrNoOffset {
			return len(payloads), nil
		}
		return len(payloads), fmt.Errorf("ingest: commit offsets: %w", err)
	}
	return len(payloads), nil
}
