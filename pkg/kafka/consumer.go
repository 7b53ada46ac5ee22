// Package kafka carries index reload notifications over segmentio/kafka-go:
// a JSON producer for the build tool and a committing consumer for the
// search service.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message. A message is
// committed only when the handler returns nil.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// messageReader is the subset of *kafka.Reader the consume loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader     messageReader
	logger     *slog.Logger
	handler    MessageHandler
	fetchDelay time.Duration

	processed atomic.Int64
	failed    atomic.Int64
	fetchErr  atomic.Pointer[error]
}

// NewConsumer creates a Consumer for the given topic and handler. Reload
// notifications only matter from the moment the consumer starts, so a new
// consumer group begins at the newest offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:     r,
		logger:     slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler:    handler,
		fetchDelay: time.Second,
	}
}

// Start consumes until ctx is cancelled. Fetch failures are retried after
// a pause; handler failures leave the message uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			c.fetchErr.Store(&err)
			c.logger.Error("failed to fetch message", "error", err, "retry_in", c.fetchDelay)
			t := time.NewTimer(c.fetchDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}
		c.fetchErr.Store(nil)
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "value_size", len(msg.Value))

	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		c.failed.Add(1)
		log.Error("failed to process message", "error", err)
		return
	}
	c.processed.Add(1)
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("failed to commit message", "error", err)
	}
}

// Ping reports the most recent fetch failure, or nil once a fetch has
// succeeded since. It fits health.PingCheck.
func (c *Consumer) Ping(context.Context) error {
	if err := c.fetchErr.Load(); err != nil {
		return fmt.Errorf("kafka fetch: %w", *err)
	}
	return nil
}

// Counts returns how many messages were handled successfully and how many
// the handler rejected.
func (c *Consumer) Counts() (processed, failed int64) {
	return c.processed.Load(), c.failed.Load()
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decode message: %w", err)
	}
	return v, nil
}
