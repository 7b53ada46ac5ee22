package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-search/pkg/resilience"
)

// Event is one message to publish. Messages with the same Key land on the
// same partition; Value is encoded as JSON.
type Event struct {
	Key   string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events to a single topic.
type Producer struct {
	topic  string
	writer messageWriter
	retry  resilience.Backoff
	log    *slog.Logger
}

// NewProducer returns a synchronous producer for topic. Each Publish waits
// for every in-sync replica; retries happen here rather than in the writer
// so they are logged and bounded by ctx.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		topic:  topic,
		writer: w,
		retry:  resilience.Backoff{Attempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second},
		log:    slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes ev and writes it, retrying transient broker errors.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	write := func(ctx context.Context) error { return p.writer.WriteMessages(ctx, msg) }
	if err := resilience.Retry(ctx, "kafka publish", p.retry, write); err != nil {
		p.log.Error("publish failed", "key", ev.Key, "error", err)
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.log.Debug("published", "key", ev.Key, "bytes", len(msg.Value))
	return nil
}

func encode(ev Event) (kafka.Message, error) {
	body, err := json.Marshal(ev.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %q: %w", ev.Key, err)
	}
	return kafka.Message{
		Key:     []byte(ev.Key),
		Value:   body,
		Headers: []kafka.Header{{Key: "content-type", Value: []byte("application/json")}},
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
