package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pydash/methodref/pkg/config"
)

// HeaderEventType names the message header carrying Event.Type.
const HeaderEventType = "event-type"

// Event is one message to publish. Key picks the partition, Type travels as
// a header so consumers can route without decoding, and Value is encoded as
// JSON.
type Event struct {
	Key   string
	Type  string
	Value any
}

// Producer publishes events to a single topic. Writes are synchronous so
// the caller learns about broker failures.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireOne,
			Compression:            kafka.Snappy,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// PublishBatch writes events in one call. Nothing is sent if any value
// fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encode(events, time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing %d events to kafka: %w", len(msgs), err)
	}
	p.logger.Debug("batch published", "count", len(msgs))
	return nil
}

func encode(events []Event, now time.Time) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event value (key %q): %w", e.Key, err)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(e.Key),
			Value: value,
			Time:  now,
		}
		if e.Type != "" {
			msgs[i].Headers = []kafka.Header{{Key: HeaderEventType, Value: []byte(e.Type)}}
		}
	}
	return msgs, nil
}

// Close flushes pending writes, closes the writer and logs lifetime totals.
func (p *Producer) Close() error {
	stats := p.writer.Stats()
	err := p.writer.Close()
	p.logger.Info("producer closed",
		"messages", stats.Messages,
		"errors", stats.Errors,
	)
	return err
}
