// Package kafka carries analytics events over segmentio/kafka-go. The
// producer serialises events as JSON with an event-type header; the
// consumer hands each message to a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pydash/methodref/pkg/config"
)

// Message is a consumed record.
type Message struct {
	Key   []byte
	Value []byte
	// Type is the HeaderEventType header, or "" when the producer sent none.
	Type string
	Time time.Time
}

// MessageHandler processes one message.
type MessageHandler func(ctx context.Context, msg Message) error

// ConsumerStats reports consumer progress.
type ConsumerStats struct {
	Processed int64
	Failed    int64
	Lag       int64
}

// Consumer reads a topic as part of a consumer group. Analytics are
// best-effort: a message whose handler fails is logged and committed so it
// cannot stall the partition.
type Consumer struct {
	reader    *kafka.Reader
	handler   MessageHandler
	logger    *slog.Logger
	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer creates a Consumer for topic. New groups start at the newest
// offset; historic events are not replayed.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
		c.logger.Info("consumer stopped",
			"processed", c.processed.Load(),
			"failed", c.failed.Load(),
		)
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}

		msg := Message{Key: m.Key, Value: m.Value, Type: headerValue(m.Headers, HeaderEventType), Time: m.Time}
		if err := c.handler(ctx, msg); err != nil {
			c.failed.Add(1)
			c.logger.Error("skipping message",
				"partition", m.Partition,
				"offset", m.Offset,
				"type", msg.Type,
				"error", err,
			)
		} else {
			c.processed.Add(1)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		}
	}
}

// Stats returns counters since start plus the reader's current lag.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Processed: c.processed.Load(),
		Failed:    c.failed.Load(),
		Lag:       c.reader.Stats().Lag,
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
