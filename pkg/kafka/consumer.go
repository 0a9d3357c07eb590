// Package kafka provides the producer and consumer the ingest pipeline runs
// on, backed by segmentio/kafka-go. The producer serialises events as JSON;
// the consumer decodes document-ingest messages via a pluggable handler.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/meridiansearch/fulltext-platform/pkg/config"
)

// MessageHandler is invoked for each message. A nil return acknowledges the
// message; an error marks it poisoned.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads document-ingest messages and feeds them to a
// MessageHandler. Messages whose handler fails are committed anyway and
// counted as skipped: the index builder assigns docids at batch time, so
// redelivering a poisoned document would only re-fail it and wedge the
// partition behind it.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  *slog.Logger

	processed atomic.Int64
	skipped   atomic.Int64
}

// NewConsumer creates a Consumer for the given topic and handler. Fetch
// sizes are tuned for document payloads: many small JSON events per fetch.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{
		reader:  r,
		handler: handler,
		logger:  slog.Default().With("component", "ingest-consumer", "topic", topic),
	}
}

// Start enters the consume loop, fetching, handling, and committing
// messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("ingest consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("ingest consumer stopping",
					"reason", ctx.Err(),
					"processed", c.processed.Load(),
					"skipped", c.skipped.Load(),
				)
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.skipped.Add(1)
			c.logger.Error("message poisoned, skipping",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		} else {
			c.processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Stats returns how many messages were handled and how many were skipped as
// poisoned.
func (c *Consumer) Stats() (processed, skipped int64) {
	return c.processed.Load(), c.skipped.Load()
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeEvent unmarshals a message value into T.
func DecodeEvent[T any](value []byte) (T, error) {
	var event T
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("decoding ingest event: %w", err)
	}
	return event, nil
}
