// Package consumer reads document ingest events from Kafka, batches them,
// and drives the index builder. Batching amortises the sort-and-commit cost
// of the inverter across many documents.
package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meridiansearch/fulltext-platform/internal/builder"
	"github.com/meridiansearch/fulltext-platform/pkg/config"
	"github.com/meridiansearch/fulltext-platform/pkg/kafka"
)

// IngestEvent is the JSON payload on the document-ingest topic.
type IngestEvent struct {
	DocKey string `json:"doc_key"`
	Text   string `json:"text"`
}

// IndexConsumer wraps a Kafka consumer and a batching layer in front of the
// builder.
type IndexConsumer struct {
	consumer *kafka.Consumer
	batcher  *batcher
	logger   *slog.Logger
}

// New creates an IndexConsumer consuming the document-ingest topic into b.
func New(cfg config.Config, b *builder.Builder) *IndexConsumer {
	bt := &batcher{
		builder:  b,
		maxSize:  cfg.Indexer.BatchSize,
		interval: cfg.Indexer.BatchInterval,
		logger:   slog.Default().With("component", "index-consumer"),
	}
	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, bt.handle)
	return &IndexConsumer{
		consumer: kafkaConsumer,
		batcher:  bt,
		logger:   bt.logger,
	}
}

// Start consumes until ctx is cancelled, flushing the open batch on the
// configured interval and on shutdown.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	ic.batcher.startFlushLoop(ctx)
	err := ic.consumer.Start(ctx)
	if ferr := ic.batcher.flush(context.Background()); ferr != nil {
		ic.logger.Error("final batch flush failed", "error", ferr)
	}
	return err
}

// Close closes the underlying Kafka reader.
func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}

// batcher accumulates ingest events until the batch is full or the interval
// elapses, then hands them to the builder as one inverted batch.
type batcher struct {
	builder  *builder.Builder
	maxSize  int
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []builder.Document
}

func (bt *batcher) handle(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeEvent[IngestEvent](value)
	if err != nil {
		bt.logger.Error("failed to decode ingest event",
			"error", err,
			"key", string(key),
		)
		return nil
	}
	bt.mu.Lock()
	bt.pending = append(bt.pending, builder.Document{Key: event.DocKey, Text: event.Text})
	full := len(bt.pending) >= bt.maxSize
	bt.mu.Unlock()
	if full {
		return bt.flush(ctx)
	}
	return nil
}

func (bt *batcher) flush(ctx context.Context) error {
	bt.mu.Lock()
	batch := bt.pending
	bt.pending = nil
	bt.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := bt.builder.AddDocuments(ctx, batch); err != nil {
		bt.logger.Error("batch indexing failed", "size", len(batch), "error", err)
		return err
	}
	bt.logger.Debug("batch indexed", "size", len(batch))
	return nil
}

func (bt *batcher) startFlushLoop(ctx context.Context) {
	if bt.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(bt.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := bt.flush(ctx); err != nil {
					bt.logger.Error("interval batch flush failed", "error", err)
				}
			}
		}
	}()
}
