package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridiansearch/fulltext-platform/internal/builder"
	"github.com/meridiansearch/fulltext-platform/internal/catalog"
	"github.com/meridiansearch/fulltext-platform/internal/consumer"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/pkg/config"
	"github.com/meridiansearch/fulltext-platform/pkg/kafka"
	"github.com/meridiansearch/fulltext-platform/pkg/logger"
	"github.com/meridiansearch/fulltext-platform/pkg/metrics"
	"github.com/meridiansearch/fulltext-platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	noCatalog := flag.Bool("no-catalog", false, "run without the postgres segment catalog")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index builder service",
		"data_dir", cfg.Indexer.DataDir,
		"num_shards", cfg.Indexer.NumShards,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port)
		defer shutdown(context.Background())
		go samplePoolUsage(ctx, m)
	}

	var cat *catalog.Store
	if !*noCatalog {
		pg, err := postgres.Connect(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		cat = catalog.New(pg)
		if err := cat.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure catalog schema", "error", err)
			os.Exit(1)
		}
	}

	b, err := builder.New(cfg.Indexer, cfg.Merge, cat, m)
	if err != nil {
		slog.Error("failed to create index builder", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	segmentEvents := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SegmentEvents)
	defer segmentEvents.Close()
	b.SetOnSegmentsChanged(func(names []string, bases []uint32) {
		event := kafka.Event{Key: "segments", Value: map[string]any{
			"base_names": names,
			"base_docs":  bases,
		}}
		if err := segmentEvents.Publish(context.Background(), event); err != nil {
			slog.Error("failed to publish segment event", "error", err)
		}
	})

	b.StartLoops(ctx)

	indexConsumer := consumer.New(*cfg, b)
	defer indexConsumer.Close()

	slog.Info("index builder ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("index builder service stopped")
}

// samplePoolUsage exports the build pools' usage counters as gauges.
func samplePoolUsage(ctx context.Context, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := pool.GlobalUsage().Snapshot()
			m.PoolBytesReserved.Set(float64(snap.ReservedBytes))
			m.PoolBytesInUse.Set(float64(snap.LiveBytes))
		}
	}
}
