// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Merge, Kafka, Postgres, Redis, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Merge    MergeConfig    `yaml:"merge"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexerConfig controls the build path: shard parallelism, batch sizing,
// memory thresholds, and the posting format emitted into segments.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	NumShards      int           `yaml:"numShards"`
	BatchSize      int           `yaml:"batchSize"`
	BatchInterval  time.Duration `yaml:"batchInterval"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	PoolChunkSize  int           `yaml:"poolChunkSize"`
	Options        OptionsConfig `yaml:"options"`
}

// OptionsConfig selects which posting streams are written. All three default
// to true; segments written with different options cannot be merged together.
type OptionsConfig struct {
	TermFrequencies bool `yaml:"termFrequencies"`
	Positions       bool `yaml:"positions"`
	BlockSkips      bool `yaml:"blockSkips"`
}

// MergeConfig controls the background segment merge policy.
type MergeConfig struct {
	Interval               time.Duration `yaml:"interval"`
	MaxSegmentsBeforeMerge int           `yaml:"maxSegmentsBeforeMerge"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	SegmentEvents  string `yaml:"segmentEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters for the segment
// catalog.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and posting-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			DataDir:        "data/index",
			NumShards:      4,
			BatchSize:      512,
			BatchInterval:  2 * time.Second,
			SegmentMaxSize: 64 * 1024 * 1024,
			FlushInterval:  30 * time.Second,
			PoolChunkSize:  1 << 20,
			Options: OptionsConfig{
				TermFrequencies: true,
				Positions:       true,
				BlockSkips:      true,
			},
		},
		Merge: MergeConfig{
			Interval:               5 * time.Minute,
			MaxSegmentsBeforeMerge: 8,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fulltext-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				SegmentEvents:  "segment-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fulltext",
			User:            "fulltext",
			Password:        "fulltext",
			SSLMode:         "disable",
			MaxOpenConns:    16,
			MaxIdleConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 16,
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
		},
	}
}

func (c *Config) validate() error {
	if c.Indexer.NumShards <= 0 {
		return fmt.Errorf("indexer.numShards must be positive, got %d", c.Indexer.NumShards)
	}
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("indexer.batchSize must be positive, got %d", c.Indexer.BatchSize)
	}
	if c.Indexer.PoolChunkSize <= 0 {
		return fmt.Errorf("indexer.poolChunkSize must be positive, got %d", c.Indexer.PoolChunkSize)
	}
	if c.Merge.MaxSegmentsBeforeMerge < 2 {
		return fmt.Errorf("merge.maxSegmentsBeforeMerge must be at least 2, got %d", c.Merge.MaxSegmentsBeforeMerge)
	}
	return nil
}

// applyEnvOverrides overlays FT_-prefixed environment variables onto cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FT_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("FT_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.NumShards = n
		}
	}
	if v := os.Getenv("FT_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FT_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FT_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FT_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
}
