package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Indexer.NumShards)
	assert.True(t, cfg.Indexer.Options.Positions)
	assert.Equal(t, 8, cfg.Merge.MaxSegmentsBeforeMerge)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	content := `
indexer:
  dataDir: /tmp/idx
  numShards: 2
  flushInterval: 10s
  options:
    termFrequencies: true
    positions: false
    blockSkips: false
merge:
  maxSegmentsBeforeMerge: 4
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/idx", cfg.Indexer.DataDir)
	assert.Equal(t, 2, cfg.Indexer.NumShards)
	assert.Equal(t, 10*time.Second, cfg.Indexer.FlushInterval)
	assert.False(t, cfg.Indexer.Options.Positions)
	assert.Equal(t, 4, cfg.Merge.MaxSegmentsBeforeMerge)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FT_NUM_SHARDS", "7")
	t.Setenv("FT_KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Indexer.NumShards)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FT_NUM_SHARDS", "0")
	_, err := Load("")
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "pw",
		Database: "idx", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=pw dbname=idx sslmode=disable", p.DSN())
}
