// Package querycache caches per-term segment postings in Redis, keyed by the
// term and a generation counter. Invalidate advances the generation so later
// lookups miss; the cache does not observe segment-set changes itself. Stale
// generations age out via TTL.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/reader"
	"github.com/meridiansearch/fulltext-platform/pkg/config"
	"github.com/meridiansearch/fulltext-platform/pkg/metrics"
	pkgredis "github.com/meridiansearch/fulltext-platform/pkg/redis"
)

const keyPrefix = "postings:"

// Cache is a read-through posting cache in front of a column index reader.
type Cache struct {
	client     *pkgredis.Client
	cfg        config.RedisConfig
	group      singleflight.Group
	generation atomic.Uint64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Cache. m may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *Cache {
	return &Cache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "posting-cache"),
	}
}

// Invalidate advances the generation so subsequent lookups miss. Old keys
// expire via TTL.
func (c *Cache) Invalidate() {
	c.generation.Add(1)
	c.logger.Debug("posting cache invalidated", "generation", c.generation.Load())
}

// Lookup returns the term's segment postings, reading through r on a miss.
// Returned postings use sessionPool for their buffers either way.
func (c *Cache) Lookup(ctx context.Context, r *reader.Reader, term string, sessionPool *pool.Pool) ([]reader.SegmentPosting, error) {
	key := c.buildKey(term)
	if data, err := c.client.Get(ctx, key); err == nil {
		if postings, derr := decodePostings([]byte(data), sessionPool); derr == nil {
			c.hit()
			return postings, nil
		}
		c.logger.Error("cache entry undecodable, dropping", "key", key)
		_ = c.client.Del(ctx, key)
	} else if !pkgredis.IsNilError(err) {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	c.miss()

	val, err, _ := c.group.Do(key, func() (any, error) {
		postings, err := r.LookupPostings(term, sessionPool)
		if err != nil {
			return nil, err
		}
		enc := encodePostings(postings)
		if err := c.client.Set(ctx, key, enc, c.cfg.CacheTTL); err != nil {
			c.logger.Error("cache set failed", "key", key, "error", err)
		}
		return enc, nil
	})
	if err != nil {
		return nil, err
	}
	return decodePostings(val.([]byte), sessionPool)
}

func (c *Cache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *Cache) buildKey(term string) string {
	hash := sha256.Sum256([]byte(term))
	return fmt.Sprintf("%s%d:%x", keyPrefix, c.generation.Load(), hash[:16])
}

// encodePostings packs segment postings as:
// u32 count, then per entry u32 base | TermMeta | u32 len | data.
func encodePostings(postings []reader.SegmentPosting) []byte {
	size := 4
	for _, p := range postings {
		size += 4 + codec.TermMetaSize + 4 + len(p.Data)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(postings)))
	for _, p := range postings {
		buf = binary.LittleEndian.AppendUint32(buf, p.BaseDocID)
		buf = p.Meta.AppendTo(buf)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Data)))
		buf = append(buf, p.Data...)
	}
	return buf
}

func decodePostings(buf []byte, p *pool.Pool) ([]reader.SegmentPosting, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("cache entry truncated")
	}
	count := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	postings := make([]reader.SegmentPosting, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 4+codec.TermMetaSize+4 {
			return nil, fmt.Errorf("cache entry truncated")
		}
		var sp reader.SegmentPosting
		sp.BaseDocID = binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		meta, err := codec.ReadTermMeta(buf)
		if err != nil {
			return nil, err
		}
		sp.Meta = meta
		buf = buf[codec.TermMetaSize:]
		n := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		if uint32(len(buf)) < n {
			return nil, fmt.Errorf("cache entry truncated")
		}
		sp.Data = p.Allocate(int(n))
		copy(sp.Data, buf[:n])
		buf = buf[n:]
		postings = append(postings, sp)
	}
	return postings, nil
}
