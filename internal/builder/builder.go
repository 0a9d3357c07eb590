// Package builder orchestrates the build path: it partitions incoming
// document batches across shard inverters, folds them into a primary
// inverter, commits into the memory indexer, and flushes segments to disk.
// A background merge loop consolidates segments once enough accumulate.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridiansearch/fulltext-platform/internal/catalog"
	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/indexer"
	"github.com/meridiansearch/fulltext-platform/internal/index/inverter"
	"github.com/meridiansearch/fulltext-platform/internal/index/merger"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
	"github.com/meridiansearch/fulltext-platform/pkg/config"
	"github.com/meridiansearch/fulltext-platform/pkg/metrics"
	"github.com/meridiansearch/fulltext-platform/pkg/resilience"
)

// Document is one ingestible document: an external key plus its text.
type Document struct {
	Key  string
	Text string
}

// SegmentRef describes a live on-disk segment.
type SegmentRef struct {
	Base      string
	BaseDocID uint32
	DocCount  uint32
}

// Builder owns the primary inverter, its shard inverters, the memory
// indexer, and the segment registry for one column.
type Builder struct {
	cfg      config.IndexerConfig
	mergeCfg config.MergeConfig
	flag     codec.OptionFlag

	mu       sync.Mutex
	mi       *indexer.MemoryIndexer
	primary  *inverter.Inverter
	shards   []*inverter.Inverter
	segments []SegmentRef

	nextLocal  uint32 // next docid local to the segment being built
	segBase    uint32 // global base of the segment being built
	nextGlobal uint32
	segSeq     int

	catalog *catalog.Store
	metrics *metrics.Metrics
	logger  *slog.Logger

	// onSegmentsChanged runs after a flush or merge alters the segment
	// set, receiving the new set; cmd/indexd hooks the segment-events
	// publisher in here. It runs under the builder's lock and must
	// not call back into the Builder.
	onSegmentsChanged func(names []string, bases []uint32)
}

// FlagFromOptions translates the config's option toggles into the codec
// flag.
func FlagFromOptions(o config.OptionsConfig) codec.OptionFlag {
	var flag codec.OptionFlag
	if o.TermFrequencies {
		flag |= codec.HasTF
	}
	if o.Positions {
		flag |= codec.HasPosition
	}
	if o.BlockSkips {
		flag |= codec.HasBlockSkip
	}
	return flag
}

// New creates a Builder. cat and m may be nil.
func New(cfg config.IndexerConfig, mergeCfg config.MergeConfig, cat *catalog.Store, m *metrics.Metrics) (*Builder, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	flag := FlagFromOptions(cfg.Options)
	mi := indexer.NewMemoryIndexer(indexer.Options{
		Flag:          flag,
		PoolChunkSize: cfg.PoolChunkSize,
	})
	b := &Builder{
		cfg:      cfg,
		mergeCfg: mergeCfg,
		flag:     flag,
		mi:       mi,
		primary:  inverter.New(mi, cfg.PoolChunkSize),
		catalog:  cat,
		metrics:  m,
		logger:   slog.Default().With("component", "index-builder"),
	}
	for i := 0; i < cfg.NumShards; i++ {
		b.shards = append(b.shards, inverter.New(mi, cfg.PoolChunkSize))
	}
	if cat != nil {
		if err := b.loadCatalog(context.Background()); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Builder) loadCatalog(ctx context.Context) error {
	segs, err := b.catalog.ListSegments(ctx)
	if err != nil {
		return fmt.Errorf("loading segment catalog: %w", err)
	}
	for _, s := range segs {
		b.segments = append(b.segments, SegmentRef{
			Base:      s.Base,
			BaseDocID: s.BaseDocID,
			DocCount:  s.DocCount,
		})
		if end := s.BaseDocID + s.DocCount; end > b.nextGlobal {
			b.nextGlobal = end
		}
	}
	b.segBase = b.nextGlobal
	b.logger.Info("catalog loaded", "segments", len(segs), "next_doc_id", b.nextGlobal)
	return nil
}

// SetOnSegmentsChanged registers a hook run after flushes and merges.
func (b *Builder) SetOnSegmentsChanged(fn func(names []string, bases []uint32)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSegmentsChanged = fn
}

// AddDocuments inverts one batch. The batch is cut into contiguous shard
// ranges inverted in parallel, folded into the primary in shard order, and
// committed into the memory indexer. Docids are assigned sequentially in
// batch order.
func (b *Builder) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()

	rows := make([]string, len(docs))
	for i, d := range docs {
		rows[i] = d.Text
	}
	numShards := len(b.shards)
	per := (len(docs) + numShards - 1) / numShards

	g, _ := errgroup.WithContext(ctx)
	for s := 0; s < numShards; s++ {
		lo := s * per
		if lo >= len(docs) {
			break
		}
		hi := min(lo+per, len(docs))
		inv := b.shards[s]
		g.Go(func() error {
			inv.InvertColumn(rows, uint32(lo), uint32(hi-lo), b.nextLocal+uint32(lo))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for s := 0; s < numShards && s*per < len(docs); s++ {
		b.primary.Merge(b.shards[s])
	}
	b.primary.Sort()
	if err := b.primary.Commit(inverter.InMemory()); err != nil {
		return err
	}
	b.mi.AddDocCount(uint32(len(docs)))
	b.primary.Reset()
	for _, s := range b.shards {
		s.Reset()
	}

	if b.catalog != nil {
		keys := make([]string, len(docs))
		for i, d := range docs {
			keys[i] = d.Key
		}
		if err := b.catalog.RecordDocuments(ctx, keys, b.nextGlobal); err != nil {
			return err
		}
	}
	b.nextLocal += uint32(len(docs))
	b.nextGlobal += uint32(len(docs))

	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Add(float64(len(docs)))
		b.metrics.BatchesInvertedTotal.WithLabelValues("memory").Inc()
		b.metrics.BatchInvertDuration.Observe(time.Since(start).Seconds())
	}
	if int64(b.mi.GetPool().Reserved()) >= b.cfg.SegmentMaxSize {
		b.logger.Info("memory indexer reached max size, flushing",
			"reserved", b.mi.GetPool().Reserved(),
			"threshold", b.cfg.SegmentMaxSize,
		)
		return b.flushLocked(ctx)
	}
	return nil
}

// Flush dumps the memory indexer into a new segment and registers it.
func (b *Builder) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *Builder) flushLocked(ctx context.Context) error {
	if b.mi.TermCount() == 0 {
		return nil
	}
	start := time.Now()
	base := fmt.Sprintf("seg_%06d", b.segSeq)
	b.segSeq++
	// Dump aborts cleanly on failure (temp files removed), so a transient
	// filesystem error is safe to retry.
	err := resilience.SegmentIOPolicy().Do(ctx, "segment-dump", func() error {
		return b.mi.Dump(b.cfg.DataDir, base)
	})
	if err != nil {
		if b.metrics != nil {
			b.metrics.SegmentsFlushedTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("flushing segment %s: %w", base, err)
	}
	ref := SegmentRef{Base: base, BaseDocID: b.segBase, DocCount: b.nextLocal}
	b.segments = append(b.segments, ref)
	if b.catalog != nil {
		if err := b.catalog.RegisterSegment(ctx, catalog.Segment{
			Base:      ref.Base,
			BaseDocID: ref.BaseDocID,
			DocCount:  ref.DocCount,
			Flag:      uint32(b.flag),
		}); err != nil {
			return err
		}
	}
	b.mi.Reset()
	b.segBase = b.nextGlobal
	b.nextLocal = 0
	if b.metrics != nil {
		b.metrics.SegmentsFlushedTotal.WithLabelValues("ok").Inc()
		b.metrics.SegmentFlushDuration.Observe(time.Since(start).Seconds())
		b.metrics.ActiveSegments.Set(float64(len(b.segments)))
	}
	b.notifySegmentsChanged()
	return nil
}

// MergeSegments consolidates the live segments into one when their count
// reaches the configured threshold.
func (b *Builder) MergeSegments(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.segments) < b.mergeCfg.MaxSegmentsBeforeMerge {
		return nil
	}
	names := make([]string, len(b.segments))
	bases := make([]uint32, len(b.segments))
	for i, s := range b.segments {
		names[i] = s.Base
		bases[i] = s.BaseDocID
	}
	target := fmt.Sprintf("seg_%06d", b.segSeq)
	b.segSeq++

	m := merger.New(b.cfg.DataDir, b.flag, b.cfg.PoolChunkSize, b.metrics)
	if err := m.Merge(names, bases, target); err != nil {
		return fmt.Errorf("merging %d segments into %s: %w", len(names), target, err)
	}
	last := b.segments[len(b.segments)-1]
	merged := SegmentRef{
		Base:      target,
		BaseDocID: bases[0],
		DocCount:  last.BaseDocID + last.DocCount - bases[0],
	}
	if b.catalog != nil {
		if err := b.catalog.SwapSegments(ctx, names, catalog.Segment{
			Base:      merged.Base,
			BaseDocID: merged.BaseDocID,
			DocCount:  merged.DocCount,
			Flag:      uint32(b.flag),
		}); err != nil {
			return err
		}
	}
	b.segments = []SegmentRef{merged}
	for _, name := range names {
		for _, suffix := range []string{segment.DictSuffix, segment.PostingSuffix, segment.FSTSuffix} {
			os.Remove(filepath.Join(b.cfg.DataDir, name+suffix))
		}
	}
	if b.metrics != nil {
		b.metrics.ActiveSegments.Set(float64(len(b.segments)))
	}
	b.notifySegmentsChanged()
	b.logger.Info("segments consolidated", "inputs", len(names), "target", target)
	return nil
}

func (b *Builder) notifySegmentsChanged() {
	if b.onSegmentsChanged == nil {
		return
	}
	names, bases := b.segmentSetLocked()
	b.onSegmentsChanged(names, bases)
}

func (b *Builder) segmentSetLocked() ([]string, []uint32) {
	names := make([]string, len(b.segments))
	bases := make([]uint32, len(b.segments))
	for i, s := range b.segments {
		names[i] = s.Base
		bases[i] = s.BaseDocID
	}
	return names, bases
}

// Segments returns the live segment base names and base docids, in base
// order.
func (b *Builder) Segments() ([]string, []uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.segmentSetLocked()
}

// Flag returns the posting option flag segments are written under.
func (b *Builder) Flag() codec.OptionFlag { return b.flag }

// StartLoops runs the periodic flush and merge loops until ctx is
// cancelled, performing a final flush on shutdown.
func (b *Builder) StartLoops(ctx context.Context) {
	go func() {
		flush := time.NewTicker(b.cfg.FlushInterval)
		merge := time.NewTicker(b.mergeCfg.Interval)
		defer flush.Stop()
		defer merge.Stop()
		for {
			select {
			case <-ctx.Done():
				b.logger.Info("build loops stopping, performing final flush")
				if err := b.Flush(context.Background()); err != nil {
					b.logger.Error("final flush failed", "error", err)
				}
				return
			case <-flush.C:
				if err := b.Flush(ctx); err != nil {
					b.logger.Error("periodic flush failed", "error", err)
				}
			case <-merge.C:
				if err := b.MergeSegments(ctx); err != nil {
					b.logger.Error("periodic merge failed", "error", err)
				}
			}
		}
	}()
}

// Close flushes outstanding postings and releases every pool.
func (b *Builder) Close() error {
	err := b.Flush(context.Background())
	b.mu.Lock()
	defer b.mu.Unlock()
	b.primary.Release()
	for _, s := range b.shards {
		s.Release()
	}
	b.mi.Release()
	return err
}
