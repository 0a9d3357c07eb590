// Package merger consolidates N on-disk segments into one. A priority queue
// over per-segment term iterators yields each distinct term in ascending
// order together with every segment containing it; the postings are rebased
// into the merged segment's docid space and concatenated, the dictionary record is
// written, and the term goes into the output FST with its dictionary offset.
package merger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
	"github.com/meridiansearch/fulltext-platform/pkg/metrics"
)

// Merger merges segment triples within one directory. It owns its two pools
// for the duration of a merge: the memory pool backs decoded postings, the
// recycle pool the transient read/encode buffers. Both reset between terms
// and release at the end.
type Merger struct {
	dir  string
	flag codec.OptionFlag

	memPool *pool.Pool
	bufPool *pool.RecyclePool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Merger for segments under dir written with flag. m may be
// nil when the caller does not record metrics.
func New(dir string, flag codec.OptionFlag, poolChunkSize int, m *metrics.Metrics) *Merger {
	return &Merger{
		dir:     dir,
		flag:    flag,
		memPool: pool.New(poolChunkSize),
		bufPool: pool.NewRecycle(poolChunkSize),
		metrics: m,
		logger:  slog.Default().With("component", "segment-merger"),
	}
}

// Merge consolidates the segments named by baseNames, whose docid ranges
// start at the corresponding baseDocIDs, into a new segment targetBase.
// Ranges must be disjoint and given in ascending base order; option flags
// must match the merger's.
func (m *Merger) Merge(baseNames []string, baseDocIDs []uint32, targetBase string) (err error) {
	start := time.Now()
	defer func() {
		if m.metrics == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.metrics.SegmentMergesTotal.WithLabelValues(status).Inc()
		m.metrics.SegmentMergeDuration.Observe(time.Since(start).Seconds())
	}()

	if len(baseNames) != len(baseDocIDs) {
		return fmt.Errorf("got %d base names for %d base docids", len(baseNames), len(baseDocIDs))
	}
	if len(baseNames) == 0 {
		return fmt.Errorf("nothing to merge")
	}

	readers := make([]*segment.Reader, 0, len(baseNames))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
		m.memPool.Release()
		m.bufPool.Release()
	}()
	for _, base := range baseNames {
		r, openErr := segment.OpenReader(m.dir, base, m.flag)
		if openErr != nil {
			return openErr
		}
		readers = append(readers, r)
	}
	if err := checkDisjoint(readers, baseDocIDs); err != nil {
		return err
	}

	queue, err := newTermPostingQueue(readers, baseDocIDs)
	if err != nil {
		return err
	}
	w, err := segment.NewWriter(m.dir, targetBase, m.flag)
	if err != nil {
		return err
	}

	// The merged segment adopts the first input's base; docids covered by
	// later inputs shift down accordingly and stay disjoint.
	targetBaseID := baseDocIDs[0]
	totalDocs := baseDocIDs[len(baseDocIDs)-1] - targetBaseID + readers[len(readers)-1].DocCount()
	terms := 0
	for !queue.empty() {
		term, entries := queue.currentMerging()
		pm := newPostingMerger(m.flag, m.memPool, m.bufPool)
		if err := pm.merge(entries, targetBaseID); err != nil {
			w.Abort()
			return fmt.Errorf("merging term %q: %w", term, err)
		}
		meta, err := pm.dump(w)
		if err != nil {
			w.Abort()
			return fmt.Errorf("dumping term %q: %w", term, err)
		}
		if err := w.AddTerm(term, meta); err != nil {
			w.Abort()
			return err
		}
		m.memPool.Reset()
		m.bufPool.Reset()
		terms++
		if err := queue.moveToNextTerm(); err != nil {
			w.Abort()
			return err
		}
	}
	if err := w.Close(totalDocs); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.TermsMergedTotal.Add(float64(terms))
	}
	m.logger.Info("segments merged",
		"inputs", len(baseNames),
		"target", targetBase,
		"base_doc_id", targetBaseID,
		"terms", terms,
		"docs", totalDocs,
	)
	return nil
}

// checkDisjoint verifies the segments' docid ranges neither overlap nor
// arrive out of base order.
func checkDisjoint(readers []*segment.Reader, baseDocIDs []uint32) error {
	for i := 1; i < len(readers); i++ {
		prevEnd := uint64(baseDocIDs[i-1]) + uint64(readers[i-1].DocCount())
		if uint64(baseDocIDs[i]) < prevEnd {
			return fmt.Errorf("segment %s at base %d begins inside [%d, %d): %w",
				readers[i].Base(), baseDocIDs[i], baseDocIDs[i-1], prevEnd, errors.ErrDocIDOverlap)
		}
	}
	return nil
}
