// Package indexer holds the in-memory postings a column inverter commits
// into, and dumps them as an on-disk segment triple.
package indexer

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/meridiansearch/fulltext-platform/internal/analysis"
	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
)

// MemoryIndexer owns the posting writers for one column between segment
// flushes. It is single-writer: one goroutine commits batches at a time.
type MemoryIndexer struct {
	analyzer    analysis.Analyzer
	specialized bool
	flag        codec.OptionFlag
	p           *pool.Pool

	postings map[string]*PostingWriter
	docCount uint32
	logger   *slog.Logger
}

// Options configures a MemoryIndexer.
type Options struct {
	Flag codec.OptionFlag
	// Specialized selects the stemming analyzer instead of the standard
	// one.
	Specialized   bool
	PoolChunkSize int
}

// NewMemoryIndexer creates an indexer with its own memory pool.
func NewMemoryIndexer(opts Options) *MemoryIndexer {
	var analyzer analysis.Analyzer
	if opts.Specialized {
		analyzer = analysis.NewEnglishAnalyzer()
	} else {
		analyzer = analysis.NewStandardAnalyzer()
	}
	return &MemoryIndexer{
		analyzer:    analyzer,
		specialized: opts.Specialized,
		flag:        opts.Flag,
		p:           pool.New(opts.PoolChunkSize),
		postings:    make(map[string]*PostingWriter),
		logger:      slog.Default().With("component", "memory-indexer"),
	}
}

// GetAnalyzer returns the analyzer inverters tokenise with.
func (m *MemoryIndexer) GetAnalyzer() analysis.Analyzer { return m.analyzer }

// Specialized reports whether the stemming analyzer mode is active.
func (m *MemoryIndexer) Specialized() bool { return m.specialized }

// GetPool returns the pool backing the posting writers.
func (m *MemoryIndexer) GetPool() *pool.Pool { return m.p }

// Flag returns the posting option flag.
func (m *MemoryIndexer) Flag() codec.OptionFlag { return m.flag }

// GetOrAddPosting returns the posting writer for term, creating it on first
// use.
func (m *MemoryIndexer) GetOrAddPosting(term string) *PostingWriter {
	w, ok := m.postings[term]
	if !ok {
		w = NewPostingWriter(m.p, m.flag)
		m.postings[term] = w
	}
	return w
}

// Posting returns the posting writer for term without creating one.
func (m *MemoryIndexer) Posting(term string) (*PostingWriter, bool) {
	w, ok := m.postings[term]
	return w, ok
}

// AddDocCount records documents committed into the indexer. The builder uses
// it to size segment doc counts.
func (m *MemoryIndexer) AddDocCount(n uint32) { m.docCount += n }

// DocCount returns the documents committed since the last Reset.
func (m *MemoryIndexer) DocCount() uint32 { return m.docCount }

// TermCount returns the number of distinct terms held.
func (m *MemoryIndexer) TermCount() int { return len(m.postings) }

// Dump writes the accumulated postings as a segment triple under dir/base.
// The indexer still holds its postings afterwards; call Reset to drop them.
func (m *MemoryIndexer) Dump(dir, base string) error {
	if len(m.postings) == 0 {
		return fmt.Errorf("dumping empty indexer")
	}
	terms := make([]string, 0, len(m.postings))
	for term := range m.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	w, err := segment.NewWriter(dir, base, m.flag)
	if err != nil {
		return err
	}
	enc := codec.Encoder{Flag: m.flag}
	var buf []byte
	for _, term := range terms {
		buf = buf[:0]
		data := m.postings[term].Data()
		encoded, meta, err := enc.AppendPosting(buf, data)
		if err != nil {
			w.Abort()
			return fmt.Errorf("encoding postings for term %q: %w", term, err)
		}
		buf = encoded
		off, err := w.WritePosting(buf)
		if err != nil {
			w.Abort()
			return err
		}
		meta.PostingOffset = off
		if err := w.AddTerm([]byte(term), meta); err != nil {
			w.Abort()
			return err
		}
	}
	if err := w.Close(m.docCount); err != nil {
		return err
	}
	m.logger.Info("segment dumped",
		"base", base,
		"terms", len(terms),
		"docs", m.docCount,
	)
	return nil
}

// Reset drops all postings and rewinds the pool for the next build cycle.
func (m *MemoryIndexer) Reset() {
	m.postings = make(map[string]*PostingWriter)
	m.docCount = 0
	m.p.Reset()
}

// Release drops postings and returns the pool's chunks.
func (m *MemoryIndexer) Release() {
	m.postings = nil
	m.docCount = 0
	m.p.Release()
}
