// Package reader answers term lookups across a set of open segments. A
// lookup gathers every segment's posting block set for the term and hands
// back a single iterator over the unified docid space.
package reader

import (
	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
)

// SegmentPosting is one segment's contribution to a term lookup.
type SegmentPosting struct {
	BaseDocID uint32
	Meta      codec.TermMeta
	Data      []byte // session-pool allocated raw posting bytes
}

// Reader holds open segment readers and their base docids, in ascending
// base order.
type Reader struct {
	flag  codec.OptionFlag
	segs  []*segment.Reader
	bases []uint32
}

// Open opens one segment reader per base name. baseDocIDs must align with
// baseNames and ascend.
func Open(dir string, baseNames []string, baseDocIDs []uint32, flag codec.OptionFlag) (*Reader, error) {
	r := &Reader{flag: flag}
	for i, base := range baseNames {
		sr, err := segment.OpenReader(dir, base, flag)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.segs = append(r.segs, sr)
		r.bases = append(r.bases, baseDocIDs[i])
	}
	return r, nil
}

// Lookup gathers the term's postings from every segment. It returns nil
// when no segment contains the term. The iterator's buffers come from
// sessionPool and die with it; the caller resets the pool when the query
// ends.
func (r *Reader) Lookup(term string, sessionPool *pool.Pool) (*PostingIterator, error) {
	segPostings, err := r.LookupPostings(term, sessionPool)
	if err != nil {
		return nil, err
	}
	if len(segPostings) == 0 {
		return nil, nil
	}
	return newPostingIterator(r.flag, segPostings, sessionPool)
}

// LookupPostings gathers the term's raw segment postings without building an
// iterator. The posting cache stores and replays these.
func (r *Reader) LookupPostings(term string, sessionPool *pool.Pool) ([]SegmentPosting, error) {
	termBytes := []byte(term)
	var segPostings []SegmentPosting
	for i, sr := range r.segs {
		meta, ok, err := sr.TermMeta(termBytes)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := sr.PostingBytes(meta, sessionPool)
		if err != nil {
			return nil, err
		}
		segPostings = append(segPostings, SegmentPosting{
			BaseDocID: r.bases[i],
			Meta:      meta,
			Data:      data,
		})
	}
	return segPostings, nil
}

// NewPostingIterator builds an iterator over already-gathered segment
// postings, e.g. ones replayed from the posting cache. Buffers come from
// sessionPool.
func NewPostingIterator(flag codec.OptionFlag, segs []SegmentPosting, sessionPool *pool.Pool) (*PostingIterator, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	return newPostingIterator(flag, segs, sessionPool)
}

// Close closes every segment reader.
func (r *Reader) Close() error {
	var firstErr error
	for _, sr := range r.segs {
		if err := sr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
