package merger

import (
	"bytes"
	"container/heap"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
)

// SegmentTermPosting is one segment's posting source for the term currently
// at the front of the queue.
type SegmentTermPosting struct {
	Reader    *segment.Reader
	BaseDocID uint32
	Meta      codec.TermMeta

	idx int
	it  *segment.TermIterator
	ok  bool
}

func (s *SegmentTermPosting) term() []byte { return s.it.Term() }

func (s *SegmentTermPosting) advance() error {
	ok, err := s.it.Next()
	if err != nil {
		return err
	}
	s.ok = ok
	if ok {
		s.Meta = s.it.Meta()
	}
	return nil
}

// termPostingHeap orders segment cursors by current term, tie-broken by
// segment index for deterministic output.
type termPostingHeap []*SegmentTermPosting

func (h termPostingHeap) Len() int { return len(h) }

func (h termPostingHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].term(), h[j].term()); c != 0 {
		return c < 0
	}
	return h[i].idx < h[j].idx
}

func (h termPostingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *termPostingHeap) Push(x any) { *h = append(*h, x.(*SegmentTermPosting)) }

func (h *termPostingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// termPostingQueue drives the k-way term merge: it surfaces, per distinct
// term, every segment cursor positioned at that term.
type termPostingQueue struct {
	h       termPostingHeap
	current []*SegmentTermPosting
}

func newTermPostingQueue(readers []*segment.Reader, baseDocIDs []uint32) (*termPostingQueue, error) {
	q := &termPostingQueue{}
	for i, r := range readers {
		it, err := r.Terms()
		if err != nil {
			return nil, err
		}
		s := &SegmentTermPosting{Reader: r, BaseDocID: baseDocIDs[i], idx: i, it: it}
		if err := s.advance(); err != nil {
			return nil, err
		}
		if s.ok {
			q.h = append(q.h, s)
		}
	}
	heap.Init(&q.h)
	return q, nil
}

func (q *termPostingQueue) empty() bool { return len(q.h) == 0 }

// currentMerging pops every cursor positioned at the minimum term and
// returns them in segment order along with the term bytes. The caller owns
// the returned term until moveToNextTerm.
func (q *termPostingQueue) currentMerging() ([]byte, []*SegmentTermPosting) {
	q.current = q.current[:0]
	term := q.h[0].term()
	for len(q.h) > 0 && bytes.Equal(q.h[0].term(), term) {
		q.current = append(q.current, heap.Pop(&q.h).(*SegmentTermPosting))
	}
	return q.current[0].term(), q.current
}

// moveToNextTerm advances the cursors handed out by currentMerging and
// restores the heap.
func (q *termPostingQueue) moveToNextTerm() error {
	for _, s := range q.current {
		if err := s.advance(); err != nil {
			return err
		}
		if s.ok {
			heap.Push(&q.h, s)
		}
	}
	q.current = q.current[:0]
	return nil
}
