package spill

import (
	"bytes"
	"container/heap"
	"fmt"
	"os"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/indexer"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
)

// runCursor is one run's head record inside the merge heap.
type runCursor struct {
	r   *RunReader
	idx int
	// own copy of the head term; RunReader reuses its buffer.
	term    []byte
	docID   uint32
	termPos uint32
}

func (c *runCursor) advance() (bool, error) {
	ok, err := c.r.Next()
	if err != nil || !ok {
		return ok, err
	}
	rec := c.r.Record()
	c.term = append(c.term[:0], rec.Term...)
	c.docID = rec.DocID
	c.termPos = rec.TermPos
	return true, nil
}

// runHeap orders cursors by (term, docID, termPos, run index).
type runHeap []*runCursor

func (h runHeap) Len() int { return len(h) }

func (h runHeap) Less(i, j int) bool {
	if c := bytes.Compare(h[i].term, h[j].term); c != 0 {
		return c < 0
	}
	if h[i].docID != h[j].docID {
		return h[i].docID < h[j].docID
	}
	if h[i].termPos != h[j].termPos {
		return h[i].termPos < h[j].termPos
	}
	return h[i].idx < h[j].idx
}

func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *runHeap) Push(x any) { *h = append(*h, x.(*runCursor)) }

func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeRuns k-way-merges every run of the spill file into one segment triple
// under dir/base. The pool backs the posting accumulation and rewinds
// between terms. docCount is recorded in the segment header.
func MergeRuns(f *os.File, dir, base string, flag codec.OptionFlag, p *pool.Pool, docCount uint32) error {
	runs, err := Runs(f)
	if err != nil {
		return err
	}
	h := make(runHeap, 0, len(runs))
	for i, r := range runs {
		c := &runCursor{r: r, idx: i}
		ok, err := c.advance()
		if err != nil {
			return err
		}
		if ok {
			h = append(h, c)
		}
	}
	if len(h) == 0 {
		return fmt.Errorf("spill file contains no records")
	}
	heap.Init(&h)

	w, err := segment.NewWriter(dir, base, flag)
	if err != nil {
		return err
	}
	enc := codec.Encoder{Flag: flag}
	var (
		curTerm []byte
		pw      *indexer.PostingWriter
		lastDoc = codec.InvalidDocID
		lastPos = ^uint32(0)
		buf     []byte
	)
	flush := func() error {
		if pw == nil {
			return nil
		}
		buf = buf[:0]
		encoded, meta, err := enc.AppendPosting(buf, pw.Data())
		if err != nil {
			return fmt.Errorf("encoding postings for term %q: %w", curTerm, err)
		}
		buf = encoded
		off, err := w.WritePosting(buf)
		if err != nil {
			return err
		}
		meta.PostingOffset = off
		if err := w.AddTerm(curTerm, meta); err != nil {
			return err
		}
		p.Reset()
		pw = nil
		return nil
	}

	for len(h) > 0 {
		c := h[0]
		if pw == nil || !bytes.Equal(c.term, curTerm) {
			if err := flush(); err != nil {
				w.Abort()
				return err
			}
			curTerm = append(curTerm[:0], c.term...)
			pw = indexer.NewPostingWriter(p, flag)
			lastDoc = codec.InvalidDocID
			lastPos = ^uint32(0)
		}
		if c.docID != lastDoc {
			lastDoc = c.docID
			lastPos = ^uint32(0)
			pw.EndDocument(lastDoc, 0)
		}
		if c.termPos != lastPos {
			lastPos = c.termPos
			pw.AddPosition(lastPos)
		}
		ok, err := c.advance()
		if err != nil {
			w.Abort()
			return err
		}
		if ok {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}
	}
	if err := flush(); err != nil {
		w.Abort()
		return err
	}
	return w.Close(docCount)
}
