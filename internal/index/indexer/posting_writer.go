package indexer

import (
	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
)

// PostingWriter accumulates one term's postings during a build. The inverter
// drives it with the call pattern EndDocument(doc, tf) followed by that
// document's AddPosition calls; EndDocument with tf == 0 derives the term
// frequency from the number of positions added before the next document
// boundary.
//
// All buffers are pool-backed; the writer is invalid after its pool resets.
type PostingWriter struct {
	flag codec.OptionFlag
	p    *pool.Pool

	docIDs    []uint32
	tfs       []uint32
	posLens   []uint32
	positions []uint32
}

// NewPostingWriter creates a writer allocating from p.
func NewPostingWriter(p *pool.Pool, flag codec.OptionFlag) *PostingWriter {
	return &PostingWriter{flag: flag, p: p}
}

// EndDocument opens the posting entry for docID. Doc ids must arrive in
// strictly increasing order.
func (w *PostingWriter) EndDocument(docID uint32, tf uint32) {
	w.docIDs = pool.GrowSlice(w.p, w.docIDs, len(w.docIDs)+1)
	w.docIDs = append(w.docIDs, docID)
	w.tfs = pool.GrowSlice(w.p, w.tfs, len(w.tfs)+1)
	w.tfs = append(w.tfs, tf)
	w.posLens = pool.GrowSlice(w.p, w.posLens, len(w.posLens)+1)
	w.posLens = append(w.posLens, 0)
}

// AddPosition appends a position to the current document.
func (w *PostingWriter) AddPosition(pos uint32) {
	w.positions = pool.GrowSlice(w.p, w.positions, len(w.positions)+1)
	w.positions = append(w.positions, pos)
	w.posLens[len(w.posLens)-1]++
}

// DocFreq returns the number of documents accumulated.
func (w *PostingWriter) DocFreq() int { return len(w.docIDs) }

// Data finalises the accumulated postings: zero term frequencies are
// replaced with the per-document position counts.
func (w *PostingWriter) Data() *codec.PostingData {
	for i, tf := range w.tfs {
		if tf == 0 {
			if w.posLens[i] > 0 {
				w.tfs[i] = w.posLens[i]
			} else {
				w.tfs[i] = 1
			}
		}
	}
	return &codec.PostingData{
		DocIDs:    w.docIDs,
		TFs:       w.tfs,
		PosLens:   w.posLens,
		Positions: w.positions,
	}
}
