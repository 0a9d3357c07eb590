package merger

import (
	"fmt"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
)

// postingMerger concatenates one term's postings across segments, rewriting
// each segment's local docids into the merged segment's docid space. Segment
// ranges are disjoint and arrive in base order, so no docid interleaving is
// needed.
//
// A fresh postingMerger is created per term; both pools reset after the term
// is dumped, so every buffer here is transient.
type postingMerger struct {
	flag codec.OptionFlag
	p    *pool.Pool
	buf  *pool.RecyclePool

	out codec.PostingData
}

func newPostingMerger(flag codec.OptionFlag, p *pool.Pool, buf *pool.RecyclePool) *postingMerger {
	return &postingMerger{flag: flag, p: p, buf: buf}
}

// merge pulls each segment's posting block set, decodes it, and appends the
// postings rebased into the target's docid space: each segment's ids shift
// by its base minus the target's base.
func (pm *postingMerger) merge(entries []*SegmentTermPosting, targetBase uint32) error {
	var totalDocs, totalTF uint64
	for _, e := range entries {
		totalDocs += uint64(e.Meta.DocFreq)
		totalTF += e.Meta.TotalTF
	}
	pm.out.DocIDs = pool.Slice[uint32](pm.p, int(totalDocs))[:0]
	pm.out.TFs = pool.Slice[uint32](pm.p, int(totalDocs))[:0]
	if pm.flag.Has(codec.HasPosition) {
		pm.out.PosLens = pool.Slice[uint32](pm.p, int(totalDocs))[:0]
		pm.out.Positions = pool.Slice[uint32](pm.p, int(totalTF))[:0]
	}

	for _, e := range entries {
		raw := pm.buf.Allocate(int(e.Meta.PostingLength))
		data, err := e.Reader.PostingBytesInto(e.Meta, raw)
		if err != nil {
			return err
		}
		view, err := codec.NewView(pm.flag, data)
		if err != nil {
			return err
		}
		decoded, err := codec.DecodeAll(view, pm.p, e.Meta)
		if err != nil {
			return fmt.Errorf("decoding postings from segment %s: %w", e.Reader.Base(), err)
		}
		rebase := e.BaseDocID - targetBase
		for _, doc := range decoded.DocIDs {
			pm.out.DocIDs = append(pm.out.DocIDs, doc+rebase)
		}
		pm.out.TFs = append(pm.out.TFs, decoded.TFs...)
		if pm.flag.Has(codec.HasPosition) {
			pm.out.PosLens = append(pm.out.PosLens, decoded.PosLens...)
			pm.out.Positions = append(pm.out.Positions, decoded.Positions...)
		}
		pm.buf.Deallocate(raw, int(e.Meta.PostingLength))
	}
	return nil
}

// dump encodes the merged posting and writes it to the segment writer,
// returning the term's dictionary record.
func (pm *postingMerger) dump(w *segment.Writer) (codec.TermMeta, error) {
	enc := codec.Encoder{Flag: pm.flag}
	scratch := pm.buf.Allocate(len(pm.out.DocIDs) * 8)
	encoded, meta, err := enc.AppendPosting(scratch[:0], &pm.out)
	if err != nil {
		return codec.TermMeta{}, err
	}
	off, err := w.WritePosting(encoded)
	if err != nil {
		return codec.TermMeta{}, err
	}
	meta.PostingOffset = off
	return meta, nil
}
