package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// View is a parsed posting block set over one term's raw posting bytes. It
// holds the decoded skip table and the offset of the blocks region; block
// contents are decoded on demand through a BlockCursor.
type View struct {
	flag       OptionFlag
	data       []byte
	blockCount int

	// skip entry i covers block (i+1)*skipInterval.
	skipLastDocs []uint32
	skipOffs     []uint32

	blocksOff int
}

// NewView parses the header and skip section of a posting block set.
func NewView(flag OptionFlag, data []byte) (*View, error) {
	v := &View{flag: flag, data: data}
	bc, off, err := v.uvarint(0)
	if err != nil {
		return nil, err
	}
	v.blockCount = int(bc)
	if flag.Has(HasBlockSkip) {
		sc, o, err := v.uvarint(off)
		if err != nil {
			return nil, err
		}
		off = o
		var lastDoc, lastOff uint64
		for i := uint64(0); i < sc; i++ {
			d, o, err := v.uvarint(off)
			if err != nil {
				return nil, err
			}
			f, o2, err := v.uvarint(o)
			if err != nil {
				return nil, err
			}
			off = o2
			lastDoc += d
			lastOff += f
			v.skipLastDocs = append(v.skipLastDocs, uint32(lastDoc))
			v.skipOffs = append(v.skipOffs, uint32(lastOff))
		}
	}
	v.blocksOff = off
	return v, nil
}

// Flag returns the option flag the view was parsed under.
func (v *View) Flag() OptionFlag { return v.flag }

// BlockCount returns the number of posting blocks.
func (v *View) BlockCount() int { return v.blockCount }

func (v *View) uvarint(off int) (uint64, int, error) {
	val, n := binary.Uvarint(v.data[off:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("posting varint truncated at offset %d: %w", off, errors.ErrCorruptSegment)
	}
	return val, off + n, nil
}

// BlockCursor walks the blocks of a View in order.
type BlockCursor struct {
	v       *View
	next    int    // next block index
	off     int    // absolute offset of the next block
	prevDoc uint32 // docid delta base for the next block
}

// Cursor returns a cursor positioned before the first block.
func (v *View) Cursor() BlockCursor {
	return BlockCursor{v: v, off: v.blocksOff}
}

// Done reports whether every block has been consumed.
func (c *BlockCursor) Done() bool { return c.next >= c.v.blockCount }

// SeekBlock repositions the cursor at the most advanced skip entry whose
// cumulative docid is below target, when that entry lies ahead of the
// cursor. Blocks in between are never decoded.
func (c *BlockCursor) SeekBlock(target uint32) {
	if !c.v.flag.Has(HasBlockSkip) {
		return
	}
	best := -1
	for i, lastDoc := range c.v.skipLastDocs {
		if lastDoc >= target {
			break
		}
		best = i
	}
	if best < 0 {
		return
	}
	blockIdx := (best + 1) * skipInterval
	if blockIdx <= c.next {
		return
	}
	c.next = blockIdx
	c.off = c.v.blocksOff + int(c.v.skipOffs[best])
	c.prevDoc = c.v.skipLastDocs[best]
}

// Next decodes the next block. docs and tfs must each have room for
// BlockSize entries; tfs is filled with ones when term frequencies are not
// stored. It returns the document count and the absolute offset of the
// block's position substream (meaningful only when positions are stored).
func (c *BlockCursor) Next(docs, tfs []uint32) (count int, posOff int, err error) {
	if c.Done() {
		return 0, 0, fmt.Errorf("cursor exhausted after %d blocks: %w", c.v.blockCount, errors.ErrCorruptSegment)
	}
	v := c.v
	cnt64, off, err := v.uvarint(c.off)
	if err != nil {
		return 0, 0, err
	}
	count = int(cnt64)
	if count == 0 || count > BlockSize {
		return 0, 0, fmt.Errorf("posting block of %d docs: %w", count, errors.ErrCorruptSegment)
	}
	prev := c.prevDoc
	for i := 0; i < count; i++ {
		d, o, err := v.uvarint(off)
		if err != nil {
			return 0, 0, err
		}
		off = o
		prev += uint32(d)
		docs[i] = prev
	}
	if v.flag.Has(HasTF) {
		for i := 0; i < count; i++ {
			tf, o, err := v.uvarint(off)
			if err != nil {
				return 0, 0, err
			}
			off = o
			tfs[i] = uint32(tf)
		}
	} else {
		for i := 0; i < count; i++ {
			tfs[i] = 1
		}
	}
	posOff = off
	if v.flag.Has(HasPosition) {
		for i := 0; i < count; i++ {
			n := int(tfs[i])
			if !v.flag.Has(HasTF) {
				pc, o, err := v.uvarint(off)
				if err != nil {
					return 0, 0, err
				}
				off = o
				n = int(pc)
			}
			for j := 0; j < n; j++ {
				_, o, err := v.uvarint(off)
				if err != nil {
					return 0, 0, err
				}
				off = o
			}
		}
	}
	c.next++
	c.off = off
	c.prevDoc = prev
	return count, posOff, nil
}

// PositionReader walks the position substream of one block, document by
// document, in the order Next returned them.
type PositionReader struct {
	v   *View
	off int
}

// Positions returns a reader starting at posOff as returned by Next.
func (v *View) Positions(posOff int) PositionReader {
	return PositionReader{v: v, off: posOff}
}

// Doc decodes the positions of the next document into dst, which must have
// capacity for tf entries. tf is the document's term frequency as returned
// alongside the block. The decoded count is tf unless frequencies are not
// stored, in which case the substream carries its own count.
func (r *PositionReader) Doc(tf uint32, dst []uint32) ([]uint32, error) {
	n := int(tf)
	if !r.v.flag.Has(HasTF) {
		pc, o, err := r.v.uvarint(r.off)
		if err != nil {
			return nil, err
		}
		r.off = o
		n = int(pc)
	}
	dst = dst[:0]
	var prev uint32
	for j := 0; j < n; j++ {
		d, o, err := r.v.uvarint(r.off)
		if err != nil {
			return nil, err
		}
		r.off = o
		prev += uint32(d)
		dst = append(dst, prev)
	}
	return dst, nil
}

// DecodeAll fully decodes a posting block set into pool-backed flat arrays.
// The merger uses this to rebase and concatenate segment postings.
func DecodeAll(v *View, p *pool.Pool, meta TermMeta) (*PostingData, error) {
	n := int(meta.DocFreq)
	out := &PostingData{
		DocIDs: pool.Slice[uint32](p, n)[:0],
		TFs:    pool.Slice[uint32](p, n)[:0],
	}
	if v.flag.Has(HasPosition) {
		out.PosLens = pool.Slice[uint32](p, n)[:0]
		out.Positions = pool.Slice[uint32](p, int(meta.TotalTF))[:0]
	}
	var docs, tfs [BlockSize]uint32
	var posBuf [BlockSize]uint32
	cur := v.Cursor()
	for !cur.Done() {
		count, posOff, err := cur.Next(docs[:], tfs[:])
		if err != nil {
			return nil, err
		}
		if len(out.DocIDs)+count > n {
			return nil, fmt.Errorf("posting holds more than %d docs: %w", n, errors.ErrCorruptSegment)
		}
		out.DocIDs = append(out.DocIDs, docs[:count]...)
		out.TFs = append(out.TFs, tfs[:count]...)
		if v.flag.Has(HasPosition) {
			pr := v.Positions(posOff)
			for i := 0; i < count; i++ {
				ps, err := pr.Doc(tfs[i], posBuf[:0])
				if err != nil {
					return nil, err
				}
				out.PosLens = append(out.PosLens, uint32(len(ps)))
				out.Positions = append(out.Positions, ps...)
			}
		}
	}
	if len(out.DocIDs) != n {
		return nil, fmt.Errorf("posting decoded %d docs, meta says %d: %w", len(out.DocIDs), n, errors.ErrCorruptSegment)
	}
	return out, nil
}
