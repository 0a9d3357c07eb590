package reader

import (
	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
)

type iterState int

const (
	iterFresh iterState = iota
	iterPositioned
	iterExhausted
)

// PostingIterator walks one term's postings across segments in ascending
// docid order. SeekDoc targets must not decrease across calls; the iterator
// only ever moves forward, exploiting the block skip list when present.
//
// All decode scratch is allocated from the session pool the iterator was
// created with. The iterator must not be used after that pool resets.
type PostingIterator struct {
	flag codec.OptionFlag
	segs []SegmentPosting
	p    *pool.Pool

	st  iterState
	seg int // current segment

	view   *codec.View
	cursor codec.BlockCursor

	docs  []uint32 // current block docids (segment-local)
	tfs   []uint32
	count int // docs in the current block
	i     int // position within the block

	posReader   codec.PositionReader
	posConsumed int      // docs whose position lists were consumed in this block
	posLoaded   bool     // current doc's positions are decoded
	positions   []uint32 // current doc's decoded positions
	posIdx      int
	posSkip     []uint32 // scratch for skipped docs' positions
}

func newPostingIterator(flag codec.OptionFlag, segs []SegmentPosting, p *pool.Pool) (*PostingIterator, error) {
	it := &PostingIterator{
		flag: flag,
		segs: segs,
		p:    p,
		docs: pool.Slice[uint32](p, codec.BlockSize),
		tfs:  pool.Slice[uint32](p, codec.BlockSize),
	}
	if err := it.openSegment(0); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *PostingIterator) openSegment(idx int) error {
	if idx >= len(it.segs) {
		it.st = iterExhausted
		return nil
	}
	view, err := codec.NewView(it.flag, it.segs[idx].Data)
	if err != nil {
		return err
	}
	it.seg = idx
	it.view = view
	it.cursor = view.Cursor()
	it.count = 0
	it.i = 0
	it.posConsumed = 0
	return nil
}

// nextBlock decodes the next block of the current segment, advancing to the
// next segment when the current one is drained. Returns false when every
// segment is exhausted.
func (it *PostingIterator) nextBlock() (bool, error) {
	for it.cursor.Done() {
		if it.seg+1 >= len(it.segs) {
			it.st = iterExhausted
			return false, nil
		}
		if err := it.openSegment(it.seg + 1); err != nil {
			return false, err
		}
	}
	count, posOff, err := it.cursor.Next(it.docs, it.tfs)
	if err != nil {
		return false, err
	}
	it.count = count
	it.i = 0
	if it.flag.Has(codec.HasPosition) {
		it.posReader = it.view.Positions(posOff)
		it.posConsumed = 0
	}
	return true, nil
}

// SeekDoc positions the iterator at the first document with id >= target.
// It returns InvalidDocID and false once the postings are exhausted.
func (it *PostingIterator) SeekDoc(target uint32) (uint32, bool, error) {
	if it.st == iterExhausted {
		return codec.InvalidDocID, false, nil
	}
	if it.st == iterPositioned && it.currentDoc() >= target {
		return it.currentDoc(), true, nil
	}
	for {
		if it.st == iterExhausted {
			return codec.InvalidDocID, false, nil
		}
		base := it.segs[it.seg].BaseDocID
		var localTarget uint32
		if target > base {
			localTarget = target - base
		}
		if it.count == 0 {
			// Entering a segment: skip whole blocks when possible.
			it.cursor.SeekBlock(localTarget)
			ok, err := it.nextBlock()
			if err != nil {
				return codec.InvalidDocID, false, err
			}
			if !ok {
				return codec.InvalidDocID, false, nil
			}
			continue
		}
		for it.i < it.count {
			if it.docs[it.i] >= localTarget {
				it.st = iterPositioned
				it.resetDocPositions()
				return it.currentDoc(), true, nil
			}
			it.i++
		}
		// Block drained; skip ahead if the skip list says the target is
		// further out, otherwise decode the next block.
		it.count = 0
		it.cursor.SeekBlock(localTarget)
		ok, err := it.nextBlock()
		if err != nil {
			return codec.InvalidDocID, false, err
		}
		if !ok {
			return codec.InvalidDocID, false, nil
		}
	}
}

func (it *PostingIterator) currentDoc() uint32 {
	return it.docs[it.i] + it.segs[it.seg].BaseDocID
}

// CurrentDoc returns the docid the iterator is positioned at.
func (it *PostingIterator) CurrentDoc() uint32 {
	if it.st != iterPositioned {
		return codec.InvalidDocID
	}
	return it.currentDoc()
}

// CurrentTF returns the positioned document's term frequency. Segments
// without stored frequencies report 1.
func (it *PostingIterator) CurrentTF() uint32 {
	if it.st != iterPositioned {
		return 0
	}
	return it.tfs[it.i]
}

func (it *PostingIterator) resetDocPositions() {
	it.posLoaded = false
	it.positions = nil
	it.posIdx = 0
}

// NextPosition returns the positioned document's next term position. The
// second return is false when the document's positions are exhausted or the
// segment stores none.
func (it *PostingIterator) NextPosition() (uint32, bool, error) {
	if it.st != iterPositioned || !it.flag.Has(codec.HasPosition) {
		return 0, false, nil
	}
	if !it.posLoaded {
		if err := it.loadPositions(); err != nil {
			return 0, false, err
		}
	}
	if it.posIdx >= len(it.positions) {
		return 0, false, nil
	}
	pos := it.positions[it.posIdx]
	it.posIdx++
	return pos, true, nil
}

// loadPositions consumes the block's position substream up to the current
// document and decodes that document's list.
func (it *PostingIterator) loadPositions() error {
	for it.posConsumed < it.i {
		it.posSkip = pool.GrowSlice(it.p, it.posSkip, int(it.tfs[it.posConsumed]))
		if _, err := it.posReader.Doc(it.tfs[it.posConsumed], it.posSkip[:0]); err != nil {
			return err
		}
		it.posConsumed++
	}
	it.positions = pool.GrowSlice(it.p, it.positions, int(it.tfs[it.i]))
	decoded, err := it.posReader.Doc(it.tfs[it.i], it.positions[:0])
	if err != nil {
		return err
	}
	it.positions = decoded
	it.posConsumed++
	it.posLoaded = true
	it.posIdx = 0
	return nil
}
