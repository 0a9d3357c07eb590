package codec

import (
	"encoding/binary"
	"fmt"
)

// PostingData is the flat in-memory form of one term's postings. Positions
// holds every document's positions back to back; PosLens[i] gives document
// i's share. When HasTF and HasPosition are both enabled, TFs[i] must equal
// PosLens[i].
type PostingData struct {
	DocIDs    []uint32
	TFs       []uint32
	PosLens   []uint32
	Positions []uint32
}

// DocFreq returns the number of documents in the posting.
func (d *PostingData) DocFreq() int { return len(d.DocIDs) }

// TotalTF returns the summed term frequency across documents.
func (d *PostingData) TotalTF() uint64 {
	var total uint64
	if len(d.TFs) > 0 {
		for _, tf := range d.TFs {
			total += uint64(tf)
		}
		return total
	}
	for _, n := range d.PosLens {
		total += uint64(n)
	}
	if total == 0 {
		total = uint64(len(d.DocIDs))
	}
	return total
}

// Encoder serialises PostingData under a fixed option flag.
type Encoder struct {
	Flag OptionFlag
}

// AppendPosting appends the encoded posting block set to dst and returns the
// extended buffer plus the TermMeta describing it. The returned meta's
// PostingOffset is zero; the caller records where the bytes land.
func (e Encoder) AppendPosting(dst []byte, d *PostingData) ([]byte, TermMeta, error) {
	if err := e.validate(d); err != nil {
		return dst, TermMeta{}, err
	}
	start := len(dst)
	n := len(d.DocIDs)
	blockCount := (n + BlockSize - 1) / BlockSize

	// Blocks are encoded into their final positions only after the skip
	// section, whose size depends on block offsets. Encode blocks into a
	// tail region first, collecting skip entries, then assemble.
	var blockBuf []byte
	type skipEntry struct {
		lastDoc uint32
		off     uint32
	}
	var skips []skipEntry
	var prevDoc uint32
	posCursor := 0
	for b := 0; b < blockCount; b++ {
		if e.Flag.Has(HasBlockSkip) && b > 0 && b%skipInterval == 0 {
			skips = append(skips, skipEntry{lastDoc: prevDoc, off: uint32(len(blockBuf))})
		}
		lo := b * BlockSize
		hi := min(lo+BlockSize, n)
		blockBuf = binary.AppendUvarint(blockBuf, uint64(hi-lo))
		for i := lo; i < hi; i++ {
			blockBuf = binary.AppendUvarint(blockBuf, uint64(d.DocIDs[i]-prevDoc))
			prevDoc = d.DocIDs[i]
		}
		if e.Flag.Has(HasTF) {
			for i := lo; i < hi; i++ {
				blockBuf = binary.AppendUvarint(blockBuf, uint64(d.TFs[i]))
			}
		}
		if e.Flag.Has(HasPosition) {
			for i := lo; i < hi; i++ {
				cnt := int(d.PosLens[i])
				if !e.Flag.Has(HasTF) {
					blockBuf = binary.AppendUvarint(blockBuf, uint64(cnt))
				}
				var prevPos uint32
				for _, pos := range d.Positions[posCursor : posCursor+cnt] {
					blockBuf = binary.AppendUvarint(blockBuf, uint64(pos-prevPos))
					prevPos = pos
				}
				posCursor += cnt
			}
		}
	}

	dst = binary.AppendUvarint(dst, uint64(blockCount))
	if e.Flag.Has(HasBlockSkip) {
		dst = binary.AppendUvarint(dst, uint64(len(skips)))
		var prevLast, prevOff uint32
		for _, s := range skips {
			dst = binary.AppendUvarint(dst, uint64(s.lastDoc-prevLast))
			dst = binary.AppendUvarint(dst, uint64(s.off-prevOff))
			prevLast, prevOff = s.lastDoc, s.off
		}
	}
	dst = append(dst, blockBuf...)

	meta := TermMeta{
		DocFreq:       uint32(n),
		TotalTF:       d.TotalTF(),
		PostingLength: uint32(len(dst) - start),
	}
	return dst, meta, nil
}

func (e Encoder) validate(d *PostingData) error {
	n := len(d.DocIDs)
	if n == 0 {
		return fmt.Errorf("encoding empty posting")
	}
	for i := 1; i < n; i++ {
		if d.DocIDs[i] <= d.DocIDs[i-1] {
			return fmt.Errorf("doc ids not strictly increasing at %d: %d then %d", i, d.DocIDs[i-1], d.DocIDs[i])
		}
	}
	if e.Flag.Has(HasTF) && len(d.TFs) != n {
		return fmt.Errorf("tf stream has %d entries for %d docs", len(d.TFs), n)
	}
	if e.Flag.Has(HasPosition) {
		if len(d.PosLens) != n {
			return fmt.Errorf("position length stream has %d entries for %d docs", len(d.PosLens), n)
		}
		total := 0
		for i, cnt := range d.PosLens {
			if e.Flag.Has(HasTF) && d.TFs[i] != cnt {
				return fmt.Errorf("doc %d tf %d disagrees with %d positions", d.DocIDs[i], d.TFs[i], cnt)
			}
			total += int(cnt)
		}
		if total != len(d.Positions) {
			return fmt.Errorf("position stream has %d entries, lengths sum to %d", len(d.Positions), total)
		}
	}
	return nil
}
