package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// TermMeta is the per-term dictionary record: how many documents the term
// appears in, its total term frequency, and where its posting block set
// lives in the posting file.
type TermMeta struct {
	DocFreq       uint32
	TotalTF       uint64
	PostingOffset uint64
	PostingLength uint32
}

// TermMetaSize is the fixed on-disk size of a TermMeta record.
const TermMetaSize = 24

// AppendTo appends the little-endian record to buf.
func (m TermMeta) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, m.DocFreq)
	buf = binary.LittleEndian.AppendUint64(buf, m.TotalTF)
	buf = binary.LittleEndian.AppendUint64(buf, m.PostingOffset)
	buf = binary.LittleEndian.AppendUint32(buf, m.PostingLength)
	return buf
}

// ReadTermMeta parses a record from b, which must hold at least TermMetaSize
// bytes.
func ReadTermMeta(b []byte) (TermMeta, error) {
	if len(b) < TermMetaSize {
		return TermMeta{}, fmt.Errorf("term meta record truncated at %d bytes: %w", len(b), errors.ErrCorruptSegment)
	}
	return TermMeta{
		DocFreq:       binary.LittleEndian.Uint32(b[0:4]),
		TotalTF:       binary.LittleEndian.Uint64(b[4:12]),
		PostingOffset: binary.LittleEndian.Uint64(b[12:20]),
		PostingLength: binary.LittleEndian.Uint32(b[20:24]),
	}, nil
}

// TermMetaDumper writes dictionary records sequentially and reports the
// offset each record landed at.
type TermMetaDumper struct {
	w       io.Writer
	off     uint64
	scratch [TermMetaSize]byte
}

// NewTermMetaDumper creates a dumper writing records to w, with offsets
// counted from base (the dictionary header size).
func NewTermMetaDumper(w io.Writer, base uint64) *TermMetaDumper {
	return &TermMetaDumper{w: w, off: base}
}

// Dump writes one record and returns the offset it was written at.
func (d *TermMetaDumper) Dump(m TermMeta) (uint64, error) {
	rec := m.AppendTo(d.scratch[:0])
	if _, err := d.w.Write(rec); err != nil {
		return 0, fmt.Errorf("writing term meta: %w", err)
	}
	off := d.off
	d.off += TermMetaSize
	return off, nil
}

// Offset returns the offset the next record will be written at.
func (d *TermMetaDumper) Offset() uint64 { return d.off }
