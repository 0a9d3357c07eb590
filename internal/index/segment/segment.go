// Package segment reads and writes the on-disk segment triple. A segment is
// an immutable index partition covering a contiguous docid range, stored as
// three co-located files sharing a base name:
//
//	<base>.dict     dictionary header + TermMeta records in term order
//	<base>.pos      concatenated posting block sets
//	<base>.dict.fst FST mapping term bytes to dictionary offsets
package segment

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

const (
	// DictSuffix, PostingSuffix and FSTSuffix name the triple's files.
	DictSuffix    = ".dict"
	PostingSuffix = ".pos"
	FSTSuffix     = ".dict.fst"

	// MagicBytes identifies a valid dictionary file.
	MagicBytes uint32 = 0x4D444958
	// FormatVersion is bumped on incompatible layout changes.
	FormatVersion uint32 = 1
	// HeaderSize is the fixed dictionary header size; TermMeta records
	// start right after it.
	HeaderSize = 32
)

// Header is the dictionary file header. TermCount and DocCount are patched
// in place once writing completes.
type Header struct {
	Magic     uint32
	Version   uint32
	Flag      codec.OptionFlag
	TermCount uint32
	DocCount  uint32
}

func (h Header) appendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, h.Magic)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(h.Flag))
	buf = binary.LittleEndian.AppendUint32(buf, h.TermCount)
	buf = binary.LittleEndian.AppendUint32(buf, h.DocCount)
	for len(buf)%HeaderSize != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("dictionary header truncated at %d bytes: %w", len(b), errors.ErrCorruptSegment)
	}
	h := Header{
		Magic:     binary.LittleEndian.Uint32(b[0:4]),
		Version:   binary.LittleEndian.Uint32(b[4:8]),
		Flag:      codec.OptionFlag(binary.LittleEndian.Uint32(b[8:12])),
		TermCount: binary.LittleEndian.Uint32(b[12:16]),
		DocCount:  binary.LittleEndian.Uint32(b[16:20]),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("bad magic bytes %x: %w", h.Magic, errors.ErrCorruptSegment)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("unsupported segment version %d: %w", h.Version, errors.ErrFormatMismatch)
	}
	return h, nil
}

// ReadFlag returns the option flag a segment's dictionary declares, without
// opening the full triple.
func ReadFlag(dir, base string) (codec.OptionFlag, error) {
	f, err := os.Open(filepath.Join(dir, base+DictSuffix))
	if err != nil {
		return 0, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()
	var buf [HeaderSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return 0, fmt.Errorf("reading dictionary header: %w", err)
	}
	h, err := parseHeader(buf[:])
	if err != nil {
		return 0, fmt.Errorf("segment %s: %w", base, err)
	}
	return h.Flag, nil
}
