package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/m3dbx/vellum"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// Reader opens a segment triple for term lookups and ordered term iteration.
// The dictionary is held in memory; posting block sets are read on demand.
type Reader struct {
	dir  string
	base string

	header  Header
	dict    []byte
	posFile *os.File
	posSize int64
	fst     *vellum.FST
}

// OpenReader opens the triple under dir/base and validates its header
// against the expected option flag.
func OpenReader(dir, base string, flag codec.OptionFlag) (*Reader, error) {
	r := &Reader{dir: dir, base: base}
	dictPath := filepath.Join(dir, base+DictSuffix)
	dict, err := os.ReadFile(dictPath)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary %s: %w", dictPath, err)
	}
	header, err := parseHeader(dict)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", base, err)
	}
	if header.Flag != flag {
		return nil, fmt.Errorf("segment %s written with flag %#x, expected %#x: %w",
			base, header.Flag, flag, errors.ErrFormatMismatch)
	}
	if wantLen := HeaderSize + int(header.TermCount)*codec.TermMetaSize; len(dict) < wantLen {
		return nil, fmt.Errorf("segment %s dictionary holds %d bytes, header implies %d: %w",
			base, len(dict), wantLen, errors.ErrCorruptSegment)
	}
	r.header = header
	r.dict = dict

	posPath := filepath.Join(dir, base+PostingSuffix)
	if r.posFile, err = os.Open(posPath); err != nil {
		return nil, fmt.Errorf("opening posting file %s: %w", posPath, err)
	}
	st, err := r.posFile.Stat()
	if err != nil {
		r.posFile.Close()
		return nil, fmt.Errorf("stating posting file %s: %w", posPath, err)
	}
	r.posSize = st.Size()

	fstPath := filepath.Join(dir, base+FSTSuffix)
	if r.fst, err = vellum.Open(fstPath); err != nil {
		r.posFile.Close()
		return nil, fmt.Errorf("opening fst %s: %w", fstPath, err)
	}
	return r, nil
}

// Base returns the segment's base name.
func (r *Reader) Base() string { return r.base }

// Flag returns the option flag the segment was written under.
func (r *Reader) Flag() codec.OptionFlag { return r.header.Flag }

// DocCount returns the number of documents the segment covers.
func (r *Reader) DocCount() uint32 { return r.header.DocCount }

// TermCount returns the number of terms in the dictionary.
func (r *Reader) TermCount() uint32 { return r.header.TermCount }

// TermMeta looks the term up through the FST and returns its dictionary
// record. The second return is false when the term is absent.
func (r *Reader) TermMeta(term []byte) (codec.TermMeta, bool, error) {
	dictOff, ok, err := r.fst.Get(term)
	if err != nil {
		return codec.TermMeta{}, false, fmt.Errorf("fst lookup for %q: %w", term, err)
	}
	if !ok {
		return codec.TermMeta{}, false, nil
	}
	meta, err := r.metaAt(dictOff)
	if err != nil {
		return codec.TermMeta{}, false, err
	}
	return meta, true, nil
}

func (r *Reader) metaAt(dictOff uint64) (codec.TermMeta, error) {
	if dictOff < HeaderSize || dictOff+codec.TermMetaSize > uint64(len(r.dict)) {
		return codec.TermMeta{}, fmt.Errorf("dictionary offset %d out of range: %w", dictOff, errors.ErrCorruptSegment)
	}
	meta, err := codec.ReadTermMeta(r.dict[dictOff:])
	if err != nil {
		return codec.TermMeta{}, err
	}
	if meta.PostingOffset+uint64(meta.PostingLength) > uint64(r.posSize) {
		return codec.TermMeta{}, fmt.Errorf("posting offset %d+%d past end of posting file (%d bytes): %w",
			meta.PostingOffset, meta.PostingLength, r.posSize, errors.ErrCorruptSegment)
	}
	return meta, nil
}

// PostingBytes reads the term's raw posting block set into a buffer
// allocated from p.
func (r *Reader) PostingBytes(meta codec.TermMeta, p *pool.Pool) ([]byte, error) {
	buf := p.Allocate(int(meta.PostingLength))
	if _, err := r.posFile.ReadAt(buf, int64(meta.PostingOffset)); err != nil {
		return nil, fmt.Errorf("reading posting block set: %w", err)
	}
	return buf, nil
}

// PostingBytesInto reads the term's raw posting block set into buf, which
// must hold at least PostingLength bytes.
func (r *Reader) PostingBytesInto(meta codec.TermMeta, buf []byte) ([]byte, error) {
	buf = buf[:meta.PostingLength]
	if _, err := r.posFile.ReadAt(buf, int64(meta.PostingOffset)); err != nil {
		return nil, fmt.Errorf("reading posting block set: %w", err)
	}
	return buf, nil
}

// Terms returns an iterator over the segment's terms in ascending order.
func (r *Reader) Terms() (*TermIterator, error) {
	it, err := r.fst.Iterator(nil, nil)
	if err != nil && err != vellum.ErrIteratorDone {
		return nil, fmt.Errorf("iterating fst: %w", err)
	}
	ti := &TermIterator{r: r}
	if err == vellum.ErrIteratorDone {
		ti.done = true
	} else {
		ti.it = it
	}
	return ti, nil
}

// Close releases the posting file and FST mapping.
func (r *Reader) Close() error {
	var firstErr error
	if err := r.posFile.Close(); err != nil {
		firstErr = err
	}
	if err := r.fst.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// TermIterator walks a segment's terms in ascending byte order, exposing
// each term's dictionary record.
type TermIterator struct {
	r    *Reader
	it   *vellum.FSTIterator
	done bool

	term []byte
	meta codec.TermMeta
}

// Next advances the iterator. It returns false when the terms are exhausted.
func (ti *TermIterator) Next() (bool, error) {
	if ti.done {
		return false, nil
	}
	key, dictOff := ti.it.Current()
	meta, err := ti.r.metaAt(dictOff)
	if err != nil {
		return false, err
	}
	ti.term = append(ti.term[:0], key...)
	ti.meta = meta
	if err := ti.it.Next(); err != nil {
		if err != vellum.ErrIteratorDone {
			return false, fmt.Errorf("advancing fst iterator: %w", err)
		}
		ti.done = true
		ti.it = nil
	}
	return true, nil
}

// Term returns the current term. The slice is reused across Next calls.
func (ti *TermIterator) Term() []byte { return ti.term }

// Meta returns the current term's dictionary record.
func (ti *TermIterator) Meta() codec.TermMeta { return ti.meta }
