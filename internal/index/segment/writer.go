package segment

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/m3dbx/vellum"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// Writer creates a segment triple. Terms must be appended in strictly
// ascending byte order; the FST builder rejects anything else. Writes go to
// .tmp files that are renamed into place on Close.
type Writer struct {
	dir  string
	base string
	flag codec.OptionFlag

	dictFile *os.File
	posFile  *os.File
	fstFile  *os.File
	dictBuf  *bufio.Writer
	posBuf   *bufio.Writer
	fstBuf   *bufio.Writer

	dumper    *codec.TermMetaDumper
	fst       *vellum.Builder
	posOff    uint64
	termCount uint32
	lastTerm  []byte
	closed    bool
}

// NewWriter opens the triple's temp files and writes the placeholder
// dictionary header.
func NewWriter(dir, base string, flag codec.OptionFlag) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	w := &Writer{dir: dir, base: base, flag: flag}
	var err error
	if w.dictFile, err = os.Create(w.tmpPath(DictSuffix)); err != nil {
		return nil, fmt.Errorf("creating dictionary file: %w", err)
	}
	if w.posFile, err = os.Create(w.tmpPath(PostingSuffix)); err != nil {
		w.Abort()
		return nil, fmt.Errorf("creating posting file: %w", err)
	}
	if w.fstFile, err = os.Create(w.tmpPath(FSTSuffix)); err != nil {
		w.Abort()
		return nil, fmt.Errorf("creating fst file: %w", err)
	}
	w.dictBuf = bufio.NewWriter(w.dictFile)
	w.posBuf = bufio.NewWriter(w.posFile)
	w.fstBuf = bufio.NewWriter(w.fstFile)

	header := Header{Magic: MagicBytes, Version: FormatVersion, Flag: flag}
	if _, err := w.dictBuf.Write(header.appendTo(nil)); err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing dictionary header: %w", err)
	}
	w.dumper = codec.NewTermMetaDumper(w.dictBuf, HeaderSize)
	if w.fst, err = vellum.New(w.fstBuf, nil); err != nil {
		w.Abort()
		return nil, fmt.Errorf("creating fst builder: %w", err)
	}
	return w, nil
}

func (w *Writer) tmpPath(suffix string) string {
	return filepath.Join(w.dir, w.base+suffix+".tmp")
}

func (w *Writer) finalPath(suffix string) string {
	return filepath.Join(w.dir, w.base+suffix)
}

// Flag returns the option flag the segment is written under.
func (w *Writer) Flag() codec.OptionFlag { return w.flag }

// WritePosting appends an encoded posting block set to the posting file and
// returns the offset it starts at.
func (w *Writer) WritePosting(data []byte) (uint64, error) {
	off := w.posOff
	if _, err := w.posBuf.Write(data); err != nil {
		return 0, fmt.Errorf("writing posting block set: %w", err)
	}
	w.posOff += uint64(len(data))
	return off, nil
}

// AddTerm writes the term's dictionary record and FST entry. meta must carry
// the posting offset returned by WritePosting.
func (w *Writer) AddTerm(term []byte, meta codec.TermMeta) error {
	if w.lastTerm != nil && bytes.Compare(term, w.lastTerm) <= 0 {
		return fmt.Errorf("term %q after %q: %w", term, w.lastTerm, errors.ErrTermsOutOfOrder)
	}
	dictOff, err := w.dumper.Dump(meta)
	if err != nil {
		return err
	}
	if err := w.fst.Insert(term, dictOff); err != nil {
		return fmt.Errorf("inserting term %q into fst: %w", term, err)
	}
	w.lastTerm = append(w.lastTerm[:0], term...)
	w.termCount++
	return nil
}

// TermCount returns the number of terms appended so far.
func (w *Writer) TermCount() uint32 { return w.termCount }

// Close finalises the FST, patches the dictionary header, syncs, and renames
// the temp files into place.
func (w *Writer) Close(docCount uint32) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.fst.Close(); err != nil {
		w.removeTmp()
		return fmt.Errorf("finalising fst: %w", err)
	}
	for _, buf := range []*bufio.Writer{w.dictBuf, w.posBuf, w.fstBuf} {
		if err := buf.Flush(); err != nil {
			w.removeTmp()
			return fmt.Errorf("flushing segment file: %w", err)
		}
	}
	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		Flag:      w.flag,
		TermCount: w.termCount,
		DocCount:  docCount,
	}
	if _, err := w.dictFile.WriteAt(header.appendTo(nil), 0); err != nil {
		w.removeTmp()
		return fmt.Errorf("updating dictionary header: %w", err)
	}
	for _, f := range []*os.File{w.dictFile, w.posFile, w.fstFile} {
		if err := f.Sync(); err != nil {
			w.removeTmp()
			return fmt.Errorf("syncing segment file: %w", err)
		}
		if err := f.Close(); err != nil {
			w.removeTmp()
			return fmt.Errorf("closing segment file: %w", err)
		}
	}
	for _, suffix := range []string{DictSuffix, PostingSuffix, FSTSuffix} {
		if err := os.Rename(w.tmpPath(suffix), w.finalPath(suffix)); err != nil {
			w.removeTmp()
			return fmt.Errorf("renaming segment file: %w", err)
		}
	}
	return nil
}

// Abort discards the partially written segment.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	for _, f := range []*os.File{w.dictFile, w.posFile, w.fstFile} {
		if f != nil {
			f.Close()
		}
	}
	w.removeTmp()
}

func (w *Writer) removeTmp() {
	for _, suffix := range []string{DictSuffix, PostingSuffix, FSTSuffix} {
		os.Remove(w.tmpPath(suffix))
	}
}
