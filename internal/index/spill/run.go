// Package spill reads the sorted runs an inverter appends to a spill file
// and merges them, k ways, into a single segment triple.
package spill

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// Record is one spilled term occurrence.
type Record struct {
	Term    []byte
	DocID   uint32
	TermPos uint32
}

const runHeaderSize = 16

// RunReader iterates the records of a single run.
type RunReader struct {
	br        *bufio.Reader
	remaining uint32
	dataSize  uint32
	nextOff   uint64

	rec Record
}

// OpenRun positions a reader on the run starting at off.
func OpenRun(f *os.File, off int64) (*RunReader, error) {
	var header [runHeaderSize]byte
	if _, err := f.ReadAt(header[:], off); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("run header at %d truncated: %w", off, errors.ErrCorruptSpill)
		}
		return nil, fmt.Errorf("reading run header at %d: %w", off, err)
	}
	r := &RunReader{
		dataSize:  binary.LittleEndian.Uint32(header[0:4]),
		remaining: binary.LittleEndian.Uint32(header[4:8]),
		nextOff:   binary.LittleEndian.Uint64(header[8:16]),
	}
	if r.nextOff != 0 && r.nextOff < uint64(off)+runHeaderSize {
		return nil, fmt.Errorf("run at %d chains backwards to %d: %w", off, r.nextOff, errors.ErrCorruptSpill)
	}
	section := io.NewSectionReader(f, off+runHeaderSize, int64(r.dataSize))
	r.br = bufio.NewReader(section)
	return r, nil
}

// NextOff returns the file offset of the following run, as recorded in this
// run's header.
func (r *RunReader) NextOff() uint64 { return r.nextOff }

// Remaining returns how many records are left to read.
func (r *RunReader) Remaining() uint32 { return r.remaining }

// Next reads the next record. It returns false with a nil error at the end
// of the run. The record's Term slice is reused across calls.
func (r *RunReader) Next() (bool, error) {
	if r.remaining == 0 {
		return false, nil
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return false, fmt.Errorf("reading spill record length: %w", err)
	}
	recLen := binary.LittleEndian.Uint16(lenBuf[:])
	if recLen < 1+4+4 {
		return false, fmt.Errorf("spill record of %d bytes cannot hold its fixed fields: %w", recLen, errors.ErrCorruptSpill)
	}
	termLen := int(recLen) - 1 - 4 - 4
	if cap(r.rec.Term) < termLen {
		r.rec.Term = make([]byte, termLen)
	}
	r.rec.Term = r.rec.Term[:termLen]
	if _, err := io.ReadFull(r.br, r.rec.Term); err != nil {
		return false, fmt.Errorf("reading spill record term: %w", err)
	}
	var tail [9]byte
	if _, err := io.ReadFull(r.br, tail[:]); err != nil {
		return false, fmt.Errorf("reading spill record tail: %w", err)
	}
	if tail[0] != 0 {
		return false, fmt.Errorf("spill record term not NUL-terminated: %w", errors.ErrCorruptSpill)
	}
	r.rec.DocID = binary.LittleEndian.Uint32(tail[1:5])
	r.rec.TermPos = binary.LittleEndian.Uint32(tail[5:9])
	r.remaining--
	return true, nil
}

// Record returns the record read by the last successful Next.
func (r *RunReader) Record() Record { return r.rec }

// Runs walks the run chain of a spill file from offset 0 and returns a
// reader per run. An empty file yields no runs.
func Runs(f *os.File) ([]*RunReader, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stating spill file: %w", err)
	}
	var runs []*RunReader
	off := int64(0)
	for off < st.Size() {
		r, err := OpenRun(f, off)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
		if r.nextOff == 0 {
			break
		}
		off = int64(r.nextOff)
	}
	return runs, nil
}
