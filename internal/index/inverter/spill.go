package inverter

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// SpillFile is the random-access surface a spill target must provide. The
// run header is patched in place after the records land, so sequential
// writes alone are not enough.
type SpillFile interface {
	io.Writer
	io.WriterAt
	io.Seeker
}

// Spill-run layout, one run appended per call:
//
//	+-----------+--------+----------+----------------------+
//	| data_size | n_rec  | next_off | n_rec x record       |
//	|   u32     |  u32   |   u64    |                      |
//	+-----------+--------+----------+----------------------+
//
// record:
//
//	+------------+------------+-----+-----------+-------------+
//	| rec_len u16| term bytes |'\0' | doc_id u32| term_pos u32|
//	+------------+------------+-----+-----------+-------------+
//
// data_size and next_off are back-patched once the record bytes are written;
// a reader walks runs by jumping via next_off. Integers are little-endian.

// SpillSortResults appends one sorted run to f and adds the record count to
// *tupleCount. The position table must already be sorted; the pool may be
// reset afterwards, the spill file keeps the run.
func (inv *Inverter) SpillSortResults(f SpillFile, tupleCount *uint64) error {
	dataSizePos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating spill run header: %w", err)
	}
	var scratch [9]byte
	binary.LittleEndian.PutUint32(scratch[0:4], 0) // data_size placeholder
	binary.LittleEndian.PutUint32(scratch[4:8], uint32(len(inv.positions)))
	if _, err := f.Write(scratch[:8]); err != nil {
		return fmt.Errorf("writing spill run header: %w", err)
	}
	nextOffPos := dataSizePos + 8
	binary.LittleEndian.PutUint64(scratch[:8], 0) // next_off placeholder
	if _, err := f.Write(scratch[:8]); err != nil {
		return fmt.Errorf("writing spill run header: %w", err)
	}
	dataStart := dataSizePos + 16

	bw := bufio.NewWriter(f)
	var lastTermNum uint32
	var term []byte
	for _, pi := range inv.positions {
		if lastTermNum != pi.TermNum {
			lastTermNum = pi.TermNum
			term = inv.termFromNum(lastTermNum)
		}
		recLen := uint16(len(term) + 1 + 4 + 4)
		binary.LittleEndian.PutUint16(scratch[0:2], recLen)
		if _, err := bw.Write(scratch[:2]); err != nil {
			return fmt.Errorf("writing spill record: %w", err)
		}
		if _, err := bw.Write(term); err != nil {
			return fmt.Errorf("writing spill record: %w", err)
		}
		scratch[0] = 0
		binary.LittleEndian.PutUint32(scratch[1:5], pi.DocID)
		binary.LittleEndian.PutUint32(scratch[5:9], pi.TermPos)
		if _, err := bw.Write(scratch[:9]); err != nil {
			return fmt.Errorf("writing spill record: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing spill run: %w", err)
	}

	nextOff, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating spill run end: %w", err)
	}
	binary.LittleEndian.PutUint32(scratch[0:4], uint32(nextOff-dataStart))
	if _, err := f.WriteAt(scratch[:4], dataSizePos); err != nil {
		return fmt.Errorf("patching spill run size: %w", err)
	}
	binary.LittleEndian.PutUint64(scratch[:8], uint64(nextOff))
	if _, err := f.WriteAt(scratch[:8], nextOffPos); err != nil {
		return fmt.Errorf("patching spill run chain: %w", err)
	}
	*tupleCount += uint64(len(inv.positions))
	return nil
}
