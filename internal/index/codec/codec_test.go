package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
)

func makePosting(t *testing.T, docs int, positionsPerDoc int) *PostingData {
	t.Helper()
	d := &PostingData{}
	pos := uint32(0)
	for i := 0; i < docs; i++ {
		d.DocIDs = append(d.DocIDs, uint32(i*3)) // gaps between docids
		d.TFs = append(d.TFs, uint32(positionsPerDoc))
		d.PosLens = append(d.PosLens, uint32(positionsPerDoc))
		for j := 0; j < positionsPerDoc; j++ {
			d.Positions = append(d.Positions, pos)
			pos += 2
		}
		pos = 0
	}
	return d
}

func roundTrip(t *testing.T, flag OptionFlag, d *PostingData) *PostingData {
	t.Helper()
	enc := Encoder{Flag: flag}
	buf, meta, err := enc.AppendPosting(nil, d)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(d.DocIDs)), meta.DocFreq)
	assert.Equal(t, uint32(len(buf)), meta.PostingLength)

	view, err := NewView(flag, buf)
	require.NoError(t, err)
	p := pool.New(1 << 16)
	defer p.Release()
	out, err := DecodeAll(view, p, meta)
	require.NoError(t, err)
	return out
}

func TestEncodeDecodeAllStreams(t *testing.T) {
	d := makePosting(t, 300, 3) // spans multiple blocks
	out := roundTrip(t, OptionFlagAll, d)
	assert.Equal(t, d.DocIDs, out.DocIDs)
	assert.Equal(t, d.TFs, out.TFs)
	assert.Equal(t, d.PosLens, out.PosLens)
	assert.Equal(t, d.Positions, out.Positions)
}

func TestEncodeDecodeNoPositions(t *testing.T) {
	d := makePosting(t, 10, 2)
	d.PosLens = nil
	d.Positions = nil
	out := roundTrip(t, HasTF, d)
	assert.Equal(t, d.DocIDs, out.DocIDs)
	assert.Equal(t, d.TFs, out.TFs)
	assert.Empty(t, out.Positions)
}

func TestEncodeDecodeDocsOnly(t *testing.T) {
	d := &PostingData{DocIDs: []uint32{1, 5, 9}}
	out := roundTrip(t, 0, d)
	assert.Equal(t, d.DocIDs, out.DocIDs)
	// Frequencies default to 1 when not stored.
	assert.Equal(t, []uint32{1, 1, 1}, out.TFs)
}

func TestEncodePositionsWithoutTF(t *testing.T) {
	d := makePosting(t, 5, 4)
	d.TFs = nil
	out := roundTrip(t, HasPosition, d)
	assert.Equal(t, d.DocIDs, out.DocIDs)
	assert.Equal(t, d.PosLens, out.PosLens)
	assert.Equal(t, d.Positions, out.Positions)
}

func TestEncodeRejectsUnsortedDocs(t *testing.T) {
	enc := Encoder{Flag: HasTF}
	d := &PostingData{DocIDs: []uint32{5, 5}, TFs: []uint32{1, 1}}
	_, _, err := enc.AppendPosting(nil, d)
	require.Error(t, err)
}

func TestEncodeRejectsEmpty(t *testing.T) {
	enc := Encoder{Flag: 0}
	_, _, err := enc.AppendPosting(nil, &PostingData{})
	require.Error(t, err)
}

func TestEncodeRejectsTFPositionDisagreement(t *testing.T) {
	enc := Encoder{Flag: HasTF | HasPosition}
	d := &PostingData{
		DocIDs:    []uint32{1},
		TFs:       []uint32{2},
		PosLens:   []uint32{1},
		Positions: []uint32{7},
	}
	_, _, err := enc.AppendPosting(nil, d)
	require.Error(t, err)
}

func TestSkipEntriesWritten(t *testing.T) {
	// 10 blocks worth of docs; with a skip stride of 4 that is entries for
	// blocks 4 and 8.
	d := makePosting(t, 10*BlockSize, 1)
	enc := Encoder{Flag: OptionFlagAll}
	buf, meta, err := enc.AppendPosting(nil, d)
	require.NoError(t, err)

	view, err := NewView(OptionFlagAll, buf)
	require.NoError(t, err)
	assert.Equal(t, 10, view.BlockCount())
	require.Len(t, view.skipLastDocs, 2)
	assert.Equal(t, d.DocIDs[4*BlockSize-1], view.skipLastDocs[0])
	assert.Equal(t, d.DocIDs[8*BlockSize-1], view.skipLastDocs[1])

	p := pool.New(1 << 16)
	defer p.Release()
	out, err := DecodeAll(view, p, meta)
	require.NoError(t, err)
	assert.Equal(t, d.DocIDs, out.DocIDs)
}

func TestSeekBlockJumpsForward(t *testing.T) {
	d := makePosting(t, 10*BlockSize, 1)
	enc := Encoder{Flag: OptionFlagAll}
	buf, _, err := enc.AppendPosting(nil, d)
	require.NoError(t, err)
	view, err := NewView(OptionFlagAll, buf)
	require.NoError(t, err)

	cur := view.Cursor()
	target := d.DocIDs[9*BlockSize] // lives in the last block
	cur.SeekBlock(target)
	assert.Equal(t, 8, cur.next)

	var docs, tfs [BlockSize]uint32
	found := false
	for !cur.Done() && !found {
		count, _, err := cur.Next(docs[:], tfs[:])
		require.NoError(t, err)
		for i := 0; i < count; i++ {
			if docs[i] == target {
				found = true
				break
			}
		}
	}
	assert.True(t, found)
}

func TestSeekBlockNeverRewinds(t *testing.T) {
	d := makePosting(t, 10*BlockSize, 1)
	enc := Encoder{Flag: OptionFlagAll}
	buf, _, err := enc.AppendPosting(nil, d)
	require.NoError(t, err)
	view, err := NewView(OptionFlagAll, buf)
	require.NoError(t, err)

	cur := view.Cursor()
	var docs, tfs [BlockSize]uint32
	for i := 0; i < 9; i++ {
		_, _, err := cur.Next(docs[:], tfs[:])
		require.NoError(t, err)
	}
	next := cur.next
	cur.SeekBlock(0)
	assert.Equal(t, next, cur.next)
}

func TestViewRejectsTruncated(t *testing.T) {
	d := makePosting(t, 200, 1)
	enc := Encoder{Flag: OptionFlagAll}
	buf, meta, err := enc.AppendPosting(nil, d)
	require.NoError(t, err)

	view, err := NewView(OptionFlagAll, buf[:len(buf)/2])
	if err == nil {
		p := pool.New(1 << 16)
		defer p.Release()
		_, err = DecodeAll(view, p, meta)
	}
	require.Error(t, err)
}

func TestTermMetaRoundTrip(t *testing.T) {
	m := TermMeta{DocFreq: 42, TotalTF: 99, PostingOffset: 1 << 40, PostingLength: 777}
	buf := m.AppendTo(nil)
	require.Len(t, buf, TermMetaSize)
	got, err := ReadTermMeta(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = ReadTermMeta(buf[:10])
	require.Error(t, err)
}
