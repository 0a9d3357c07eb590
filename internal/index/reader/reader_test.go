package reader

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/indexer"
	"github.com/meridiansearch/fulltext-platform/internal/index/inverter"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

func buildSegment(t *testing.T, dir, base string, flag codec.OptionFlag, rows []string) {
	t.Helper()
	mi := indexer.NewMemoryIndexer(indexer.Options{Flag: flag, PoolChunkSize: 1 << 16})
	defer mi.Release()
	inv := inverter.New(mi, 1<<16)
	defer inv.Release()
	inv.InvertColumn(rows, 0, uint32(len(rows)), 0)
	inv.Sort()
	require.NoError(t, inv.Commit(inverter.InMemory()))
	mi.AddDocCount(uint32(len(rows)))
	require.NoError(t, mi.Dump(dir, base))
}

// gather drains an iterator into docid -> positions.
func gather(t *testing.T, it *PostingIterator) map[uint32][]uint32 {
	t.Helper()
	out := map[uint32][]uint32{}
	doc, ok, err := it.SeekDoc(0)
	for err == nil && ok {
		var positions []uint32
		for {
			p, more, perr := it.NextPosition()
			require.NoError(t, perr)
			if !more {
				break
			}
			positions = append(positions, p)
		}
		out[doc] = positions
		doc, ok, err = it.SeekDoc(doc + 1)
	}
	require.NoError(t, err)
	return out
}

func TestLookupRoundTrip(t *testing.T) {
	// Build -> commit -> dump -> open -> lookup must reproduce the batch.
	dir := t.TempDir()
	rows := []string{
		"the quick brown fox",
		"the lazy dog",
		"quick quick slow",
	}
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, rows)

	r, err := Open(dir, []string{"seg_0"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()

	session := pool.New(1 << 16)
	defer session.Release()

	it, err := r.Lookup("quick", session)
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, map[uint32][]uint32{
		0: {1},
		2: {0, 1},
	}, gather(t, it))

	it, err = r.Lookup("the", session)
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, map[uint32][]uint32{
		0: {0},
		1: {0},
	}, gather(t, it))

	it, err = r.Lookup("missing", session)
	require.NoError(t, err)
	assert.Nil(t, it)
}

func TestLookupAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, []string{"x y"})
	buildSegment(t, dir, "seg_1", codec.OptionFlagAll, []string{"y z"})

	r, err := Open(dir, []string{"seg_0", "seg_1"}, []uint32{0, 1}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()

	session := pool.New(1 << 16)
	defer session.Release()

	it, err := r.Lookup("y", session)
	require.NoError(t, err)
	require.NotNil(t, it)
	assert.Equal(t, map[uint32][]uint32{0: {1}, 1: {0}}, gather(t, it))
}

func TestIteratorCurrentTF(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, []string{"w w w", "w"})

	r, err := Open(dir, []string{"seg_0"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	session := pool.New(1 << 16)
	defer session.Release()

	it, err := r.Lookup("w", session)
	require.NoError(t, err)
	require.NotNil(t, it)

	doc, ok, err := it.SeekDoc(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(0), doc)
	assert.Equal(t, uint32(3), it.CurrentTF())

	doc, ok, err = it.SeekDoc(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), doc)
	assert.Equal(t, uint32(1), it.CurrentTF())
}

func TestSeekDocSkipsForward(t *testing.T) {
	// Enough docs to span many blocks so the skip list is exercised.
	dir := t.TempDir()
	const docs = 5 * codec.BlockSize
	rows := make([]string, docs)
	for i := range rows {
		rows[i] = "common"
	}
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, rows)

	r, err := Open(dir, []string{"seg_0"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	session := pool.New(1 << 20)
	defer session.Release()

	it, err := r.Lookup("common", session)
	require.NoError(t, err)
	require.NotNil(t, it)

	// Jump straight into the last block.
	target := uint32(docs - 10)
	doc, ok, err := it.SeekDoc(target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, target, doc)
	assert.Equal(t, target, it.CurrentDoc())

	// Monotone continuation to exhaustion.
	for d := target + 1; d < docs; d++ {
		doc, ok, err = it.SeekDoc(d)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, d, doc)
	}
	_, ok, err = it.SeekDoc(uint32(docs))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, codec.InvalidDocID, it.CurrentDoc())
}

func TestSeekDocSameTargetStays(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, []string{"a", "a", "a"})

	r, err := Open(dir, []string{"seg_0"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	session := pool.New(1 << 16)
	defer session.Release()

	it, err := r.Lookup("a", session)
	require.NoError(t, err)
	doc, ok, err := it.SeekDoc(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), doc)

	// Seeking a target at or below the current doc keeps the position.
	doc, ok, err = it.SeekDoc(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), doc)
}

func TestLookupPostingsGathersAllSegments(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, []string{"q"})
	buildSegment(t, dir, "seg_1", codec.OptionFlagAll, []string{"q"})
	buildSegment(t, dir, "seg_2", codec.OptionFlagAll, []string{"other"})

	r, err := Open(dir, []string{"seg_0", "seg_1", "seg_2"}, []uint32{0, 1, 2}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	session := pool.New(1 << 16)
	defer session.Release()

	postings, err := r.LookupPostings("q", session)
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, uint32(0), postings[0].BaseDocID)
	assert.Equal(t, uint32(1), postings[1].BaseDocID)

	it, err := NewPostingIterator(codec.OptionFlagAll, postings, session)
	require.NoError(t, err)
	assert.Equal(t, map[uint32][]uint32{0: {0}, 1: {0}}, gather(t, it))
}

func TestOpenPropagatesFlagMismatch(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_0", codec.HasTF, []string{"a"})
	_, err := Open(dir, []string{"seg_0"}, []uint32{0}, codec.OptionFlagAll)
	require.ErrorIs(t, err, errors.ErrFormatMismatch)
}

func TestLargeRoundTripManyTerms(t *testing.T) {
	dir := t.TempDir()
	const docs = 200
	rows := make([]string, docs)
	for i := range rows {
		rows[i] = fmt.Sprintf("common term%d extra%d", i%7, i)
	}
	buildSegment(t, dir, "seg_0", codec.OptionFlagAll, rows)

	r, err := Open(dir, []string{"seg_0"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	session := pool.New(1 << 20)
	defer session.Release()

	it, err := r.Lookup("common", session)
	require.NoError(t, err)
	got := gather(t, it)
	require.Len(t, got, docs)

	for k := 0; k < 7; k++ {
		it, err := r.Lookup(fmt.Sprintf("term%d", k), session)
		require.NoError(t, err)
		require.NotNil(t, it)
		want := 0
		for i := 0; i < docs; i++ {
			if i%7 == k {
				want++
			}
		}
		assert.Len(t, gather(t, it), want)
	}
}
