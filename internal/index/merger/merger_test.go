package merger

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/indexer"
	"github.com/meridiansearch/fulltext-platform/internal/index/inverter"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/reader"
	"github.com/meridiansearch/fulltext-platform/internal/index/segment"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

// buildSegment builds a segment from rows with local docids starting at 0.
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

func collect(t *testing.T, r *reader.Reader, term string) []uint32 {
	t.Helper()
	session := pool.New(1 << 16)
	defer session.Release()
	it, err := r.Lookup(term, session)
	require.NoError(t, err)
	if it == nil {
		return nil
	}
	var docs []uint32
	doc, ok, err := it.SeekDoc(0)
	for err == nil && ok {
		docs = append(docs, doc)
		doc, ok, err = it.SeekDoc(doc + 1)
	}
	require.NoError(t, err)
	return docs
}

func TestMergeTwoSegments(t *testing.T) {
	// Scenario: S1 covers docs 0..99, S2 docs 100..199, both with term
	// "hello" in 50 docs each.
	dir := t.TempDir()
	mkRows := func() []string {
		rows := make([]string, 100)
		for i := range rows {
			if i%2 == 0 {
				rows[i] = "hello world"
			} else {
				rows[i] = "other text"
			}
		}
		return rows
	}
	buildSegment(t, dir, "seg_a", codec.OptionFlagAll, mkRows())
	buildSegment(t, dir, "seg_b", codec.OptionFlagAll, mkRows())

	m := New(dir, codec.OptionFlagAll, 1<<16, nil)
	require.NoError(t, m.Merge([]string{"seg_a", "seg_b"}, []uint32{0, 100}, "seg_merged"))

	sr, err := segment.OpenReader(dir, "seg_merged", codec.OptionFlagAll)
	require.NoError(t, err)
	meta, ok, err := sr.TermMeta([]byte("hello"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(100), meta.DocFreq)
	assert.Equal(t, uint32(200), sr.DocCount())
	require.NoError(t, sr.Close())

	r, err := reader.Open(dir, []string{"seg_merged"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	docs := collect(t, r, "hello")
	require.Len(t, docs, 100)
	for i := 1; i < len(docs); i++ {
		assert.Less(t, docs[i-1], docs[i])
	}
	assert.Equal(t, uint32(0), docs[0])
	assert.Equal(t, uint32(198), docs[99])
}

func TestMergePreservesDisjointTerms(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_a", codec.OptionFlagAll, []string{"apple banana"})
	buildSegment(t, dir, "seg_b", codec.OptionFlagAll, []string{"banana cherry"})

	m := New(dir, codec.OptionFlagAll, 1<<16, nil)
	require.NoError(t, m.Merge([]string{"seg_a", "seg_b"}, []uint32{0, 1}, "seg_m"))

	r, err := reader.Open(dir, []string{"seg_m"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []uint32{0}, collect(t, r, "apple"))
	assert.Equal(t, []uint32{0, 1}, collect(t, r, "banana"))
	assert.Equal(t, []uint32{1}, collect(t, r, "cherry"))
	assert.Nil(t, collect(t, r, "durian"))
}

func TestMergeRejectsFlagMismatch(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_pos", codec.HasTF|codec.HasPosition, []string{"a"})
	buildSegment(t, dir, "seg_nopos", codec.HasTF, []string{"a"})

	m := New(dir, codec.HasTF|codec.HasPosition, 1<<16, nil)
	err := m.Merge([]string{"seg_pos", "seg_nopos"}, []uint32{0, 1}, "seg_bad")
	require.ErrorIs(t, err, errors.ErrFormatMismatch)

	// No partial output left behind.
	_, statErr := os.Stat(filepath.Join(dir, "seg_bad"+segment.DictSuffix))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMergeRejectsOverlappingRanges(t *testing.T) {
	dir := t.TempDir()
	buildSegment(t, dir, "seg_a", codec.OptionFlagAll, []string{"a", "b"})
	buildSegment(t, dir, "seg_b", codec.OptionFlagAll, []string{"c", "d"})

	m := New(dir, codec.OptionFlagAll, 1<<16, nil)
	err := m.Merge([]string{"seg_a", "seg_b"}, []uint32{0, 1}, "seg_bad")
	require.ErrorIs(t, err, errors.ErrDocIDOverlap)
}

func TestMergeManySegmentsDeterministic(t *testing.T) {
	dir := t.TempDir()
	var names []string
	var bases []uint32
	for s := 0; s < 4; s++ {
		rows := []string{
			fmt.Sprintf("shared uniq%d", s),
			fmt.Sprintf("shared other%d", s),
		}
		base := fmt.Sprintf("seg_%d", s)
		buildSegment(t, dir, base, codec.OptionFlagAll, rows)
		names = append(names, base)
		bases = append(bases, uint32(s*2))
	}
	m := New(dir, codec.OptionFlagAll, 1<<16, nil)
	require.NoError(t, m.Merge(names, bases, "seg_all"))

	r, err := reader.Open(dir, []string{"seg_all"}, []uint32{0}, codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7}, collect(t, r, "shared"))
	for s := 0; s < 4; s++ {
		assert.Equal(t, []uint32{uint32(s * 2)}, collect(t, r, fmt.Sprintf("uniq%d", s)))
	}
}

func TestMergeReleasesPools(t *testing.T) {
	before := pool.GlobalUsage().Snapshot()
	dir := t.TempDir()
	buildSegment(t, dir, "seg_a", codec.OptionFlagAll, []string{"a b c"})
	buildSegment(t, dir, "seg_b", codec.OptionFlagAll, []string{"b c d"})
	m := New(dir, codec.OptionFlagAll, 1<<16, nil)
	require.NoError(t, m.Merge([]string{"seg_a", "seg_b"}, []uint32{0, 1}, "seg_m"))
	after := pool.GlobalUsage().Snapshot()
	assert.Equal(t, before.ReservedBytes, after.ReservedBytes)
	assert.Equal(t, before.LiveBytes, after.LiveBytes)
}
