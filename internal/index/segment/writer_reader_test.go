package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/pkg/errors"
)

func writeTestSegment(t *testing.T, dir, base string, flag codec.OptionFlag, terms []string) map[string]codec.TermMeta {
	t.Helper()
	w, err := NewWriter(dir, base, flag)
	require.NoError(t, err)
	enc := codec.Encoder{Flag: flag}
	metas := make(map[string]codec.TermMeta, len(terms))
	for i, term := range terms {
		data := &codec.PostingData{
			DocIDs:    []uint32{uint32(i), uint32(i + 10)},
			TFs:       []uint32{1, 1},
			PosLens:   []uint32{1, 1},
			Positions: []uint32{0, 5},
		}
		buf, meta, err := enc.AppendPosting(nil, data)
		require.NoError(t, err)
		off, err := w.WritePosting(buf)
		require.NoError(t, err)
		meta.PostingOffset = off
		require.NoError(t, w.AddTerm([]byte(term), meta))
		metas[term] = meta
	}
	require.NoError(t, w.Close(42))
	return metas
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	terms := []string{"alpha", "bravo", "charlie"}
	metas := writeTestSegment(t, dir, "seg_rt", codec.OptionFlagAll, terms)

	r, err := OpenReader(dir, "seg_rt", codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(42), r.DocCount())
	assert.Equal(t, uint32(3), r.TermCount())
	assert.Equal(t, codec.OptionFlagAll, r.Flag())

	p := pool.New(1 << 16)
	defer p.Release()
	for _, term := range terms {
		meta, ok, err := r.TermMeta([]byte(term))
		require.NoError(t, err)
		require.Truef(t, ok, "term %q missing", term)
		assert.Equal(t, metas[term], meta)

		raw, err := r.PostingBytes(meta, p)
		require.NoError(t, err)
		view, err := codec.NewView(codec.OptionFlagAll, raw)
		require.NoError(t, err)
		decoded, err := codec.DecodeAll(view, p, meta)
		require.NoError(t, err)
		assert.Len(t, decoded.DocIDs, 2)
	}

	_, ok, err := r.TermMeta([]byte("zulu"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTermIteratorAscending(t *testing.T) {
	dir := t.TempDir()
	terms := []string{"ant", "bee", "cat", "dog"}
	metas := writeTestSegment(t, dir, "seg_it", codec.OptionFlagAll, terms)

	r, err := OpenReader(dir, "seg_it", codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()

	it, err := r.Terms()
	require.NoError(t, err)
	var got []string
	for {
		ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, string(it.Term()))
		assert.Equal(t, metas[string(it.Term())], it.Meta())
	}
	assert.Equal(t, terms, got)
}

func TestWriterRejectsOutOfOrderTerms(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "seg_ord", codec.HasTF)
	require.NoError(t, err)
	defer w.Abort()

	enc := codec.Encoder{Flag: codec.HasTF}
	buf, meta, err := enc.AppendPosting(nil, &codec.PostingData{DocIDs: []uint32{1}, TFs: []uint32{1}})
	require.NoError(t, err)
	off, err := w.WritePosting(buf)
	require.NoError(t, err)
	meta.PostingOffset = off
	require.NoError(t, w.AddTerm([]byte("m"), meta))

	err = w.AddTerm([]byte("a"), meta)
	require.ErrorIs(t, err, errors.ErrTermsOutOfOrder)
	err = w.AddTerm([]byte("m"), meta)
	require.ErrorIs(t, err, errors.ErrTermsOutOfOrder)
}

func TestOpenReaderRejectsFlagMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTestSegment(t, dir, "seg_flag", codec.OptionFlagAll, []string{"a"})

	_, err := OpenReader(dir, "seg_flag", codec.HasTF)
	require.ErrorIs(t, err, errors.ErrFormatMismatch)
}

func TestOpenReaderRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	writeTestSegment(t, dir, "seg_magic", codec.OptionFlagAll, []string{"a"})

	dictPath := filepath.Join(dir, "seg_magic"+DictSuffix)
	data, err := os.ReadFile(dictPath)
	require.NoError(t, err)
	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(dictPath, data, 0o644))

	_, err = OpenReader(dir, "seg_magic", codec.OptionFlagAll)
	require.ErrorIs(t, err, errors.ErrCorruptSegment)
}

func TestOpenReaderRejectsTruncatedDict(t *testing.T) {
	dir := t.TempDir()
	writeTestSegment(t, dir, "seg_trunc", codec.OptionFlagAll, []string{"a", "b"})

	dictPath := filepath.Join(dir, "seg_trunc"+DictSuffix)
	data, err := os.ReadFile(dictPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dictPath, data[:HeaderSize+4], 0o644))

	_, err = OpenReader(dir, "seg_trunc", codec.OptionFlagAll)
	require.ErrorIs(t, err, errors.ErrCorruptSegment)
}

func TestWriterAtomicCommit(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "seg_tmp", codec.HasTF)
	require.NoError(t, err)

	// Before Close only .tmp files exist.
	_, statErr := os.Stat(filepath.Join(dir, "seg_tmp"+DictSuffix))
	assert.True(t, os.IsNotExist(statErr))

	enc := codec.Encoder{Flag: codec.HasTF}
	buf, meta, err := enc.AppendPosting(nil, &codec.PostingData{DocIDs: []uint32{0}, TFs: []uint32{1}})
	require.NoError(t, err)
	off, err := w.WritePosting(buf)
	require.NoError(t, err)
	meta.PostingOffset = off
	require.NoError(t, w.AddTerm([]byte("x"), meta))
	require.NoError(t, w.Close(1))

	for _, suffix := range []string{DictSuffix, PostingSuffix, FSTSuffix} {
		_, err := os.Stat(filepath.Join(dir, "seg_tmp"+suffix))
		assert.NoErrorf(t, err, "missing %s", suffix)
		_, err = os.Stat(filepath.Join(dir, "seg_tmp"+suffix+".tmp"))
		assert.Truef(t, os.IsNotExist(err), "tmp file %s left behind", suffix)
	}
}

func TestReadFlag(t *testing.T) {
	dir := t.TempDir()
	writeTestSegment(t, dir, "seg_rf", codec.HasTF|codec.HasPosition, []string{"a"})
	flag, err := ReadFlag(dir, "seg_rf")
	require.NoError(t, err)
	assert.Equal(t, codec.HasTF|codec.HasPosition, flag)
}

func TestManyTermsFSTOffsets(t *testing.T) {
	// FST values must address the right dictionary records for every term.
	dir := t.TempDir()
	var terms []string
	for i := 0; i < 500; i++ {
		terms = append(terms, fmt.Sprintf("term%04d", i))
	}
	metas := writeTestSegment(t, dir, "seg_many", codec.OptionFlagAll, terms)

	r, err := OpenReader(dir, "seg_many", codec.OptionFlagAll)
	require.NoError(t, err)
	defer r.Close()
	for _, term := range terms {
		meta, ok, err := r.TermMeta([]byte(term))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, metas[term], meta)
	}
}
