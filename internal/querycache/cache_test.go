package querycache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiansearch/fulltext-platform/internal/index/codec"
	"github.com/meridiansearch/fulltext-platform/internal/index/pool"
	"github.com/meridiansearch/fulltext-platform/internal/index/reader"
)

func TestEncodeDecodePostings(t *testing.T) {
	in := []reader.SegmentPosting{
		{
			BaseDocID: 0,
			Meta:      codec.TermMeta{DocFreq: 2, TotalTF: 3, PostingOffset: 0, PostingLength: 5},
			Data:      []byte{1, 2, 3, 4, 5},
		},
		{
			BaseDocID: 100,
			Meta:      codec.TermMeta{DocFreq: 1, TotalTF: 1, PostingOffset: 64, PostingLength: 2},
			Data:      []byte{9, 8},
		},
	}
	buf := encodePostings(in)

	p := pool.New(1 << 16)
	defer p.Release()
	out, err := decodePostings(buf, p)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.Equal(t, in[i].BaseDocID, out[i].BaseDocID)
		assert.Equal(t, in[i].Meta, out[i].Meta)
		assert.Equal(t, in[i].Data, out[i].Data)
	}
}

func TestEncodeDecodeEmpty(t *testing.T) {
	buf := encodePostings(nil)
	p := pool.New(1 << 16)
	defer p.Release()
	out, err := decodePostings(buf, p)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	in := []reader.SegmentPosting{{
		BaseDocID: 1,
		Meta:      codec.TermMeta{DocFreq: 1, TotalTF: 1, PostingLength: 4},
		Data:      []byte{1, 2, 3, 4},
	}}
	buf := encodePostings(in)
	p := pool.New(1 << 16)
	defer p.Release()
	for cut := 1; cut < len(buf); cut++ {
		_, err := decodePostings(buf[:cut], p)
		assert.Errorf(t, err, "cut at %d decoded successfully", cut)
	}
}
