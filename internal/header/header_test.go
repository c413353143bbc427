package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryHeaderRoundTrip(t *testing.T) {
	var maxKeys uint64 = 2_000
	var redundant uint16 = 3
	var blockSize uint32 = 4096

	h := NewPrimaryHeader(&maxKeys, &redundant, &blockSize)
	encoded := h.AsBytes()
	require.Len(t, encoded, HeaderSizeInBytes)

	decoded, err := PrimaryHeaderFromBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestPrimaryHeaderDefaults(t *testing.T) {
	h := NewPrimaryHeader(nil, nil, nil)
	assert.Equal(t, DefaultMaxKeys, h.MaxKeys)
	assert.Equal(t, DefaultRedundantBlocks, h.RedundantBlocks)
	assert.Equal(t, uint32(PageSize()), h.BlockSize)
}

func TestPrimaryHeaderFromBytesRejectsShortInput(t *testing.T) {
	_, err := PrimaryHeaderFromBytes(make([]byte, 10))
	require.Error(t, err)
}

func TestInvertedHeaderRoundTrip(t *testing.T) {
	var maxKeys uint64 = 24_000_000
	var redundant uint16 = 5
	var blockSize uint32 = 4096
	var maxIndexKeyLen uint32 = 4

	h := NewInvertedHeader(&maxKeys, &redundant, &blockSize, &maxIndexKeyLen)
	encoded := h.AsBytes()
	require.Len(t, encoded, HeaderSizeInBytes)

	decoded, err := InvertedHeaderFromBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestInvertedHeaderDefaultMaxKeysScalesWithKeyLen(t *testing.T) {
	var keyLen uint32 = 4
	h := NewInvertedHeader(nil, nil, nil, &keyLen)
	assert.Equal(t, DefaultMaxKeys*uint64(keyLen), h.MaxKeys)
}

func TestDerivedGeometry(t *testing.T) {
	var maxKeys uint64 = 100
	var redundant uint16 = 1
	var blockSize uint32 = 64 // items_per_index_block = 8

	h := NewPrimaryHeader(&maxKeys, &redundant, &blockSize)

	assert.Equal(t, uint64(8), h.ItemsPerIndexBlock())
	// ceil(100/8) + 1 = 13 + 1 = 14
	assert.Equal(t, uint64(14), h.NumberOfIndexBlocks())
	assert.Equal(t, uint64(64), h.NetBlockSize())
	assert.Equal(t, uint64(100)+64*14, h.KeyValuesStartPoint())
}

func TestIndexOffsetInNthBlockOutOfBounds(t *testing.T) {
	h := NewPrimaryHeader(nil, nil, nil)
	initial := h.IndexOffset([]byte("some-key"))

	_, err := h.IndexOffsetInNthBlock(initial, h.NumberOfIndexBlocks())
	require.Error(t, err)
}

func TestIndexOffsetIsWithinFirstBlock(t *testing.T) {
	h := NewPrimaryHeader(nil, nil, nil)
	offset := h.IndexOffset([]byte("scdb"))

	assert.GreaterOrEqual(t, offset, uint64(HeaderSizeInBytes))
	assert.Less(t, offset, uint64(HeaderSizeInBytes)+h.NetBlockSize())
}
