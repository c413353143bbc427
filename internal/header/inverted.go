package header

import (
	"encoding/binary"
	"fmt"

	"github.com/sopherapps/scdb/internal/errs"
	"github.com/sopherapps/scdb/internal/xhash"
)

// invertedTitle is the 16-byte ASCII title stamped at offset 0 of every
// inverted-index file.
var invertedTitle = [16]byte{'S', 'c', 'd', 'b', 'I', 'n', 'd', 'e', 'x', ' ', 'v', '0', '.', '0', '0', '1'}

// InvertedHeader is the 100-byte header of an inverted-index
// (search.iscdb) file.
type InvertedHeader struct {
	BlockSize       uint32
	MaxKeys         uint64
	RedundantBlocks uint16
	MaxIndexKeyLen  uint32

	geometry
}

// NewInvertedHeader builds a header from optional configuration, applying
// defaults for any nil argument. maxKeys defaults to
// DefaultMaxKeys * maxIndexKeyLen, since one inserted key produces one
// bucket-chain node per prefix length.
func NewInvertedHeader(maxKeys *uint64, redundantBlocks *uint16, blockSize *uint32, maxIndexKeyLen *uint32) *InvertedHeader {
	keyLen := DefaultMaxIndexKeyLen
	if maxIndexKeyLen != nil {
		keyLen = *maxIndexKeyLen
	}

	mk := DefaultMaxKeys * uint64(keyLen)
	if maxKeys != nil {
		mk = *maxKeys
	}

	rb := DefaultRedundantBlocks
	if redundantBlocks != nil {
		rb = *redundantBlocks
	}

	bs := uint32(PageSize())
	if blockSize != nil {
		bs = *blockSize
	}

	return &InvertedHeader{
		BlockSize:       bs,
		MaxKeys:         mk,
		RedundantBlocks: rb,
		MaxIndexKeyLen:  keyLen,
		geometry:        computeGeometry(bs, mk, rb),
	}
}

func (h *InvertedHeader) ItemsPerIndexBlock() uint64  { return h.geometry.ItemsPerIndexBlock }
func (h *InvertedHeader) NumberOfIndexBlocks() uint64  { return h.geometry.NumberOfIndexBlocks }
func (h *InvertedHeader) NetBlockSize() uint64         { return h.geometry.NetBlockSize }
func (h *InvertedHeader) KeyValuesStartPoint() uint64  { return h.geometry.ValuesStartPoint }

// IndexOffset returns the offset, in the first index block, of term's
// bucket.
func (h *InvertedHeader) IndexOffset(term []byte) uint64 {
	return h.geometry.indexOffset(term, xhash.Hash)
}

// IndexOffsetInNthBlock returns the slot offset in redundant block n given
// the block-0 offset initial.
func (h *InvertedHeader) IndexOffsetInNthBlock(initial uint64, n uint64) (uint64, error) {
	return h.geometry.indexOffsetInNthBlock(initial, n)
}

// AsBytes encodes the header as a 100-byte big-endian record.
func (h *InvertedHeader) AsBytes() []byte {
	buf := make([]byte, HeaderSizeInBytes)
	copy(buf[0:16], invertedTitle[:])
	binary.BigEndian.PutUint32(buf[16:20], h.BlockSize)
	binary.BigEndian.PutUint64(buf[20:28], h.MaxKeys)
	binary.BigEndian.PutUint16(buf[28:30], h.RedundantBlocks)
	binary.BigEndian.PutUint32(buf[30:34], h.MaxIndexKeyLen)
	// buf[34:100] stays zero: reserved padding.
	return buf
}

// InvertedHeaderFromBytes decodes a 100-byte record produced by AsBytes.
func InvertedHeaderFromBytes(data []byte) (*InvertedHeader, error) {
	if len(data) < HeaderSizeInBytes {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", errs.InvalidData, HeaderSizeInBytes, len(data))
	}

	blockSize := binary.BigEndian.Uint32(data[16:20])
	if blockSize == 0 {
		return nil, fmt.Errorf("%w: block_size is zero", errs.InvalidData)
	}

	maxKeys := binary.BigEndian.Uint64(data[20:28])
	redundantBlocks := binary.BigEndian.Uint16(data[28:30])
	maxIndexKeyLen := binary.BigEndian.Uint32(data[30:34])

	return &InvertedHeader{
		BlockSize:       blockSize,
		MaxKeys:         maxKeys,
		RedundantBlocks: redundantBlocks,
		MaxIndexKeyLen:  maxIndexKeyLen,
		geometry:        computeGeometry(blockSize, maxKeys, redundantBlocks),
	}, nil
}

// CreateEmptyIndexBlocksBytes returns a zeroed byte array the size of the
// whole index region, suitable for initializing a fresh index file.
func (h *InvertedHeader) CreateEmptyIndexBlocksBytes() []byte {
	return make([]byte, h.geometry.NetBlockSize*h.geometry.NumberOfIndexBlocks)
}
