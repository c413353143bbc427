package header

import (
	"encoding/binary"
	"fmt"

	"github.com/sopherapps/scdb/internal/errs"
	"github.com/sopherapps/scdb/internal/xhash"
)

// primaryTitle is the 16-byte ASCII title stamped at offset 0 of every
// primary data file.
var primaryTitle = [16]byte{'S', 'c', 'd', 'b', ' ', 'v', 'e', 'r', 's', 'n', ' ', '0', '.', '0', '0', '1'}

// PrimaryHeader is the 100-byte header of a primary (dump.scdb) data file.
type PrimaryHeader struct {
	BlockSize       uint32
	MaxKeys         uint64
	RedundantBlocks uint16

	geometry
}

// NewPrimaryHeader builds a header from optional configuration, applying
// defaults for any nil argument.
func NewPrimaryHeader(maxKeys *uint64, redundantBlocks *uint16, blockSize *uint32) *PrimaryHeader {
	mk := DefaultMaxKeys
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

	return &PrimaryHeader{
		BlockSize:       bs,
		MaxKeys:         mk,
		RedundantBlocks: rb,
		geometry:        computeGeometry(bs, mk, rb),
	}
}

// ItemsPerIndexBlock is the number of 8-byte slots in one index block.
func (h *PrimaryHeader) ItemsPerIndexBlock() uint64 { return h.geometry.ItemsPerIndexBlock }

// NumberOfIndexBlocks is the total count of index blocks (including
// redundant blocks) this header's geometry allocates.
func (h *PrimaryHeader) NumberOfIndexBlocks() uint64 { return h.geometry.NumberOfIndexBlocks }

// NetBlockSize is the byte size of one index block.
func (h *PrimaryHeader) NetBlockSize() uint64 { return h.geometry.NetBlockSize }

// KeyValuesStartPoint is the file offset at which the value region begins.
func (h *PrimaryHeader) KeyValuesStartPoint() uint64 { return h.geometry.ValuesStartPoint }

// IndexOffset returns the offset, in the first index block, of key's bucket.
func (h *PrimaryHeader) IndexOffset(key []byte) uint64 {
	return h.geometry.indexOffset(key, xhash.Hash)
}

// IndexOffsetInNthBlock returns the slot offset in redundant block n given
// the block-0 offset initial.
func (h *PrimaryHeader) IndexOffsetInNthBlock(initial uint64, n uint64) (uint64, error) {
	return h.geometry.indexOffsetInNthBlock(initial, n)
}

// AsBytes encodes the header as a 100-byte big-endian record.
func (h *PrimaryHeader) AsBytes() []byte {
	buf := make([]byte, HeaderSizeInBytes)
	copy(buf[0:16], primaryTitle[:])
	binary.BigEndian.PutUint32(buf[16:20], h.BlockSize)
	binary.BigEndian.PutUint64(buf[20:28], h.MaxKeys)
	binary.BigEndian.PutUint16(buf[28:30], h.RedundantBlocks)
	// buf[30:100] stays zero: reserved padding.
	return buf
}

// PrimaryHeaderFromBytes decodes a 100-byte record produced by AsBytes.
func PrimaryHeaderFromBytes(data []byte) (*PrimaryHeader, error) {
	if len(data) < HeaderSizeInBytes {
		return nil, fmt.Errorf("%w: header needs %d bytes, got %d", errs.InvalidData, HeaderSizeInBytes, len(data))
	}

	blockSize := binary.BigEndian.Uint32(data[16:20])
	if blockSize == 0 {
		return nil, fmt.Errorf("%w: block_size is zero", errs.InvalidData)
	}

	maxKeys := binary.BigEndian.Uint64(data[20:28])
	redundantBlocks := binary.BigEndian.Uint16(data[28:30])

	return &PrimaryHeader{
		BlockSize:       blockSize,
		MaxKeys:         maxKeys,
		RedundantBlocks: redundantBlocks,
		geometry:        computeGeometry(blockSize, maxKeys, redundantBlocks),
	}, nil
}

// CreateEmptyIndexBlocksBytes returns a zeroed byte array the size of the
// whole index region, suitable for initializing a fresh data file.
func (h *PrimaryHeader) CreateEmptyIndexBlocksBytes() []byte {
	return make([]byte, h.geometry.NetBlockSize*h.geometry.NumberOfIndexBlocks)
}
