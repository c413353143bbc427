// Package header implements the 100-byte on-disk headers shared by the
// primary data file and the inverted-index file, and the bucket-geometry
// arithmetic derived from them.
package header

import (
	"fmt"

	"github.com/sopherapps/scdb/internal/errs"
)

// HeaderSizeInBytes is the fixed size, in bytes, of every header record.
const HeaderSizeInBytes = 100

// Default configuration values, used whenever a constructor argument is
// omitted (nil / zero pointer).
const (
	DefaultMaxKeys         uint64 = 1_000_000
	DefaultRedundantBlocks uint16 = 1
	DefaultMaxIndexKeyLen  uint32 = 3
)

// geometry holds the bucket-index layout derived from block size, max keys
// and redundant blocks. It is shared, byte-for-byte in meaning, between the
// primary header and the inverted-index header; neither leaks this type to
// its callers.
type geometry struct {
	ItemsPerIndexBlock  uint64
	NumberOfIndexBlocks uint64
	NetBlockSize        uint64
	ValuesStartPoint    uint64
}

// computeGeometry derives bucket geometry from the three stored fields that
// determine it. blockSize must be > 0.
func computeGeometry(blockSize uint32, maxKeys uint64, redundantBlocks uint16) geometry {
	itemsPerIndexBlock := uint64(blockSize) / 8
	if itemsPerIndexBlock == 0 {
		itemsPerIndexBlock = 1
	}

	numberOfIndexBlocks := ceilDiv(maxKeys, itemsPerIndexBlock) + uint64(redundantBlocks)
	netBlockSize := itemsPerIndexBlock * 8
	valuesStartPoint := uint64(HeaderSizeInBytes) + netBlockSize*numberOfIndexBlocks

	return geometry{
		ItemsPerIndexBlock:  itemsPerIndexBlock,
		NumberOfIndexBlocks: numberOfIndexBlocks,
		NetBlockSize:        netBlockSize,
		ValuesStartPoint:    valuesStartPoint,
	}
}

func ceilDiv(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}

	return (a + b - 1) / b
}

// indexOffset returns the byte offset, within the first index block, of the
// bucket slot for key.
func (g geometry) indexOffset(key []byte, hash func([]byte, uint64) uint64) uint64 {
	return uint64(HeaderSizeInBytes) + hash(key, g.ItemsPerIndexBlock)*8
}

// indexOffsetInNthBlock returns the slot offset for the n-th redundant
// block, given the offset computed for block 0. It fails if n does not
// address one of the geometry's blocks.
func (g geometry) indexOffsetInNthBlock(initial uint64, n uint64) (uint64, error) {
	if n >= g.NumberOfIndexBlocks {
		return 0, fmt.Errorf("%w: block index %d out of bounds (have %d blocks)", errs.InvalidInput, n, g.NumberOfIndexBlocks)
	}

	return initial + g.NetBlockSize*n, nil
}
