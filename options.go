package scdb

import (
	"time"

	"github.com/sopherapps/scdb/internal/buffers"
	"github.com/sopherapps/scdb/internal/header"
)

// Options configures a Store. Any zero-valued field is replaced by its
// default at Open; callers normally only set the fields they care about.
type Options struct {
	// MaxKeys bounds how many keys the primary store's index region is
	// sized for. Default: 1,000,000.
	MaxKeys uint64

	// RedundantBlocks is the number of extra index blocks the primary
	// store's open-addressing probes into on collision. Default: 1.
	RedundantBlocks uint16

	// BlockSize is the size, in bytes, of one index block. Default: the OS
	// page size.
	BlockSize uint32

	// MaxIndexKeyLen bounds how many leading bytes of a key are indexed for
	// prefix search. Default: 3.
	MaxIndexKeyLen uint32

	// PoolCapacity is the number of byte-range buffers each of the two
	// buffer pools (primary, inverted index) caches. Default: 5.
	PoolCapacity uint64

	// BufferSize is the size, in bytes, of one cached buffer. Default: the
	// OS page size.
	BufferSize uint64

	// CompactionInterval, when non-zero, runs Compact on a background
	// ticker at this period. Zero disables background compaction; callers
	// may still call Compact explicitly.
	CompactionInterval time.Duration
}

// withDefaults returns a copy of o with every zero field replaced by its
// default value.
func (o Options) withDefaults() Options {
	if o.MaxKeys == 0 {
		o.MaxKeys = header.DefaultMaxKeys
	}
	if o.RedundantBlocks == 0 {
		o.RedundantBlocks = header.DefaultRedundantBlocks
	}
	if o.BlockSize == 0 {
		o.BlockSize = uint32(header.PageSize())
	}
	if o.MaxIndexKeyLen == 0 {
		o.MaxIndexKeyLen = header.DefaultMaxIndexKeyLen
	}
	if o.PoolCapacity == 0 {
		o.PoolCapacity = buffers.DefaultPoolCapacity
	}
	if o.BufferSize == 0 {
		o.BufferSize = uint64(header.PageSize())
	}
	return o
}
