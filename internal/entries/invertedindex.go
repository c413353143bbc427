package entries

import (
	"encoding/binary"
	"fmt"

	"github.com/sopherapps/scdb/internal/errs"
)

// InvertedIndexEntryMinSizeInBytes is the fixed overhead of an
// inverted-index entry: size(4) + prefix_size(4) + is_deleted(1) +
// is_root(1) + expiry(8) + next_offset(8) + prev_offset(8) + kv_address(8).
const InvertedIndexEntryMinSizeInBytes = 4 + 4 + 1 + 1 + 8 + 8 + 8 + 8

// InvertedIndexEntryPrefixOffset is the byte offset of the prefix field
// within an encoded inverted-index entry.
const InvertedIndexEntryPrefixOffset = 8

// InvertedIndexEntry is one node of a bucket's doubly-linked chain in the
// inverted-index file.
type InvertedIndexEntry struct {
	Size         uint32
	PrefixSize   uint32
	Prefix       []byte
	Key          []byte
	IsDeleted    bool
	IsRoot       bool
	Expiry       uint64
	NextOffset   uint64
	PrevOffset   uint64
	KVAddress    uint64
}

// NewInvertedIndexEntry builds a fresh, non-deleted node linking prefix and
// key to kvAddress, at the given position in its bucket's chain.
func NewInvertedIndexEntry(prefix, key []byte, expiry uint64, isRoot bool, kvAddress, nextOffset, prevOffset uint64) *InvertedIndexEntry {
	keySize := uint32(len(key))
	prefixSize := uint32(len(prefix))
	size := keySize + prefixSize + InvertedIndexEntryMinSizeInBytes

	return &InvertedIndexEntry{
		Size:       size,
		PrefixSize: prefixSize,
		Prefix:     prefix,
		Key:        key,
		IsRoot:     isRoot,
		Expiry:     expiry,
		NextOffset: nextOffset,
		PrevOffset: prevOffset,
		KVAddress:  kvAddress,
	}
}

// AsBytes encodes the entry in its wire format.
func (e *InvertedIndexEntry) AsBytes() []byte {
	buf := make([]byte, e.Size)
	binary.BigEndian.PutUint32(buf[0:4], e.Size)
	binary.BigEndian.PutUint32(buf[4:8], e.PrefixSize)
	copy(buf[8:8+e.PrefixSize], e.Prefix)

	o := 8 + int(e.PrefixSize)
	copy(buf[o:o+len(e.Key)], e.Key)
	o += len(e.Key)

	if e.IsDeleted {
		buf[o] = 1
	}
	if e.IsRoot {
		buf[o+1] = 1
	}
	binary.BigEndian.PutUint64(buf[o+2:o+10], e.Expiry)
	binary.BigEndian.PutUint64(buf[o+10:o+18], e.NextOffset)
	binary.BigEndian.PutUint64(buf[o+18:o+26], e.PrevOffset)
	binary.BigEndian.PutUint64(buf[o+26:o+34], e.KVAddress)

	return buf
}

// InvertedIndexEntryFromBytes decodes an InvertedIndexEntry starting at
// offset within data.
func InvertedIndexEntryFromBytes(data []byte, offset int) (*InvertedIndexEntry, error) {
	dataLen := len(data)

	sizeSlice, err := safeSlice(data, offset, offset+4, dataLen)
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeSlice)

	prefixSizeSlice, err := safeSlice(data, offset+4, offset+8, dataLen)
	if err != nil {
		return nil, err
	}
	prefixSize := binary.BigEndian.Uint32(prefixSizeSlice)

	pSize := int(prefixSize)
	prefix, err := safeSlice(data, offset+8, offset+8+pSize, dataLen)
	if err != nil {
		return nil, err
	}

	if size < prefixSize+InvertedIndexEntryMinSizeInBytes {
		return nil, fmt.Errorf("%w: inverted index entry size %d smaller than its prefix_size+overhead", errs.InvalidData, size)
	}
	kSize := int(size - prefixSize - InvertedIndexEntryMinSizeInBytes)

	key, err := safeSlice(data, offset+8+pSize, offset+8+pSize+kSize, dataLen)
	if err != nil {
		return nil, err
	}

	base := offset + pSize + kSize

	isDeletedSlice, err := safeSlice(data, base+8, base+9, dataLen)
	if err != nil {
		return nil, err
	}
	isDeleted := isDeletedSlice[0] != 0

	isRootSlice, err := safeSlice(data, base+9, base+10, dataLen)
	if err != nil {
		return nil, err
	}
	isRoot := isRootSlice[0] != 0

	expirySlice, err := safeSlice(data, base+10, base+18, dataLen)
	if err != nil {
		return nil, err
	}
	expiry := binary.BigEndian.Uint64(expirySlice)

	nextOffsetSlice, err := safeSlice(data, base+18, base+26, dataLen)
	if err != nil {
		return nil, err
	}
	nextOffset := binary.BigEndian.Uint64(nextOffsetSlice)

	prevOffsetSlice, err := safeSlice(data, base+26, base+34, dataLen)
	if err != nil {
		return nil, err
	}
	prevOffset := binary.BigEndian.Uint64(prevOffsetSlice)

	kvAddressSlice, err := safeSlice(data, base+34, base+42, dataLen)
	if err != nil {
		return nil, err
	}
	kvAddress := binary.BigEndian.Uint64(kvAddressSlice)

	return &InvertedIndexEntry{
		Size:       size,
		PrefixSize: prefixSize,
		Prefix:     prefix,
		Key:        key,
		IsDeleted:  isDeleted,
		IsRoot:     isRoot,
		Expiry:     expiry,
		NextOffset: nextOffset,
		PrevOffset: prevOffset,
		KVAddress:  kvAddress,
	}, nil
}
