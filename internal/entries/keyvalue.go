// Package entries implements the on-disk wire formats for KV entries and
// inverted-index entries: the two variable-length record types appended to
// the value regions of the primary and inverted-index files.
package entries

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sopherapps/scdb/internal/errs"
)

// KeyValueMinSizeInBytes is the fixed overhead of a KV entry: size(4) +
// key_size(4) + is_deleted(1) + expiry(8).
const KeyValueMinSizeInBytes = 4 + 4 + 1 + 8

// OffsetForKeyInKVArray is the byte offset of the key field within an
// encoded KV entry.
const OffsetForKeyInKVArray = 8

// KeyValueEntry is the decoded form of a primary-store value record.
type KeyValueEntry struct {
	Size      uint32
	KeySize   uint32
	Key       []byte
	IsDeleted bool
	Expiry    uint64
	Value     []byte
}

// NewKeyValueEntry builds a fresh, non-deleted entry for key/value, with
// the given absolute expiry (0 meaning "never expires").
func NewKeyValueEntry(key, value []byte, expiry uint64) *KeyValueEntry {
	keySize := uint32(len(key))
	size := keySize + KeyValueMinSizeInBytes + uint32(len(value))

	return &KeyValueEntry{
		Size:    size,
		KeySize: keySize,
		Key:     key,
		Expiry:  expiry,
		Value:   value,
	}
}

// IsExpired reports whether the entry's expiry has passed relative to now.
// expiry == 0 never expires.
func (e *KeyValueEntry) IsExpired(now time.Time) bool {
	return e.Expiry != 0 && e.Expiry < uint64(now.Unix())
}

// IsStale reports whether the entry should be treated as absent: deleted,
// or expired as of now.
func (e *KeyValueEntry) IsStale(now time.Time) bool {
	return e.IsDeleted || e.IsExpired(now)
}

// AsBytes encodes the entry in its wire format.
func (e *KeyValueEntry) AsBytes() []byte {
	buf := make([]byte, e.Size)
	binary.BigEndian.PutUint32(buf[0:4], e.Size)
	binary.BigEndian.PutUint32(buf[4:8], e.KeySize)
	copy(buf[8:8+e.KeySize], e.Key)

	o := 8 + int(e.KeySize)
	if e.IsDeleted {
		buf[o] = 1
	}
	binary.BigEndian.PutUint64(buf[o+1:o+9], e.Expiry)
	copy(buf[o+9:], e.Value)

	return buf
}

// KeyValueEntryFromBytes decodes a KeyValueEntry starting at offset within
// data. data may contain unrelated bytes before offset and after the
// entry's own declared size.
func KeyValueEntryFromBytes(data []byte, offset int) (*KeyValueEntry, error) {
	dataLen := len(data)

	sizeSlice, err := safeSlice(data, offset, offset+4, dataLen)
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeSlice)

	keySizeSlice, err := safeSlice(data, offset+4, offset+8, dataLen)
	if err != nil {
		return nil, err
	}
	keySize := binary.BigEndian.Uint32(keySizeSlice)

	kSize := int(keySize)
	key, err := safeSlice(data, offset+8, offset+8+kSize, dataLen)
	if err != nil {
		return nil, err
	}

	isDeletedSlice, err := safeSlice(data, offset+8+kSize, offset+9+kSize, dataLen)
	if err != nil {
		return nil, err
	}
	isDeleted := isDeletedSlice[0] != 0

	expirySlice, err := safeSlice(data, offset+9+kSize, offset+17+kSize, dataLen)
	if err != nil {
		return nil, err
	}
	expiry := binary.BigEndian.Uint64(expirySlice)

	if size < keySize+KeyValueMinSizeInBytes {
		return nil, fmt.Errorf("%w: kv entry size %d smaller than its key_size+overhead", errs.InvalidData, size)
	}

	valueSize := int(size - keySize - KeyValueMinSizeInBytes)
	value, err := safeSlice(data, offset+17+kSize, offset+17+kSize+valueSize, dataLen)
	if err != nil {
		return nil, err
	}

	return &KeyValueEntry{
		Size:      size,
		KeySize:   keySize,
		Key:       key,
		IsDeleted: isDeleted,
		Expiry:    expiry,
		Value:     value,
	}, nil
}

// safeSlice returns data[start:end], failing with InvalidData instead of
// panicking when the bounds fall outside [0, dataLen].
func safeSlice(data []byte, start, end, dataLen int) ([]byte, error) {
	if start < 0 || end < start || end > dataLen {
		return nil, fmt.Errorf("%w: slice [%d:%d] out of bounds for length %d", errs.InvalidData, start, end, dataLen)
	}

	return data[start:end], nil
}
