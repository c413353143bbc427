// Package buffers implements the bounded byte-range cache (Buffer and
// BufferPool) that sits between the primary/inverted-index engines and
// their backing files.
package buffers

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sopherapps/scdb/internal/entries"
	"github.com/sopherapps/scdb/internal/errs"
)

// Value is what a successful GetValue returns: the decoded payload and
// whether the entry backing it is stale.
type Value struct {
	Data    []byte
	IsStale bool
}

// Buffer is a cached, contiguous byte range of a file.
type Buffer struct {
	Capacity    uint64
	Data        []byte
	LeftOffset  uint64
	RightOffset uint64
}

// NewBuffer wraps data as a buffer starting at leftOffset, with capacity
// being the buffer pool's configured buffer_size (the max span this buffer
// may grow to via Append).
func NewBuffer(leftOffset uint64, data []byte, capacity uint64) *Buffer {
	return &Buffer{
		Capacity:    capacity,
		Data:        data,
		LeftOffset:  leftOffset,
		RightOffset: leftOffset + uint64(len(data)),
	}
}

// Contains reports whether addr falls strictly within [LeftOffset, RightOffset).
func (b *Buffer) Contains(addr uint64) bool {
	return addr >= b.LeftOffset && addr < b.RightOffset
}

// CanAppend reports whether data appended at addr would extend this
// buffer contiguously without exceeding its capacity.
func (b *Buffer) CanAppend(addr uint64) bool {
	return addr == b.RightOffset && (b.RightOffset-b.LeftOffset) < b.Capacity
}

// Append extends the buffer with data, returning the address the data was
// written at. Callers must have already confirmed CanAppend.
func (b *Buffer) Append(data []byte) uint64 {
	addr := b.RightOffset
	b.Data = append(b.Data, data...)
	b.RightOffset += uint64(len(data))
	return addr
}

// Replace overwrites len(data) bytes at addr. Fails with InvalidInput if
// the range [addr, addr+len(data)) is not fully contained in the buffer.
func (b *Buffer) Replace(addr uint64, data []byte) error {
	end := addr + uint64(len(data))
	if !b.Contains(addr) || end > b.RightOffset {
		return fmt.Errorf("%w: replace at %d..%d out of bounds for buffer %d..%d", errs.InvalidInput, addr, end, b.LeftOffset, b.RightOffset)
	}

	start := addr - b.LeftOffset
	copy(b.Data[start:start+uint64(len(data))], data)
	return nil
}

// ReadAt returns a copy of size bytes starting at addr. Fails with
// InvalidInput if the range is not fully contained in the buffer.
func (b *Buffer) ReadAt(addr uint64, size int) ([]byte, error) {
	end := addr + uint64(size)
	if !b.Contains(addr) || end > b.RightOffset {
		return nil, fmt.Errorf("%w: read at %d..%d out of bounds for buffer %d..%d", errs.InvalidInput, addr, end, b.LeftOffset, b.RightOffset)
	}

	start := addr - b.LeftOffset
	out := make([]byte, size)
	copy(out, b.Data[start:start+uint64(size)])
	return out, nil
}

// GetValue decodes the KV entry at addr and returns its value if its key
// matches, or nil if it doesn't. now is used to evaluate staleness.
func (b *Buffer) GetValue(addr uint64, key []byte, now time.Time) (*Value, error) {
	if !b.Contains(addr) {
		return nil, fmt.Errorf("%w: address %d not in buffer %d..%d", errs.InvalidInput, addr, b.LeftOffset, b.RightOffset)
	}

	entry, err := entries.KeyValueEntryFromBytes(b.Data, int(addr-b.LeftOffset))
	if err != nil {
		return nil, err
	}

	if string(entry.Key) != string(key) {
		return nil, nil
	}

	return &Value{Data: entry.Value, IsStale: entry.IsStale(now)}, nil
}

// AddrBelongsToKey checks only the key field at addr, without decoding the
// value, returning true even for stale (deleted/expired) entries so callers
// treat them as occupying their slot until compaction.
func (b *Buffer) AddrBelongsToKey(addr uint64, key []byte) (bool, error) {
	if !b.Contains(addr) {
		return false, fmt.Errorf("%w: address %d not in buffer %d..%d", errs.InvalidInput, addr, b.LeftOffset, b.RightOffset)
	}

	start := addr - b.LeftOffset
	keyStart := start + uint64(entries.OffsetForKeyInKVArray)
	if keyStart > uint64(len(b.Data)) {
		return false, fmt.Errorf("%w: key_size at %d runs past buffer %d..%d", errs.InvalidData, addr, b.LeftOffset, b.RightOffset)
	}
	keyEnd := keyStart + uint64(binary.BigEndian.Uint32(b.Data[start+4:keyStart]))
	if keyEnd > uint64(len(b.Data)) {
		return false, fmt.Errorf("%w: key at %d runs past buffer %d..%d", errs.InvalidData, addr, b.LeftOffset, b.RightOffset)
	}

	return string(b.Data[keyStart:keyEnd]) == string(key), nil
}

// TryDeleteKvEntry flips the is_deleted byte of the entry at addr in place
// if its key matches, returning whether it did.
func (b *Buffer) TryDeleteKvEntry(addr uint64, key []byte) (bool, error) {
	if !b.Contains(addr) {
		return false, fmt.Errorf("%w: address %d not in buffer %d..%d", errs.InvalidInput, addr, b.LeftOffset, b.RightOffset)
	}

	entry, err := entries.KeyValueEntryFromBytes(b.Data, int(addr-b.LeftOffset))
	if err != nil {
		return false, err
	}

	if string(entry.Key) != string(key) {
		return false, nil
	}

	isDeletedOffset := addr - b.LeftOffset + uint64(entries.OffsetForKeyInKVArray) + uint64(entry.KeySize)
	b.Data[isDeletedOffset] = 1
	return true, nil
}
