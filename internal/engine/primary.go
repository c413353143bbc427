// Package engine implements the primary store engine: set/get/delete/
// clear/compact over the open-addressed bucket index described by a
// primary header, backed by a buffer pool.
package engine

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sopherapps/scdb/internal/buffers"
	"github.com/sopherapps/scdb/internal/entries"
	"github.com/sopherapps/scdb/internal/errs"
	"github.com/sopherapps/scdb/internal/header"
)

// slotLiveEntry pairs an index slot with the address and raw bytes of the
// entry it currently points at.
type slotLiveEntry struct {
	slotAddr  uint64
	entryAddr uint64
	raw       []byte
}

// PrimaryStore backs Store.Set/Get/Delete/Clear/Compact.
type PrimaryStore struct {
	Pool   *buffers.BufferPool
	Header *header.PrimaryHeader

	// Now returns the current time; overridable in tests to exercise TTL
	// expiry deterministically.
	Now func() time.Time
}

// NewPrimaryStore wraps an already-opened pool and its decoded header.
func NewPrimaryStore(pool *buffers.BufferPool, hdr *header.PrimaryHeader) *PrimaryStore {
	return &PrimaryStore{Pool: pool, Header: hdr, Now: time.Now}
}

func (s *PrimaryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Set inserts or updates key's value, returning the file address the new
// entry was written at (the façade uses this to index the entry in the
// inverted index without a second lookup). ttl == 0 means the entry never
// expires.
func (s *PrimaryStore) Set(key, value []byte, ttl uint64) (uint64, error) {
	expiry := uint64(0)
	if ttl != 0 {
		expiry = uint64(s.now().Unix()) + ttl
	}

	initial := s.Header.IndexOffset(key)

	for n := uint64(0); n < s.Header.NumberOfIndexBlocks(); n++ {
		slotAddr, err := s.Header.IndexOffsetInNthBlock(initial, n)
		if err != nil {
			return 0, err
		}

		entryAddrBytes, err := s.Pool.ReadIndex(slotAddr)
		if err != nil {
			return 0, err
		}
		entryAddr := binary.BigEndian.Uint64(entryAddrBytes)

		isOffsetForKey := entryAddr == 0
		if !isOffsetForKey {
			isOffsetForKey, err = s.Pool.AddrBelongsToKey(entryAddr, key)
			if err != nil {
				return 0, err
			}
		}

		if isOffsetForKey {
			kv := entries.NewKeyValueEntry(key, value, expiry)
			newAddr, err := s.Pool.Append(kv.AsBytes())
			if err != nil {
				return 0, err
			}

			newAddrBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(newAddrBytes, newAddr)
			if err := s.Pool.UpdateIndex(slotAddr, newAddrBytes); err != nil {
				return 0, err
			}
			return newAddr, nil
		}
	}

	return 0, fmt.Errorf("%w: collision saturated for key %q, all %d blocks probed", errs.Other, key, s.Header.NumberOfIndexBlocks())
}

// Get returns key's value, or nil if absent, deleted or expired.
func (s *PrimaryStore) Get(key []byte) ([]byte, error) {
	entryAddr, err := s.findLiveEntryAddr(key)
	if err != nil || entryAddr == 0 {
		return nil, err
	}

	_, entry, err := s.readEntry(entryAddr)
	if err != nil {
		return nil, err
	}
	if entry.IsStale(s.now()) {
		return nil, nil
	}

	return entry.Value, nil
}

// findLiveEntryAddr probes the blocks for key, returning the KV address
// recorded for it (0 if none is indexed for key at all). It does not
// itself evaluate staleness of the entry found.
func (s *PrimaryStore) findLiveEntryAddr(key []byte) (uint64, error) {
	initial := s.Header.IndexOffset(key)

	for n := uint64(0); n < s.Header.NumberOfIndexBlocks(); n++ {
		slotAddr, err := s.Header.IndexOffsetInNthBlock(initial, n)
		if err != nil {
			return 0, err
		}

		entryAddrBytes, err := s.Pool.ReadIndex(slotAddr)
		if err != nil {
			return 0, err
		}

		if isZero(entryAddrBytes) {
			continue
		}
		entryAddr := binary.BigEndian.Uint64(entryAddrBytes)

		belongs, err := s.Pool.AddrBelongsToKey(entryAddr, key)
		if err != nil {
			return 0, err
		}
		if belongs {
			return entryAddr, nil
		}
	}

	return 0, nil
}

// Delete marks key's entry (if any) as deleted. Missing keys are not an
// error.
func (s *PrimaryStore) Delete(key []byte) error {
	initial := s.Header.IndexOffset(key)

	for n := uint64(0); n < s.Header.NumberOfIndexBlocks(); n++ {
		slotAddr, err := s.Header.IndexOffsetInNthBlock(initial, n)
		if err != nil {
			return err
		}

		entryAddrBytes, err := s.Pool.ReadIndex(slotAddr)
		if err != nil {
			return err
		}
		if isZero(entryAddrBytes) {
			continue
		}
		entryAddr := binary.BigEndian.Uint64(entryAddrBytes)

		deleted, err := s.Pool.TryDeleteKvEntry(entryAddr, key)
		if err != nil {
			return err
		}
		if deleted {
			return nil
		}
	}

	return nil
}

// Clear truncates the file back to header + empty index.
func (s *PrimaryStore) Clear() error {
	return s.Pool.ClearFile(s.Header.AsBytes(), s.Header.CreateEmptyIndexBlocksBytes())
}

// Compact rewrites the file keeping only live (non-deleted, non-expired)
// entries, reassigning their addresses contiguously from
// KeyValuesStartPoint and rewriting the slots that referenced them.
func (s *PrimaryStore) Compact() error {
	totalSlots := s.Header.NumberOfIndexBlocks() * s.Header.ItemsPerIndexBlock()
	now := s.now()

	var live []slotLiveEntry
	for i := uint64(0); i < totalSlots; i++ {
		slotAddr := uint64(header.HeaderSizeInBytes) + i*8

		entryAddrBytes, err := s.Pool.ReadIndex(slotAddr)
		if err != nil {
			return err
		}
		if isZero(entryAddrBytes) {
			continue
		}
		entryAddr := binary.BigEndian.Uint64(entryAddrBytes)

		raw, entry, err := s.readEntry(entryAddr)
		if err != nil {
			return err
		}
		if entry.IsDeleted || entry.IsExpired(now) {
			continue
		}

		live = append(live, slotLiveEntry{slotAddr: slotAddr, entryAddr: entryAddr, raw: raw})
	}

	indexBytes := make([]byte, s.Header.NetBlockSize()*s.Header.NumberOfIndexBlocks())
	entriesOut := make([][]byte, 0, len(live))
	newAddr := s.Header.KeyValuesStartPoint()

	for _, le := range live {
		slotOffset := le.slotAddr - uint64(header.HeaderSizeInBytes)
		binary.BigEndian.PutUint64(indexBytes[slotOffset:slotOffset+8], newAddr)

		entriesOut = append(entriesOut, le.raw)
		newAddr += uint64(len(le.raw))
	}

	plan := buffers.CompactionPlan{
		HeaderBytes: s.Header.AsBytes(),
		IndexBytes:  indexBytes,
		Entries:     entriesOut,
	}
	return s.Pool.CompactFile(plan)
}

// readEntry reads the full wire encoding of the KV entry at addr, returning
// both its raw bytes and its decoded form.
func (s *PrimaryStore) readEntry(addr uint64) ([]byte, *entries.KeyValueEntry, error) {
	sizeBytes, err := s.Pool.ReadAt(addr, 4)
	if err != nil {
		return nil, nil, err
	}
	size := binary.BigEndian.Uint32(sizeBytes)

	raw, err := s.Pool.ReadAt(addr, int(size))
	if err != nil {
		return nil, nil, err
	}

	entry, err := entries.KeyValueEntryFromBytes(raw, 0)
	if err != nil {
		return nil, nil, err
	}

	return raw, entry, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
