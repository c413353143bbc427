// Package invertedindex implements the inverted-index engine: per-prefix
// doubly-linked chains of bucket nodes supporting add/remove/search/clear
// and compaction, backed by a buffer pool.
package invertedindex

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/sopherapps/scdb/internal/buffers"
	"github.com/sopherapps/scdb/internal/entries"
	"github.com/sopherapps/scdb/internal/header"
)

// Store backs Store.Search and the indexing side-effects of Set/Delete.
type Store struct {
	Pool   *buffers.BufferPool
	Header *header.InvertedHeader

	// Now returns the current time; overridable in tests to exercise TTL
	// expiry deterministically.
	Now func() time.Time
}

// NewStore wraps an already-opened pool and its decoded header.
func NewStore(pool *buffers.BufferPool, hdr *header.InvertedHeader) *Store {
	return &Store{Pool: pool, Header: hdr, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func isExpired(expiry uint64, now time.Time) bool {
	return expiry != 0 && expiry < uint64(now.Unix())
}

func prefixLimit(key []byte, maxIndexKeyLen uint32) int {
	limit := len(key)
	if limit > int(maxIndexKeyLen) {
		limit = int(maxIndexKeyLen)
	}
	return limit
}

// SearchResult is one live match returned by Search.
type SearchResult struct {
	Key       []byte
	KVAddress uint64
}

// Add indexes key under every prefix of its first MaxIndexKeyLen bytes, so
// Search can later find key by any such prefix.
func (s *Store) Add(key []byte, kvAddress uint64, expiry uint64) error {
	limit := prefixLimit(key, s.Header.MaxIndexKeyLen)

	for n := 1; n <= limit; n++ {
		if err := s.addToBucket(key[:n], key, kvAddress, expiry); err != nil {
			return err
		}
	}
	return nil
}

// addToBucket updates the kv_address and expiry in place when prefix's
// bucket chain already holds a live node for key; otherwise it prepends a
// new node to the chain, making it the new root.
func (s *Store) addToBucket(prefix, key []byte, kvAddress, expiry uint64) error {
	slotAddr := s.Header.IndexOffset(prefix)

	rootBytes, err := s.Pool.ReadIndex(slotAddr)
	if err != nil {
		return err
	}
	rootAddr := binary.BigEndian.Uint64(rootBytes)

	for addr := rootAddr; addr != 0; {
		_, entry, err := s.readEntry(addr)
		if err != nil {
			return err
		}
		if !entry.IsDeleted && bytes.Equal(entry.Prefix, prefix) && bytes.Equal(entry.Key, key) {
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, expiry)
			if err := s.Pool.Replace(fieldOffset(addr, entry)+2, b); err != nil {
				return err
			}
			binary.BigEndian.PutUint64(b, kvAddress)
			return s.Pool.Replace(fieldOffset(addr, entry)+26, b)
		}
		addr = entry.NextOffset
	}

	node := entries.NewInvertedIndexEntry(prefix, key, expiry, true, kvAddress, rootAddr, 0)
	newAddr, err := s.Pool.Append(node.AsBytes())
	if err != nil {
		return err
	}

	if rootAddr != 0 {
		_, oldRoot, err := s.readEntry(rootAddr)
		if err != nil {
			return err
		}
		if err := s.patchIsRoot(rootAddr, oldRoot, false); err != nil {
			return err
		}
		if err := s.patchPrevOffset(rootAddr, oldRoot, newAddr); err != nil {
			return err
		}
	}

	newAddrBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(newAddrBytes, newAddr)
	return s.Pool.UpdateIndex(slotAddr, newAddrBytes)
}

// Remove unlinks and marks deleted every node indexing key, across all of
// its prefix buckets.
func (s *Store) Remove(key []byte) error {
	limit := prefixLimit(key, s.Header.MaxIndexKeyLen)

	for n := 1; n <= limit; n++ {
		if err := s.removeFromBucket(key[:n], key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removeFromBucket(prefix, key []byte) error {
	slotAddr := s.Header.IndexOffset(prefix)

	rootBytes, err := s.Pool.ReadIndex(slotAddr)
	if err != nil {
		return err
	}
	addr := binary.BigEndian.Uint64(rootBytes)

	for addr != 0 {
		_, entry, err := s.readEntry(addr)
		if err != nil {
			return err
		}

		if !entry.IsDeleted && bytes.Equal(entry.Prefix, prefix) && bytes.Equal(entry.Key, key) {
			if entry.IsRoot {
				newRootBytes := make([]byte, 8)
				binary.BigEndian.PutUint64(newRootBytes, entry.NextOffset)
				if err := s.Pool.UpdateIndex(slotAddr, newRootBytes); err != nil {
					return err
				}

				if entry.NextOffset != 0 {
					_, next, err := s.readEntry(entry.NextOffset)
					if err != nil {
						return err
					}
					if err := s.patchIsRoot(entry.NextOffset, next, true); err != nil {
						return err
					}
					if err := s.patchPrevOffset(entry.NextOffset, next, 0); err != nil {
						return err
					}
				}
			} else {
				_, prev, err := s.readEntry(entry.PrevOffset)
				if err != nil {
					return err
				}
				if err := s.patchNextOffset(entry.PrevOffset, prev, entry.NextOffset); err != nil {
					return err
				}

				if entry.NextOffset != 0 {
					_, next, err := s.readEntry(entry.NextOffset)
					if err != nil {
						return err
					}
					if err := s.patchPrevOffset(entry.NextOffset, next, entry.PrevOffset); err != nil {
						return err
					}
				}
			}

			return s.patchIsDeleted(addr, entry)
		}

		addr = entry.NextOffset
	}

	return nil
}

// Search walks term's bucket chain, returning live matches after skipping
// skip of them, capped at limit (limit <= 0 means unbounded).
func (s *Store) Search(term []byte, skip, limit int) ([]SearchResult, error) {
	slotAddr := s.Header.IndexOffset(term)

	rootBytes, err := s.Pool.ReadIndex(slotAddr)
	if err != nil {
		return nil, err
	}
	addr := binary.BigEndian.Uint64(rootBytes)

	now := s.now()
	var results []SearchResult
	matched := 0

	for addr != 0 {
		_, entry, err := s.readEntry(addr)
		if err != nil {
			return nil, err
		}

		if !entry.IsDeleted && !isExpired(entry.Expiry, now) && bytes.Equal(entry.Prefix, term) {
			if matched >= skip {
				results = append(results, SearchResult{Key: entry.Key, KVAddress: entry.KVAddress})
				if limit > 0 && len(results) >= limit {
					break
				}
			}
			matched++
		}

		addr = entry.NextOffset
	}

	return results, nil
}

// Clear truncates the file back to header + empty index.
func (s *Store) Clear() error {
	return s.Pool.ClearFile(s.Header.AsBytes(), s.Header.CreateEmptyIndexBlocksBytes())
}

// Compact rewrites the file keeping only live chain nodes, relinking each
// bucket's chain with corrected next/prev offsets and a fresh root.
func (s *Store) Compact() error {
	now := s.now()
	bucketCount := s.Header.ItemsPerIndexBlock()

	chains := make([][]*entries.InvertedIndexEntry, bucketCount)
	for i := uint64(0); i < bucketCount; i++ {
		slotAddr := uint64(header.HeaderSizeInBytes) + i*8

		rootBytes, err := s.Pool.ReadIndex(slotAddr)
		if err != nil {
			return err
		}
		addr := binary.BigEndian.Uint64(rootBytes)

		var kept []*entries.InvertedIndexEntry
		for addr != 0 {
			_, entry, err := s.readEntry(addr)
			if err != nil {
				return err
			}
			next := entry.NextOffset
			if !entry.IsDeleted && !isExpired(entry.Expiry, now) {
				kept = append(kept, entry)
			}
			addr = next
		}
		chains[i] = kept
	}

	indexBytes := make([]byte, s.Header.NetBlockSize()*s.Header.NumberOfIndexBlocks())
	var entriesOut [][]byte
	newAddr := s.Header.KeyValuesStartPoint()

	for i, chain := range chains {
		if len(chain) == 0 {
			continue
		}

		addrs := make([]uint64, len(chain))
		addr := newAddr
		for j, e := range chain {
			addrs[j] = addr
			addr += uint64(e.Size)
		}
		newAddr = addr

		for j, e := range chain {
			var prev, next uint64
			if j > 0 {
				prev = addrs[j-1]
			}
			if j < len(chain)-1 {
				next = addrs[j+1]
			}
			node := entries.NewInvertedIndexEntry(e.Prefix, e.Key, e.Expiry, j == 0, e.KVAddress, next, prev)
			entriesOut = append(entriesOut, node.AsBytes())
		}

		slotOffset := uint64(i) * 8
		binary.BigEndian.PutUint64(indexBytes[slotOffset:slotOffset+8], addrs[0])
	}

	plan := buffers.CompactionPlan{
		HeaderBytes: s.Header.AsBytes(),
		IndexBytes:  indexBytes,
		Entries:     entriesOut,
	}
	return s.Pool.CompactFile(plan)
}

// readEntry reads the full wire encoding of the node at addr.
func (s *Store) readEntry(addr uint64) ([]byte, *entries.InvertedIndexEntry, error) {
	sizeBytes, err := s.Pool.ReadAt(addr, 4)
	if err != nil {
		return nil, nil, err
	}
	size := binary.BigEndian.Uint32(sizeBytes)

	raw, err := s.Pool.ReadAt(addr, int(size))
	if err != nil {
		return nil, nil, err
	}

	entry, err := entries.InvertedIndexEntryFromBytes(raw, 0)
	if err != nil {
		return nil, nil, err
	}

	return raw, entry, nil
}

// fieldOffset returns addr of the is_deleted byte, the anchor every other
// trailing field is measured from.
func fieldOffset(addr uint64, entry *entries.InvertedIndexEntry) uint64 {
	return addr + 8 + uint64(entry.PrefixSize) + uint64(len(entry.Key))
}

func (s *Store) patchIsDeleted(addr uint64, entry *entries.InvertedIndexEntry) error {
	return s.Pool.Replace(fieldOffset(addr, entry), []byte{1})
}

func (s *Store) patchIsRoot(addr uint64, entry *entries.InvertedIndexEntry, isRoot bool) error {
	v := byte(0)
	if isRoot {
		v = 1
	}
	return s.Pool.Replace(fieldOffset(addr, entry)+1, []byte{v})
}

func (s *Store) patchNextOffset(addr uint64, entry *entries.InvertedIndexEntry, next uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, next)
	return s.Pool.Replace(fieldOffset(addr, entry)+10, b)
}

func (s *Store) patchPrevOffset(addr uint64, entry *entries.InvertedIndexEntry, prev uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, prev)
	return s.Pool.Replace(fieldOffset(addr, entry)+18, b)
}
