// Package scdb is a persistent, hash-indexed key-value store with
// supporting prefix search, modeled on sopherapps' scdb.
package scdb

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sopherapps/scdb/internal/buffers"
	"github.com/sopherapps/scdb/internal/engine"
	"github.com/sopherapps/scdb/internal/header"
	"github.com/sopherapps/scdb/internal/invertedindex"
	"github.com/sopherapps/scdb/pkg/fs"
)

const (
	// PrimaryFileName is the name of the primary key-value data file
	// within a store's directory.
	PrimaryFileName = "dump.scdb"

	// InvertedIndexFileName is the name of the prefix-search index file
	// within a store's directory.
	InvertedIndexFileName = "search.iscdb"

	lockFileName = "store.lock"
)

// Store is the public interface to the key-value store: Set, Get, Delete,
// Search, Clear and Compact.
type Store struct {
	mu sync.Mutex

	primaryPool *buffers.BufferPool
	primary     *engine.PrimaryStore

	invertedPool *buffers.BufferPool
	inverted     *invertedindex.Store

	lock *fs.Lock

	closeCh chan struct{}
	closed  bool
}

// Open creates or opens a store rooted at dirPath, creating the directory
// and its two data files if absent. Only one Store may hold a given dirPath
// open at a time; while another holder has it open, Open fails at once with
// ErrOther.
func Open(dirPath string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	fsys := fs.NewReal()

	if err := fsys.MkdirAll(dirPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %q: %w", dirPath, err)
	}

	lock, err := fs.NewLocker(fsys).TryLock(filepath.Join(dirPath, lockFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: store %q is already open in this or another process: %v", ErrOther, dirPath, err)
	}

	primaryPool, primaryHdr, err := openPrimaryFile(fsys, dirPath, opts)
	if err != nil {
		_ = lock.Close()
		return nil, err
	}

	invertedPool, invertedHdr, err := openInvertedIndexFile(fsys, dirPath, opts)
	if err != nil {
		_ = primaryPool.Close()
		_ = lock.Close()
		return nil, err
	}

	store := &Store{
		primaryPool:  primaryPool,
		primary:      engine.NewPrimaryStore(primaryPool, primaryHdr),
		invertedPool: invertedPool,
		inverted:     invertedindex.NewStore(invertedPool, invertedHdr),
		lock:         lock,
		closeCh:      make(chan struct{}),
	}

	if opts.CompactionInterval > 0 {
		go store.runBackgroundCompaction(opts.CompactionInterval)
	}

	return store, nil
}

func openPrimaryFile(fsys fs.FS, dirPath string, opts Options) (*buffers.BufferPool, *header.PrimaryHeader, error) {
	hdr := header.NewPrimaryHeader(&opts.MaxKeys, &opts.RedundantBlocks, &opts.BlockSize)
	path := filepath.Join(dirPath, PrimaryFileName)

	pool, err := buffers.NewBufferPool(fsys, path, &opts.PoolCapacity, &opts.BufferSize, hdr.AsBytes(), hdr.CreateEmptyIndexBlocksBytes())
	if err != nil {
		return nil, nil, fmt.Errorf("opening %q: %w", path, err)
	}

	actual, err := readPrimaryHeader(pool)
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}

	return pool, actual, nil
}

func readPrimaryHeader(pool *buffers.BufferPool) (*header.PrimaryHeader, error) {
	raw, err := pool.ReadAt(0, header.HeaderSizeInBytes)
	if err != nil {
		return nil, err
	}
	return header.PrimaryHeaderFromBytes(raw)
}

func openInvertedIndexFile(fsys fs.FS, dirPath string, opts Options) (*buffers.BufferPool, *header.InvertedHeader, error) {
	hdr := header.NewInvertedHeader(&opts.MaxKeys, &opts.RedundantBlocks, &opts.BlockSize, &opts.MaxIndexKeyLen)
	path := filepath.Join(dirPath, InvertedIndexFileName)

	pool, err := buffers.NewBufferPool(fsys, path, &opts.PoolCapacity, &opts.BufferSize, hdr.AsBytes(), hdr.CreateEmptyIndexBlocksBytes())
	if err != nil {
		return nil, nil, fmt.Errorf("opening %q: %w", path, err)
	}

	raw, err := pool.ReadAt(0, header.HeaderSizeInBytes)
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}

	actual, err := header.InvertedHeaderFromBytes(raw)
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}

	return pool, actual, nil
}

// Set inserts or updates key's value. ttl == 0 means the entry never
// expires.
func (s *Store) Set(key, value []byte, ttl uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, err := s.primary.Set(key, value, ttl)
	if err != nil {
		return err
	}

	var expiry uint64
	if ttl != 0 {
		expiry = uint64(time.Now().Unix()) + ttl
	}

	// A key that is set again keeps one node per prefix: Add updates the
	// existing nodes' kv_address and expiry in place instead of adding new
	// ones.
	return s.inverted.Add(key, addr, expiry)
}

// Get returns key's value, or nil if absent, deleted or expired.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.primary.Get(key)
}

// Delete removes key, if present. Missing keys are not an error.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.primary.Delete(key); err != nil {
		return err
	}

	// Best-effort: see DESIGN.md "Inverted-index entry on Delete".
	return s.inverted.Remove(key)
}

// SearchResult is one live match returned by Search.
type SearchResult struct {
	Key   []byte
	Value []byte
}

// Search returns up to limit live entries whose key starts with term,
// after skipping the first skip matches. limit <= 0 means unbounded. Only
// prefixes up to Options.MaxIndexKeyLen bytes are indexed, so a term longer
// than that matches nothing.
func (s *Store) Search(term []byte, skip, limit int) ([]SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := s.inverted.Search(term, skip, limit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		value, err := s.primary.Get(c.Key)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		results = append(results, SearchResult{Key: c.Key, Value: value})
	}

	return results, nil
}

// Clear removes every key from the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.primary.Clear(); err != nil {
		return err
	}
	return s.inverted.Clear()
}

// Compact rewrites both data files, dropping deleted and expired entries.
// This is an expensive operation; use it sparingly, or rely on
// Options.CompactionInterval to run it on a schedule.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.primary.Compact(); err != nil {
		return err
	}
	return s.inverted.Compact()
}

// Close releases the store's resources and its path lock. After Close, the
// Store is unusable; idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closeCh)

	var firstErr error
	if err := s.primaryPool.Close(); err != nil {
		firstErr = err
	}
	if err := s.invertedPool.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lock.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// runBackgroundCompaction runs Compact every interval until Close.
func (s *Store) runBackgroundCompaction(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = s.Compact()
		case <-s.closeCh:
			return
		}
	}
}
