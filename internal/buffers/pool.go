package buffers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	natomic "github.com/natefinch/atomic"

	"github.com/sopherapps/scdb/internal/errs"
	"github.com/sopherapps/scdb/pkg/fs"
)

// DefaultPoolCapacity is the number of Buffers a pool caches when no
// explicit capacity is given.
const DefaultPoolCapacity uint64 = 5

// HeaderSizeInBytes mirrors header.HeaderSizeInBytes; duplicated as a
// plain constant here to avoid a dependency from buffers on header (header
// already depends on nothing in buffers, but the pool only needs the one
// number, not the whole package).
const HeaderSizeInBytes = 100

// BufferPool is a bounded FIFO cache of Buffers over a single file,
// shared by both the primary store engine and the inverted index engine.
type BufferPool struct {
	fsys       fs.FS
	capacity   uint64
	bufferSize uint64

	fileMu   sync.Mutex
	file     fs.File
	filePath string

	buffersMu sync.Mutex
	buffers   []*Buffer

	fileSizeMu sync.Mutex
	fileSize   uint64
}

// NewBufferPool opens (creating if absent) the file at filePath. When the
// file does not yet exist, it is initialized with headerBytes followed by
// indexBytes (a freshly created header + empty index region); when it
// already exists, headerBytes/indexBytes are ignored and the existing
// contents are used as-is.
func NewBufferPool(fsys fs.FS, filePath string, capacity *uint64, bufferSize *uint64, headerBytes, indexBytes []byte) (*BufferPool, error) {
	if fsys == nil {
		panic("fsys is nil")
	}

	cap := DefaultPoolCapacity
	if capacity != nil {
		cap = *capacity
	}

	bs := bufferSize
	if bs == nil {
		panic("bufferSize is nil")
	}

	exists, err := fsys.Exists(filePath)
	if err != nil {
		return nil, fmt.Errorf("checking %q: %w", filePath, err)
	}

	file, err := fsys.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", filePath, err)
	}

	if !exists {
		if _, err := file.Write(headerBytes); err != nil {
			return nil, fmt.Errorf("writing header to %q: %w", filePath, err)
		}
		if _, err := file.Write(indexBytes); err != nil {
			return nil, fmt.Errorf("writing index region to %q: %w", filePath, err)
		}
	}

	size, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("seeking %q: %w", filePath, err)
	}

	return &BufferPool{
		fsys:       fsys,
		capacity:   cap,
		bufferSize: *bs,
		file:       file,
		filePath:   filePath,
		fileSize:   uint64(size),
	}, nil
}

// lockAll acquires file, buffers and file_size in that fixed order, ruling
// out deadlock between operations on the same pool.
func (bp *BufferPool) lockAll() {
	bp.fileMu.Lock()
	bp.buffersMu.Lock()
	bp.fileSizeMu.Lock()
}

func (bp *BufferPool) unlockAll() {
	bp.fileSizeMu.Unlock()
	bp.buffersMu.Unlock()
	bp.fileMu.Unlock()
}

// File exposes the underlying handle for callers that need to read the
// header directly (offset 0, HeaderSizeInBytes bytes) right after
// construction.
func (bp *BufferPool) File() fs.File { return bp.file }

// FileSize returns the current file size.
func (bp *BufferPool) FileSize() uint64 {
	bp.fileSizeMu.Lock()
	defer bp.fileSizeMu.Unlock()
	return bp.fileSize
}

// Append writes data at the end of the file and returns the offset it was
// written at.
func (bp *BufferPool) Append(data []byte) (uint64, error) {
	bp.lockAll()
	defer bp.unlockAll()

	for _, buf := range bp.buffers {
		if buf.CanAppend(bp.fileSize) {
			addr := buf.Append(data)
			bp.fileSize = buf.RightOffset
			if err := bp.writeAt(addr, data); err != nil {
				return 0, err
			}
			return addr, nil
		}
	}

	addr := bp.fileSize
	if err := bp.writeAt(addr, data); err != nil {
		return 0, err
	}
	bp.fileSize = addr + uint64(len(data))
	return addr, nil
}

// Replace overwrites len(data) bytes at addr, in the cache (if covered)
// and always on disk.
func (bp *BufferPool) Replace(addr uint64, data []byte) error {
	bp.lockAll()
	defer bp.unlockAll()

	return bp.replaceLocked(addr, data)
}

func (bp *BufferPool) replaceLocked(addr uint64, data []byte) error {
	for _, buf := range bp.buffers {
		if buf.Contains(addr) {
			if err := buf.Replace(addr, data); err != nil {
				return err
			}
			return bp.writeAt(addr, data)
		}
	}

	return bp.writeAt(addr, data)
}

// ReadIndex reads the 8-byte slot at addr. addr must be within the index
// region (below keyValuesStartPoint, enforced by callers via header
// geometry) and at or above HeaderSizeInBytes.
func (bp *BufferPool) ReadIndex(addr uint64) ([]byte, error) {
	if addr < HeaderSizeInBytes {
		return nil, fmt.Errorf("%w: index address %d is within the header", errs.InvalidInput, addr)
	}

	return bp.ReadAt(addr, 8)
}

// UpdateIndex overwrites the 8-byte slot at addr.
func (bp *BufferPool) UpdateIndex(addr uint64, data []byte) error {
	if addr < HeaderSizeInBytes {
		return fmt.Errorf("%w: index address %d is within the header", errs.InvalidInput, addr)
	}

	return bp.Replace(addr, data)
}

// ReadAt returns size bytes starting at addr, from cache when possible.
func (bp *BufferPool) ReadAt(addr uint64, size int) ([]byte, error) {
	bp.buffersMu.Lock()
	for _, buf := range bp.buffers {
		if buf.Contains(addr) {
			data, err := buf.ReadAt(addr, size)
			bp.buffersMu.Unlock()
			return data, err
		}
	}
	bp.buffersMu.Unlock()

	buf, err := bp.loadBuffer(addr)
	if err != nil {
		return nil, err
	}

	return buf.ReadAt(addr, size)
}

// GetValue decodes the KV entry at kvAddress and returns its value if the
// key there matches key.
func (bp *BufferPool) GetValue(kvAddress uint64, key []byte) (*Value, error) {
	buf, err := bp.bufferCovering(kvAddress)
	if err != nil {
		return nil, err
	}

	return buf.GetValue(kvAddress, key, time.Now())
}

// AddrBelongsToKey reports whether the key at kvAddress matches key.
func (bp *BufferPool) AddrBelongsToKey(kvAddress uint64, key []byte) (bool, error) {
	if kvAddress == 0 {
		return false, nil
	}

	buf, err := bp.bufferCovering(kvAddress)
	if err != nil {
		return false, err
	}

	return buf.AddrBelongsToKey(kvAddress, key)
}

// TryDeleteKvEntry flips is_deleted on the entry at kvAddress if its key
// matches key, persisting the flip through the normal replace path so both
// cache and disk stay consistent.
func (bp *BufferPool) TryDeleteKvEntry(kvAddress uint64, key []byte) (bool, error) {
	matches, err := bp.AddrBelongsToKey(kvAddress, key)
	if err != nil || !matches {
		return false, err
	}

	isDeletedOffset := kvAddress + 8 + uint64(len(key))
	bp.lockAll()
	defer bp.unlockAll()

	if err := bp.replaceLocked(isDeletedOffset, []byte{1}); err != nil {
		return false, err
	}

	return true, nil
}

// bufferCovering returns the cached buffer covering addr, loading and
// caching one if needed.
func (bp *BufferPool) bufferCovering(addr uint64) (*Buffer, error) {
	bp.buffersMu.Lock()
	for _, buf := range bp.buffers {
		if buf.Contains(addr) {
			bp.buffersMu.Unlock()
			return buf, nil
		}
	}
	bp.buffersMu.Unlock()

	return bp.loadBuffer(addr)
}

// loadBuffer reads up to bufferSize bytes starting at addr from the file,
// caches the result (evicting the oldest entry if at capacity), and
// returns it.
func (bp *BufferPool) loadBuffer(addr uint64) (*Buffer, error) {
	bp.fileMu.Lock()
	data, err := bp.readAtLocked(addr, bp.bufferSize)
	bp.fileMu.Unlock()
	if err != nil {
		return nil, err
	}

	buf := NewBuffer(addr, data, bp.bufferSize)

	bp.buffersMu.Lock()
	if uint64(len(bp.buffers)) >= bp.capacity {
		bp.buffers = bp.buffers[1:]
	}
	bp.buffers = append(bp.buffers, buf)
	bp.buffersMu.Unlock()

	return buf, nil
}

// readAtLocked reads up to size bytes at addr. The destination is always
// pre-sized to its full intended length before reading, then trimmed to
// however many bytes were actually available (e.g. near EOF) -- io.ReadFull
// only fills what len() allows, so allocating with the wrong (zero) length
// would silently read nothing.
func (bp *BufferPool) readAtLocked(addr uint64, size uint64) ([]byte, error) {
	if _, err := bp.file.Seek(int64(addr), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking %q: %w", bp.filePath, err)
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(bp.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("reading %q: %w", bp.filePath, err)
	}

	return buf[:n], nil
}

func (bp *BufferPool) writeAt(addr uint64, data []byte) error {
	if _, err := bp.file.Seek(int64(addr), io.SeekStart); err != nil {
		return fmt.Errorf("seeking %q: %w", bp.filePath, err)
	}
	if _, err := bp.file.Write(data); err != nil {
		return fmt.Errorf("writing %q: %w", bp.filePath, err)
	}
	return nil
}

// ClearFile truncates the file back to header + empty index region and
// drops all cached buffers.
func (bp *BufferPool) ClearFile(headerBytes, indexBytes []byte) error {
	bp.lockAll()
	defer bp.unlockAll()

	if _, err := bp.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking %q: %w", bp.filePath, err)
	}
	if _, err := bp.file.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header to %q: %w", bp.filePath, err)
	}
	if _, err := bp.file.Write(indexBytes); err != nil {
		return fmt.Errorf("writing index region to %q: %w", bp.filePath, err)
	}

	size := uint64(len(headerBytes) + len(indexBytes))
	if err := truncate(bp.file, size); err != nil {
		return err
	}

	bp.buffers = nil
	bp.fileSize = size
	return nil
}

func truncate(f fs.File, size uint64) error {
	type truncater interface{ Truncate(int64) error }
	if t, ok := f.(truncater); ok {
		return t.Truncate(int64(size))
	}
	return nil
}

// CompactionPlan is the complete content of a compacted file: the header
// bytes, the rewritten index region, and the entries to write after it, in
// order. The engine-specific work (choosing live entries, relinking chains,
// computing new addresses) is done by the caller that builds the plan;
// BufferPool only provides the locked, atomic file-swap mechanics.
type CompactionPlan struct {
	HeaderBytes []byte
	IndexBytes  []byte
	Entries     [][]byte // already-relinked/rewritten entry bytes, in final on-disk order
}

// CompactFile replaces the pool's file with one built from plan, using an
// atomic rename so a crash mid-compaction leaves either the old or the new
// file intact, never a half-written one.
func (bp *BufferPool) CompactFile(plan CompactionPlan) error {
	bp.lockAll()
	defer bp.unlockAll()

	dir := filepath.Dir(bp.filePath)
	tmpPath := filepath.Join(dir, "tmp__compact."+filepath.Base(bp.filePath))

	tmpFile, err := bp.fsys.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating compaction file %q: %w", tmpPath, err)
	}

	if _, err := tmpFile.Write(plan.HeaderBytes); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing header to %q: %w", tmpPath, err)
	}
	if _, err := tmpFile.Write(plan.IndexBytes); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing index to %q: %w", tmpPath, err)
	}
	for _, e := range plan.Entries {
		if _, err := tmpFile.Write(e); err != nil {
			_ = tmpFile.Close()
			return fmt.Errorf("writing entry to %q: %w", tmpPath, err)
		}
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("syncing %q: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", tmpPath, err)
	}

	if err := bp.file.Close(); err != nil {
		return fmt.Errorf("closing %q: %w", bp.filePath, err)
	}

	if err := bp.natomicReplaceFile(tmpPath, bp.filePath); err != nil {
		return err
	}

	newFile, err := bp.fsys.OpenFile(bp.filePath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("reopening %q: %w", bp.filePath, err)
	}

	bp.file = newFile
	bp.buffers = nil

	newSize := uint64(len(plan.HeaderBytes) + len(plan.IndexBytes))
	for _, e := range plan.Entries {
		newSize += uint64(len(e))
	}
	bp.fileSize = newSize

	return nil
}

// natomicReplaceFile durably replaces dst with the contents of src, using
// natefinch/atomic's write-temp-then-rename dance rather than a bare
// remove+rename.
func (bp *BufferPool) natomicReplaceFile(src, dst string) error {
	in, err := bp.fsys.Open(src)
	if err != nil {
		return fmt.Errorf("reopening compaction file %q: %w", src, err)
	}
	defer in.Close()

	if err := natomic.WriteFile(dst, in); err != nil {
		return fmt.Errorf("replacing %q: %w", dst, err)
	}

	return bp.fsys.Remove(src)
}

// Close flushes and releases the pool's file handle.
func (bp *BufferPool) Close() error {
	bp.lockAll()
	defer bp.unlockAll()

	if err := bp.file.Sync(); err != nil {
		return fmt.Errorf("syncing %q: %w", bp.filePath, err)
	}

	return bp.file.Close()
}
