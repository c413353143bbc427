package buffers

import (
	"path/filepath"
	"testing"

	"github.com/sopherapps/scdb/internal/entries"
	"github.com/sopherapps/scdb/pkg/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *BufferPool {
	t.Helper()

	dir := t.TempDir()
	headerBytes := make([]byte, 100)
	indexBytes := make([]byte, 64*4)
	bufferSize := uint64(64)

	pool, err := NewBufferPool(fs.NewReal(), filepath.Join(dir, "dump.scdb"), nil, &bufferSize, headerBytes, indexBytes)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return pool
}

func TestBufferPoolAppendThenReadAt(t *testing.T) {
	pool := newTestPool(t)

	entry := entries.NewKeyValueEntry([]byte("foo"), []byte("bar"), 0)
	addr, err := pool.Append(entry.AsBytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(100+64*4), addr)

	got, err := pool.ReadAt(addr, len(entry.AsBytes()))
	require.NoError(t, err)
	assert.Equal(t, entry.AsBytes(), got)
}

func TestBufferPoolGetValueAndTryDelete(t *testing.T) {
	pool := newTestPool(t)

	entry := entries.NewKeyValueEntry([]byte("foo"), []byte("bar"), 0)
	addr, err := pool.Append(entry.AsBytes())
	require.NoError(t, err)

	v, err := pool.GetValue(addr, []byte("foo"))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte("bar"), v.Data)
	assert.False(t, v.IsStale)

	ok, err := pool.TryDeleteKvEntry(addr, []byte("foo"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err = pool.GetValue(addr, []byte("foo"))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.IsStale)
}

func TestBufferPoolUpdateAndReadIndex(t *testing.T) {
	pool := newTestPool(t)

	slotAddr := uint64(100)
	value := make([]byte, 8)
	value[7] = 42

	require.NoError(t, pool.UpdateIndex(slotAddr, value))

	got, err := pool.ReadIndex(slotAddr)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestBufferPoolReadIndexRejectsHeaderAddress(t *testing.T) {
	pool := newTestPool(t)

	_, err := pool.ReadIndex(10)
	require.Error(t, err)
}

func TestBufferPoolClearFile(t *testing.T) {
	pool := newTestPool(t)

	entry := entries.NewKeyValueEntry([]byte("foo"), []byte("bar"), 0)
	_, err := pool.Append(entry.AsBytes())
	require.NoError(t, err)

	headerBytes := make([]byte, 100)
	indexBytes := make([]byte, 64*4)
	require.NoError(t, pool.ClearFile(headerBytes, indexBytes))

	assert.Equal(t, uint64(len(headerBytes)+len(indexBytes)), pool.FileSize())
}

func TestBufferPoolAddrBelongsToKeyFalseForZero(t *testing.T) {
	pool := newTestPool(t)

	ok, err := pool.AddrBelongsToKey(0, []byte("foo"))
	require.NoError(t, err)
	assert.False(t, ok)
}
