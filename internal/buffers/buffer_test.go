package buffers

import (
	"testing"
	"time"

	"github.com/sopherapps/scdb/internal/entries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kvBytes(key, value string, expiry uint64) []byte {
	return entries.NewKeyValueEntry([]byte(key), []byte(value), expiry).AsBytes()
}

func TestBufferContains(t *testing.T) {
	buf := NewBuffer(10, make([]byte, 20), 40)

	assert.True(t, buf.Contains(10))
	assert.True(t, buf.Contains(29))
	assert.False(t, buf.Contains(30))
	assert.False(t, buf.Contains(9))
}

func TestBufferCanAppend(t *testing.T) {
	buf := NewBuffer(10, make([]byte, 20), 40)

	assert.True(t, buf.CanAppend(30))
	assert.False(t, buf.CanAppend(29))
	assert.False(t, buf.CanAppend(31))

	full := NewBuffer(0, make([]byte, 40), 40)
	assert.False(t, full.CanAppend(40))
}

func TestBufferReplaceOutOfBounds(t *testing.T) {
	buf := NewBuffer(10, make([]byte, 20), 40)

	require.Error(t, buf.Replace(5, []byte{1}))
	require.Error(t, buf.Replace(29, []byte{1, 2}))
	require.NoError(t, buf.Replace(29, []byte{1}))
}

func TestBufferReadAtOutOfBounds(t *testing.T) {
	data := []byte("0123456789")
	buf := NewBuffer(100, data, 10)

	_, err := buf.ReadAt(99, 1)
	require.Error(t, err)

	_, err = buf.ReadAt(105, 10)
	require.Error(t, err)

	got, err := buf.ReadAt(102, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), got)
}

func TestBufferGetValueMatchAndMismatch(t *testing.T) {
	data := kvBytes("foo", "bar", 0)
	buf := NewBuffer(0, data, uint64(len(data)))

	v, err := buf.GetValue(0, []byte("foo"), time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, []byte("bar"), v.Data)
	assert.False(t, v.IsStale)

	v, err = buf.GetValue(0, []byte("other"), time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBufferGetValueStaleWhenExpired(t *testing.T) {
	data := kvBytes("foo", "bar", 1_000)
	buf := NewBuffer(0, data, uint64(len(data)))

	v, err := buf.GetValue(0, []byte("foo"), time.Unix(2_000, 0))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.IsStale)
}

func TestBufferAddrBelongsToKey(t *testing.T) {
	data := kvBytes("foo", "bar", 0)
	buf := NewBuffer(0, data, uint64(len(data)))

	ok, err := buf.AddrBelongsToKey(0, []byte("foo"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = buf.AddrBelongsToKey(0, []byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBufferTryDeleteKvEntry(t *testing.T) {
	data := kvBytes("foo", "bar", 0)
	buf := NewBuffer(0, data, uint64(len(data)))

	ok, err := buf.TryDeleteKvEntry(0, []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = buf.TryDeleteKvEntry(0, []byte("foo"))
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := buf.GetValue(0, []byte("foo"), time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.True(t, v.IsStale)
}
