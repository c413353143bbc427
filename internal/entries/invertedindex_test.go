package entries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var searchEntryByteArray = []byte{
	/* size: 47 */ 0, 0, 0, 47, /* prefix_size: 2 */ 0, 0, 0, 2,
	/* prefix: fo */ 'f', 'o', /* key: foo */ 'f', 'o', 'o', /* is_deleted */ 0,
	/* is_root */ 0, /* expiry: 0 */ 0, 0, 0, 0, 0, 0, 0, 0,
	/* next_offset: 900 */ 0, 0, 0, 0, 0, 0, 3, 132, /* prev_offset: 90 */
	0, 0, 0, 0, 0, 0, 0, 90, /* kv_address: 100 */ 0, 0, 0, 0, 0, 0, 0, 100,
}

func TestInvertedIndexEntryFromBytes(t *testing.T) {
	want := NewInvertedIndexEntry([]byte("fo"), []byte("foo"), 0, false, 100, 900, 90)

	got, err := InvertedIndexEntryFromBytes(searchEntryByteArray, 0)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInvertedIndexEntryFromBytesWithOffset(t *testing.T) {
	want := NewInvertedIndexEntry([]byte("fo"), []byte("foo"), 0, false, 100, 900, 90)

	data := append([]byte{89, 78}, searchEntryByteArray...)
	got, err := InvertedIndexEntryFromBytes(data, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInvertedIndexEntryFromBytesWithOutOfBoundsOffset(t *testing.T) {
	data := append([]byte{89, 78}, searchEntryByteArray...)
	_, err := InvertedIndexEntryFromBytes(data, 4)
	require.Error(t, err)
}

func TestInvertedIndexEntryAsBytes(t *testing.T) {
	e := NewInvertedIndexEntry([]byte("fo"), []byte("foo"), 0, false, 100, 900, 90)
	assert.Equal(t, searchEntryByteArray, e.AsBytes())
}

func TestInvertedIndexEntryRootFlagRoundTrips(t *testing.T) {
	e := NewInvertedIndexEntry([]byte("a"), []byte("abc"), 0, true, 1, 0, 0)
	got, err := InvertedIndexEntryFromBytes(e.AsBytes(), 0)
	require.NoError(t, err)
	assert.True(t, got.IsRoot)
	assert.Equal(t, uint64(0), got.PrevOffset)
}
