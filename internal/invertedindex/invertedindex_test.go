package invertedindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sopherapps/scdb/internal/buffers"
	"github.com/sopherapps/scdb/internal/header"
	"github.com/sopherapps/scdb/pkg/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	blockSize := uint32(64)
	maxKeys := uint64(40)
	redundantBlocks := uint16(1)
	maxIndexKeyLen := uint32(3)
	hdr := header.NewInvertedHeader(&maxKeys, &redundantBlocks, &blockSize, &maxIndexKeyLen)

	dir := t.TempDir()
	bufferSize := uint64(4096)
	pool, err := buffers.NewBufferPool(fs.NewReal(), filepath.Join(dir, "search.iscdb"), nil, &bufferSize, hdr.AsBytes(), hdr.CreateEmptyIndexBlocksBytes())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return NewStore(pool, hdr)
}

func keysOf(results []SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = string(r.Key)
	}
	return out
}

func TestStoreAddAndSearchByPrefix(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add([]byte("hello"), 100, 0))
	require.NoError(t, store.Add([]byte("help"), 200, 0))
	require.NoError(t, store.Add([]byte("world"), 300, 0))

	results, err := store.Search([]byte("hel"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hello", "help"}, keysOf(results))
}

func TestStoreSearchRespectsSkipAndLimit(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add([]byte("aaa1"), 1, 0))
	require.NoError(t, store.Add([]byte("aaa2"), 2, 0))
	require.NoError(t, store.Add([]byte("aaa3"), 3, 0))

	all, err := store.Search([]byte("aaa"), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.Search([]byte("aaa"), 1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStoreRemoveRemovesFromEveryPrefixBucket(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add([]byte("hello"), 100, 0))
	require.NoError(t, store.Add([]byte("help"), 200, 0))
	require.NoError(t, store.Remove([]byte("hello")))

	results, err := store.Search([]byte("hel"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"help"}, keysOf(results))

	results, err = store.Search([]byte("he"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"help"}, keysOf(results))
}

func TestStoreRemoveHeadPromotesSuccessorToRoot(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add([]byte("ant"), 1, 0))
	require.NoError(t, store.Add([]byte("ant2"), 2, 0)) // becomes new root of the "ant" bucket
	require.NoError(t, store.Remove([]byte("ant2")))

	results, err := store.Search([]byte("ant"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ant"}, keysOf(results))

	// root was removed and promoted; adding another entry must still chain
	// correctly off the new root.
	require.NoError(t, store.Add([]byte("ant3"), 3, 0))
	results, err = store.Search([]byte("ant"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ant", "ant3"}, keysOf(results))
}

func TestStoreSearchExcludesExpiredAndDeleted(t *testing.T) {
	store := newTestStore(t)
	base := time.Unix(1_700_000_000, 0)
	store.Now = func() time.Time { return base }

	require.NoError(t, store.Add([]byte("catalog"), 1, 0))
	require.NoError(t, store.Add([]byte("catalyst"), 2, 5))
	require.NoError(t, store.Add([]byte("catch"), 3, 0))
	require.NoError(t, store.Remove([]byte("catch")))

	store.Now = func() time.Time { return base.Add(10 * time.Second) }

	results, err := store.Search([]byte("cat"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"catalog"}, keysOf(results))
}

func TestStoreClear(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add([]byte("foo"), 1, 0))
	require.NoError(t, store.Clear())

	results, err := store.Search([]byte("foo"), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreCompactDropsDeletedAndExpired(t *testing.T) {
	store := newTestStore(t)
	base := time.Unix(1_700_000_000, 0)
	store.Now = func() time.Time { return base }

	require.NoError(t, store.Add([]byte("keep"), 1, 0))
	require.NoError(t, store.Add([]byte("killed"), 2, 0))
	require.NoError(t, store.Add([]byte("expiring"), 3, 5))
	require.NoError(t, store.Remove([]byte("killed")))

	store.Now = func() time.Time { return base.Add(10 * time.Second) }
	require.NoError(t, store.Compact())

	results, err := store.Search([]byte("k"), 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep"}, keysOf(results))

	results, err = store.Search([]byte("e"), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
