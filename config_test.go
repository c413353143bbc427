package scdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()

	got, err := LoadConfig(dir, "", Options{})
	require.NoError(t, err)
	assert.Equal(t, Options{}, got)
}

func TestLoadConfigReadsProjectFile(t *testing.T) {
	dir := t.TempDir()
	doc := `{
		// trailing commas and comments are fine, this is JWCC
		"max_keys": 500,
		"block_size": 4096,
		"compaction_interval_seconds": 60,
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(doc), 0o644))

	got, err := LoadConfig(dir, "", Options{})
	require.NoError(t, err)

	assert.Equal(t, uint64(500), got.MaxKeys)
	assert.Equal(t, uint32(4096), got.BlockSize)
	assert.Equal(t, 60*time.Second, got.CompactionInterval)
}

func TestLoadConfigExplicitOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	doc := `{"max_keys": 500, "block_size": 4096}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(doc), 0o644))

	got, err := LoadConfig(dir, "", Options{MaxKeys: 999})
	require.NoError(t, err)

	assert.Equal(t, uint64(999), got.MaxKeys)
	assert.Equal(t, uint32(4096), got.BlockSize)
}

func TestLoadConfigExplicitPathMustExist(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(dir, "does-not-exist.jsonc", Options{})
	require.Error(t, err)
}

func TestLoadConfigExplicitPathRelativeToWorkDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.jsonc"), []byte(`{"max_keys": 7}`), 0o644))

	got, err := LoadConfig(dir, "custom.jsonc", Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.MaxKeys)
}

func TestLoadConfigRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{not json`), 0o644))

	_, err := LoadConfig(dir, "", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
