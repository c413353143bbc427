package scdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/sopherapps/scdb/pkg/fs"
)

// ConfigFileName is the default project config file name, a JWCC (JSON
// with comments and trailing commas) document.
const ConfigFileName = "scdb.jsonc"

// configFile mirrors Options but with pointer fields, so the JSON decoder
// can distinguish "absent" from "explicitly zero".
type configFile struct {
	MaxKeys                   *uint64 `json:"max_keys,omitempty"`
	RedundantBlocks           *uint16 `json:"redundant_blocks,omitempty"`
	BlockSize                 *uint32 `json:"block_size,omitempty"`
	MaxIndexKeyLen            *uint32 `json:"max_index_key_len,omitempty"`
	PoolCapacity              *uint64 `json:"pool_capacity,omitempty"`
	BufferSize                *uint64 `json:"buffer_size,omitempty"`
	CompactionIntervalSeconds *uint32 `json:"compaction_interval_seconds,omitempty"`
}

// LoadConfig builds Options with the following precedence (highest wins):
//  1. Library defaults (applied later, at Open, by Options.withDefaults)
//  2. The project config file: configPath if non-empty, otherwise
//     workDir/scdb.jsonc if it exists
//  3. overrides, meant to hold explicit constructor/CLI-flag values
//
// A missing default project config file is not an error; an explicitly
// named configPath that doesn't exist is.
func LoadConfig(workDir, configPath string, overrides Options) (Options, error) {
	fsys := fs.NewReal()

	path := configPath
	mustExist := path != ""
	if path == "" {
		path = filepath.Join(workDir, ConfigFileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	cfg := Options{}

	data, err := fsys.ReadFile(path)
	switch {
	case err == nil:
		fileCfg, parseErr := parseConfigFile(data)
		if parseErr != nil {
			return Options{}, fmt.Errorf("%w: parsing %s: %v", ErrInvalidInput, path, parseErr)
		}
		cfg = mergeOptions(cfg, fileCfg)
	case os.IsNotExist(err) && !mustExist:
		// No project config file; defaults and overrides still apply.
	default:
		return Options{}, fmt.Errorf("reading config %q: %w", path, err)
	}

	return mergeOptions(cfg, overrides), nil
}

func parseConfigFile(data []byte) (Options, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Options{}, fmt.Errorf("invalid JWCC: %w", err)
	}

	var raw configFile
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return Options{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var opts Options
	if raw.MaxKeys != nil {
		opts.MaxKeys = *raw.MaxKeys
	}
	if raw.RedundantBlocks != nil {
		opts.RedundantBlocks = *raw.RedundantBlocks
	}
	if raw.BlockSize != nil {
		opts.BlockSize = *raw.BlockSize
	}
	if raw.MaxIndexKeyLen != nil {
		opts.MaxIndexKeyLen = *raw.MaxIndexKeyLen
	}
	if raw.PoolCapacity != nil {
		opts.PoolCapacity = *raw.PoolCapacity
	}
	if raw.BufferSize != nil {
		opts.BufferSize = *raw.BufferSize
	}
	if raw.CompactionIntervalSeconds != nil {
		opts.CompactionInterval = time.Duration(*raw.CompactionIntervalSeconds) * time.Second
	}

	return opts, nil
}

// FormatConfig returns opts as an indented JSON document suitable for
// hand-editing as a JWCC config file.
func FormatConfig(opts Options) (string, error) {
	data, err := json.MarshalIndent(toConfigFile(opts), "", "  ")
	if err != nil {
		return "", fmt.Errorf("formatting config: %w", err)
	}
	return string(data), nil
}

// SaveConfig writes opts to path as a JWCC document, atomically and
// durably: a temp file in the same directory, synced, renamed over path,
// then the directory itself synced.
func SaveConfig(path string, opts Options) error {
	formatted, err := FormatConfig(opts)
	if err != nil {
		return err
	}

	writer := fs.NewAtomicWriter(fs.NewReal())
	if err := writer.WriteWithDefaults(path, strings.NewReader(formatted)); err != nil {
		return fmt.Errorf("saving config %q: %w", path, err)
	}
	return nil
}

func toConfigFile(opts Options) configFile {
	seconds := uint32(opts.CompactionInterval / time.Second)
	return configFile{
		MaxKeys:                   &opts.MaxKeys,
		RedundantBlocks:           &opts.RedundantBlocks,
		BlockSize:                 &opts.BlockSize,
		MaxIndexKeyLen:            &opts.MaxIndexKeyLen,
		PoolCapacity:              &opts.PoolCapacity,
		BufferSize:                &opts.BufferSize,
		CompactionIntervalSeconds: &seconds,
	}
}

// mergeOptions layers overlay atop base: any non-zero overlay field wins.
func mergeOptions(base, overlay Options) Options {
	if overlay.MaxKeys != 0 {
		base.MaxKeys = overlay.MaxKeys
	}
	if overlay.RedundantBlocks != 0 {
		base.RedundantBlocks = overlay.RedundantBlocks
	}
	if overlay.BlockSize != 0 {
		base.BlockSize = overlay.BlockSize
	}
	if overlay.MaxIndexKeyLen != 0 {
		base.MaxIndexKeyLen = overlay.MaxIndexKeyLen
	}
	if overlay.PoolCapacity != 0 {
		base.PoolCapacity = overlay.PoolCapacity
	}
	if overlay.BufferSize != 0 {
		base.BufferSize = overlay.BufferSize
	}
	if overlay.CompactionInterval != 0 {
		base.CompactionInterval = overlay.CompactionInterval
	}
	return base
}
