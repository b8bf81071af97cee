package store

import (
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Resource profiles understood by buildBadgerOptions.
const (
	ProfileServing = "Safe-Serving"
	ProfileImport  = "Import-Heavy"
	ProfileLowMem  = "Cloud-Run-LowMem"
)

// Config holds the configuration for the badger-backed store.
type Config struct {
	// DataDir is the directory where BadgerDB will store its data.
	DataDir string

	// InMemory enables in-memory mode (useful for testing).
	InMemory bool

	// ReadOnly opens the database without write access.
	ReadOnly bool

	// SyncWrites enables synchronous writes.
	SyncWrites bool

	// Compression enables ZSTD block compression. Record values are always
	// s2-compressed regardless of this setting.
	Compression bool

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64

	// IndexCacheSize is the size of the index cache in bytes.
	IndexCacheSize int64

	// Profile selects a resource profile. Defaults to ProfileServing.
	Profile string
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.DataDir == "" && !c.InMemory {
		return fmt.Errorf("DataDir must be specified when InMemory is false")
	}
	if c.InMemory && c.ReadOnly {
		return fmt.Errorf("ReadOnly cannot be combined with InMemory")
	}
	if c.BlockCacheSize <= 0 {
		return fmt.Errorf("BlockCacheSize must be positive, got %d", c.BlockCacheSize)
	}
	if c.IndexCacheSize <= 0 {
		return fmt.Errorf("IndexCacheSize must be positive, got %d", c.IndexCacheSize)
	}
	switch c.Profile {
	case "", ProfileServing, ProfileImport, ProfileLowMem:
	default:
		return fmt.Errorf("unknown profile %q", c.Profile)
	}
	return nil
}

// DefaultConfig returns a serving configuration rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		BlockCacheSize: 256 << 20, // 256MB
		IndexCacheSize: 64 << 20,  // 64MB
		Compression:    true,
		Profile:        ProfileServing,
	}
}

// InMemoryConfig returns a configuration for tests and throwaway imports.
func InMemoryConfig() *Config {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	return cfg
}

func buildBadgerOptions(cfg *Config) badger.Options {
	if cfg.InMemory {
		opts := badger.DefaultOptions("")
		opts.InMemory = true
		opts.Logger = nil
		return opts
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.DataDir, "badger"))
	opts.Logger = nil
	opts.ReadOnly = cfg.ReadOnly
	opts.SyncWrites = cfg.SyncWrites
	opts.BloomFalsePositive = 0.01

	if cfg.Compression {
		opts.Compression = options.ZSTD
	} else {
		opts.Compression = options.None
	}

	switch cfg.Profile {
	case ProfileLowMem:
		opts.ValueLogFileSize = 32 << 20
		opts.NumCompactors = 2
		opts.NumMemtables = 2
	case ProfileImport:
		opts.ValueLogFileSize = 1 << 30
		opts.NumCompactors = 4
	default:
		opts.ValueLogFileSize = 64 << 20
		// Badger v4 requires at least 2 compactors.
		opts.NumCompactors = 2
	}

	opts.BlockCacheSize = cfg.BlockCacheSize
	opts.IndexCacheSize = cfg.IndexCacheSize
	return opts
}
