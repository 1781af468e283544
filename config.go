package shmstore

import (
	"os"
	"strconv"
)

// Config carries every sizing and policy parameter spec.md §6 names.
// Zero-value fields fall back to environment variables, then to a
// built-in default, following gholt-locmap's resolveConfig pattern
// (SHMSTORE_* here in place of that package's VALUELOCMAP_*).
type Config struct {
	// GlobalSizeB is the byte capacity of the single global blob slot.
	GlobalSizeB int64
	// HeapSize is the byte capacity of the content table's variable
	// payload heap.
	HeapSize int64
	// DepTablePow/HashTablePow are log2 slot counts for the dependency
	// table and the content table respectively.
	DepTablePow  uint
	HashTablePow uint

	// LogLevel/SampleRate configure internal/telemetry's logger.
	LogLevel   string
	SampleRate uint64

	// MinimumAvail refuses Init if ShmDir has less free space than this
	// many bytes. Zero disables the check.
	MinimumAvail int64
	// ShmDir is the backing directory for the region's memory-mapped
	// file. Empty selects an anonymous, in-RAM-only backing.
	ShmDir string

	// SinkPath is the relational file persist.Save/persist.Load read
	// and write. Empty disables the persistence sink.
	SinkPath string
	// BuildRevision is recorded in the sink's HEADER row and checked on
	// Load unless the caller passes ignoreBuildRevision.
	BuildRevision string
}

const (
	defaultGlobalSizeB   = 1 << 20 // 1 MiB
	defaultHeapSize      = 64 << 20
	defaultDepTablePow   = 20
	defaultHashTablePow  = 20
	defaultSampleRate    = 100
	defaultLogLevel      = "info"
)

// resolveConfig fills unset fields of c from SHMSTORE_* environment
// variables, then from the package defaults above, mirroring
// gholt-locmap/config.go's resolveConfig: never mutates the caller's
// struct, always returns a fresh one.
func resolveConfig(c *Config) Config {
	cfg := Config{}
	if c != nil {
		cfg = *c
	}

	if cfg.GlobalSizeB <= 0 {
		cfg.GlobalSizeB = envInt64("SHMSTORE_GLOBAL_SIZE_B", defaultGlobalSizeB)
	}
	if cfg.HeapSize <= 0 {
		cfg.HeapSize = envInt64("SHMSTORE_HEAP_SIZE", defaultHeapSize)
	}
	if cfg.DepTablePow == 0 {
		cfg.DepTablePow = envUint("SHMSTORE_DEP_TABLE_POW", defaultDepTablePow)
	}
	if cfg.HashTablePow == 0 {
		cfg.HashTablePow = envUint("SHMSTORE_HASH_TABLE_POW", defaultHashTablePow)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = envString("SHMSTORE_LOG_LEVEL", defaultLogLevel)
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = envUint64("SHMSTORE_SAMPLE_RATE", defaultSampleRate)
	}
	if cfg.MinimumAvail == 0 {
		cfg.MinimumAvail = envInt64("SHMSTORE_MINIMUM_AVAIL", 0)
	}
	if cfg.ShmDir == "" {
		cfg.ShmDir = envString("SHMSTORE_SHM_DIR", "")
	}
	if cfg.SinkPath == "" {
		// Per spec.md §6, the sink path's environment variable keeps
		// its own distinct name rather than the SHMSTORE_* family.
		cfg.SinkPath = os.Getenv("FILE_INFO_ON_DISK_PATH")
	}
	return cfg
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt64(name string, fallback int64) int64 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envUint(name string, fallback uint) uint {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return uint(n)
		}
	}
	return fallback
}

func envUint64(name string, fallback uint64) uint64 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
