// Package region implements the shared-memory region manager: an
// anonymous, fork-inheritable file-descriptor-backed mapping placed at a
// fixed virtual address in every process, per spec.md §4.1/§4.2.
package region

import (
	"fmt"
	"os"
	"syscall"
)

// Config carries the sizing parameters spec.md §4.1 needs to compute
// shared_mem_size, plus the optional backing directory: when ShmDir is
// set the backing file is created there, otherwise a memfd is tried first
// and the OS temp directory is the fallback.
type Config struct {
	GlobalSizeB  int64
	HeapSize     int64
	DepTablePow  uint // D = 1<<DepTablePow
	HashTablePow uint // H = 1<<HashTablePow
	ShmDir       string
	MinimumAvail int64 // floor on ShmDir free space, 0 disables the check
}

// Connector is the opaque handle init returns, suitable for a caller to
// thread across os/exec (the *os.File via Cmd.ExtraFiles, the sizing
// fields via env vars or args) so a forked worker can reconstruct the
// same Layout and re-map the same region. Process spawning itself is an
// out-of-scope external collaborator per spec.md §1.
type Connector struct {
	File         *os.File
	GlobalSizeB  int64
	HeapSize     int64
	DepTablePow  uint
	HashTablePow uint
}

func (c Connector) config() Config {
	return Config{
		GlobalSizeB:  c.GlobalSizeB,
		HeapSize:     c.HeapSize,
		DepTablePow:  c.DepTablePow,
		HashTablePow: c.HashTablePow,
	}
}

// Region is a live mapping of the shared region in the current process.
type Region struct {
	Mem    []byte
	Layout Layout
	File   *os.File

	Globals *Globals
}

// Init creates the backing file, sizes it, and returns a Connector that
// the master and its workers pass to Connect. Init does not map the
// region; every process, the master included, maps it through Connect.
// Called exactly once, by the master, per spec.md §2's control flow.
func Init(cfg Config) (*Connector, error) {
	layout, err := ComputeLayout(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.MinimumAvail > 0 {
		if free, ok := freeBytes(shmDirOrDefault(cfg.ShmDir)); ok && free < cfg.MinimumAvail {
			return nil, &ErrLessThanMinimumAvailable{Bytes: free}
		}
	}

	file, err := createBackingFile(cfg, layout.TotalSize)
	if err != nil {
		return nil, err
	}

	return &Connector{
		File:         file,
		GlobalSizeB:  cfg.GlobalSizeB,
		HeapSize:     cfg.HeapSize,
		DepTablePow:  cfg.DepTablePow,
		HashTablePow: cfg.HashTablePow,
	}, nil
}

// Connect maps the region named by connector at the fixed address in
// the current process and derives its Layout. If isMaster, it also
// records this process's pid in the master-pid cell, per spec.md §4.1.
func Connect(connector *Connector, isMaster bool) (*Region, error) {
	cfg := connector.config()
	layout, err := ComputeLayout(cfg)
	if err != nil {
		return nil, err
	}

	mem, err := mapFixed(connector.File, layout.TotalSize)
	if err != nil {
		return nil, err
	}

	g := globalsView(mem, layout.SmallObjectsOffset)
	if isMaster {
		g.MasterPid.Store(uint32(os.Getpid()))
		g.SetAllowDependencyTableReads(true)
	}

	return &Region{Mem: mem, Layout: layout, File: connector.File, Globals: g}, nil
}

// Close unmaps the region. It does not close the backing file descriptor
// (callers that own it, typically the master, are responsible for that);
// per spec.md's lifecycle note, the region itself is released only on
// process exit.
func (r *Region) Close() error {
	return unmapRegion(r.Mem)
}

// GlobalBlobBytes returns the sub-slice of the mapped region reserved
// for the global blob slot, for internal/globalblob to wrap.
func (r *Region) GlobalBlobBytes() []byte {
	return r.Mem[r.Layout.GlobalBlobOffset : r.Layout.GlobalBlobOffset+r.Layout.GlobalBlobSize]
}

// DeptblSlotWords returns the deptbl's slot array as a []uint64 view
// over shared memory, for internal/deptbl to wrap.
func (r *Region) DeptblSlotWords() []uint64 {
	return byteSliceAsUint64(r.Mem[r.Layout.DeptblSlotsOffset : r.Layout.DeptblSlotsOffset+r.Layout.DepSlots*8])
}

// DeptblBindingWords returns the deptbl bindings array as a []uint64
// view over shared memory.
func (r *Region) DeptblBindingWords() []uint64 {
	return byteSliceAsUint64(r.Mem[r.Layout.DeptblBindingsOffset : r.Layout.DeptblBindingsOffset+r.Layout.DepSlots*8])
}

// HashtblSlotWords returns the hashtbl's slot array as a []uint64 view
// (2 words per slot: hash, addr) over shared memory.
func (r *Region) HashtblSlotWords() []uint64 {
	size := r.Layout.HashtblSlots * 16
	return byteSliceAsUint64(r.Mem[r.Layout.HashtblSlotsOffset : r.Layout.HashtblSlotsOffset+size])
}

// HeapBytes returns the bump-allocated heap region.
func (r *Region) HeapBytes() []byte {
	return r.Mem[r.Layout.HeapOffset : r.Layout.HeapOffset+r.Layout.HeapSize]
}

// SinkFilenameBytes returns the page reserved for the external
// persistence sink's path, size-prefixed the same way the global blob
// is.
func (r *Region) SinkFilenameBytes() []byte {
	return r.Mem[r.Layout.SinkFilenameOffset : r.Layout.SinkFilenameOffset+regionPageSize]
}

func shmDirOrDefault(dir string) string {
	if dir != "" {
		return dir
	}
	return os.TempDir()
}

// freeBytes reports free space on the filesystem containing dir. Best
// effort: ok is false if the platform-specific statfs call is
// unavailable, in which case Init skips the minimum-available check
// rather than failing spuriously.
func freeBytes(dir string) (int64, bool) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, false
	}
	return int64(stat.Bavail) * int64(stat.Bsize), true
}

// createBackingFileFallback implements spec.md §4.1's third-tier
// fallback, and the configured-ShmDir backing: a temp file in ShmDir (or
// the OS temp dir) immediately unlinked after opening, so the
// descriptor behaves like an anonymous shared mapping (the fd stays
// valid and inheritable across fork; the directory entry is gone).
func createBackingFileFallback(cfg Config, size uint64) (*os.File, error) {
	dir := shmDirOrDefault(cfg.ShmDir)
	file, err := os.CreateTemp(dir, "shmstore-*")
	if err != nil {
		return nil, fmt.Errorf("region: creating backing file in %s: %w: %w", dir, err, ErrFailedAnonymousMemfdInit)
	}
	name := file.Name()
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		os.Remove(name)
		return nil, fmt.Errorf("region: ftruncate backing file: %w: %w", err, ErrOutOfSharedMemory)
	}
	if err := os.Remove(name); err != nil {
		file.Close()
		return nil, fmt.Errorf("region: unlinking backing file: %w", err)
	}
	return file, nil
}
