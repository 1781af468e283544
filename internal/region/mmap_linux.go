//go:build linux && (amd64 || arm64)

package region

import (
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// archFixedMapAddr returns the constant mapping address for the running
// GOARCH, per SPEC_FULL.md §3.
func archFixedMapAddr() uintptr {
	switch runtime.GOARCH {
	case "arm64":
		return 0x0000700000000000
	default: // amd64
		return 0x00007f0000000000
	}
}

// fixedMapAddr is the constant virtual address every process maps the
// region at, chosen in a low, rarely-used part of the address space away
// from the default heap/mmap arenas, per SPEC_FULL.md §3 "Fixed address
// selection". It differs by GOARCH because amd64 and arm64 reserve
// different portions of the canonical address range for the kernel.
var fixedMapAddr = archFixedMapAddr()

// createBackingFile uses an unlinked temp file in cfg.ShmDir when one is
// configured. Otherwise it prefers an anonymous, unlinkable memfd
// (survives fork, never appears in the filesystem) per spec.md §4.1's
// first choice, falling back to an unlinked temp file.
func createBackingFile(cfg Config, size uint64) (*os.File, error) {
	if cfg.ShmDir != "" {
		return createBackingFileFallback(cfg, size)
	}
	fd, err := unix.MemfdCreate("shmstore", unix.MFD_CLOEXEC)
	if err != nil {
		return createBackingFileFallback(cfg, size)
	}
	file := os.NewFile(uintptr(fd), "shmstore-memfd")
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("region: ftruncate memfd: %w: %w", err, ErrOutOfSharedMemory)
	}
	return file, nil
}

// mapFixed mmaps file at the region's fixed address with MAP_FIXED so
// that every process observes the same virtual address, plus
// MAP_NORESERVE so untouched pages consume no physical memory until
// written, and advises the kernel to exclude the region from core
// dumps. golang.org/x/sys/unix's Mmap wrapper always requests addr=0,
// so a fixed mapping needs the raw SYS_MMAP syscall directly, the same
// escape hatch the teacher reaches for with SYS_FUTEX.
func mapFixed(file *os.File, size uint64) ([]byte, error) {
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		fixedMapAddr,
		uintptr(size),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED|unix.MAP_NORESERVE),
		file.Fd(),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("region: mmap at fixed address %#x: %w: %w", fixedMapAddr, errno, ErrFixedMapFailed)
	}
	if addr != fixedMapAddr {
		unix.Syscall6(unix.SYS_MUNMAP, addr, uintptr(size), 0, 0, 0, 0)
		return nil, fmt.Errorf("region: kernel mapped at %#x instead of requested %#x: %w", addr, fixedMapAddr, ErrFixedMapFailed)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	_ = unix.Madvise(mem, unix.MADV_DONTDUMP)
	return mem, nil
}

func unmapRegion(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}
