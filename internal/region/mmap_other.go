//go:build !linux || !(amd64 || arm64)

package region

import (
	"fmt"
	"os"
)

// createBackingFile on platforms without memfd_create falls straight to
// the unlinked-temp-file fallback; spec.md's POSIX shm_open tier
// collapses into the same mechanism here since the ecosystem has no
// portable shm_open wrapper to reach for (see DESIGN.md).
func createBackingFile(cfg Config, size uint64) (*os.File, error) {
	return createBackingFileFallback(cfg, size)
}

// mapFixed is unsupported outside linux/amd64|arm64: there is no
// portable way to request MAP_FIXED at a specific address from the Go
// standard library or golang.org/x/sys on every platform this could
// build for, and a region that isn't at the same address in every
// process breaks the core "dereference a stored offset directly"
// contract. Failing loudly is correct per spec.md's "mapping failure at
// that address is fatal".
func mapFixed(file *os.File, size uint64) ([]byte, error) {
	return nil, fmt.Errorf("region: fixed-address mapping unsupported on this platform: %w", ErrFixedMapFailed)
}

func unmapRegion(mem []byte) error {
	return nil
}
