package region

import "fmt"

// ErrOutOfSharedMemory is returned when a page-level reservation for the
// region fails (e.g. ftruncate or the backing filesystem rejects the
// requested size).
var ErrOutOfSharedMemory = fmt.Errorf("region: out-of-shared-memory")

// ErrFailedAnonymousMemfdInit is returned when neither memfd_create nor
// the unlinked-temp-file fallback can produce a backing descriptor.
var ErrFailedAnonymousMemfdInit = fmt.Errorf("region: failed-anonymous-memfd-init")

// ErrFixedMapFailed is returned when the region cannot be mapped at its
// required fixed virtual address. Every process must observe the region
// at the same address for stored offsets to be dereferenceable directly,
// so this is always fatal, never retried at a different address.
var ErrFixedMapFailed = fmt.Errorf("region: failed-fixed-map")

// ErrLessThanMinimumAvailable reports that the chosen backing directory's
// free space is below the caller's configured floor.
type ErrLessThanMinimumAvailable struct {
	Bytes int64
}

func (e *ErrLessThanMinimumAvailable) Error() string {
	return fmt.Sprintf("region: less-than-minimum-available (%d bytes free)", e.Bytes)
}
