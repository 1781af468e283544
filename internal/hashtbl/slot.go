package hashtbl

// addr slot encoding. The spec describes addr as holding NULL, the
// WRITE_IN_PROGRESS sentinel (1), or a raw pointer into the heap. This
// implementation stores heap *offsets* rather than pointers (see Heap's
// doc comment for why that is the GC-safe, process-portable equivalent),
// so the encoding shifts valid offsets up by two to keep the literal
// sentinel values from the spec intact: 0 still means NULL and 1 still
// means WRITE_IN_PROGRESS.
const (
	addrNull            = uint64(0)
	addrWriteInProgress = uint64(1)
	addrBias            = uint64(2)
)

func encodeAddr(offset uint64) uint64 { return offset + addrBias }
func decodeAddr(stored uint64) uint64 { return stored - addrBias }
