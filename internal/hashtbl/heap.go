package hashtbl

import (
	"encoding/binary"
	"sync/atomic"
)

// Heap is the bump-allocated, cache-aligned payload area backing the
// content table. Offsets into it are zero-based and process-independent
// by construction (every process computes them relative to its own
// mapping of the same bytes), which is what lets a stored address work
// as-is in any process without translation, exactly as the spec's
// fixed-address mapping does for raw pointers.
type Heap struct {
	bytes     []byte // the heap_size-byte payload area
	top       *atomic.Uint64
	wasted    *atomic.Uint64
	maxBytes  uint64
}

// NewHeap wraps a backing byte slice (normally a view into the shared
// region) with the bump allocator. top and wasted are shared counters
// (region globals in production, fresh counters in tests).
func NewHeap(bytes []byte, top, wasted *atomic.Uint64) *Heap {
	return &Heap{bytes: bytes, top: top, wasted: wasted, maxBytes: uint64(len(bytes))}
}

// ErrHeapFull is raised when the bump allocator's fetch-add would exceed
// the heap's configured capacity.
var ErrHeapFull = errHeapFull{}

type errHeapFull struct{}

func (errHeapFull) Error() string { return "hashtbl: heap-full" }

// Alloc reserves space for an entry with the given header (its stored
// size determines the slot's length) and returns the byte offset at which
// to write it. The bump pointer is advanced unconditionally via
// fetch-add, including past capacity: per spec, heap-full is unconditionally
// fatal, so no rollback of the failed reservation is needed or attempted.
func (h *Heap) Alloc(header uint64) (offset uint64, err error) {
	size := alignUp(totalEntrySize(header))
	newTop := h.top.Add(size)
	if newTop > h.maxBytes {
		return 0, ErrHeapFull
	}
	return newTop - size, nil
}

// WriteAt writes a fully-formed entry (header + payload) at offset.
func (h *Heap) WriteAt(offset uint64, header uint64, payload []byte) {
	binary.LittleEndian.PutUint64(h.bytes[offset:], header)
	copy(h.bytes[offset+entryHeaderBytes:], payload)
}

// ReadHeader reads the header word at offset.
func (h *Heap) ReadHeader(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(h.bytes[offset:])
}

// ReadPayload copies out the stored (possibly still LZ4-compressed)
// payload bytes for the entry at offset.
func (h *Heap) ReadPayload(offset uint64, storedSize uint32) []byte {
	start := offset + entryHeaderBytes
	out := make([]byte, storedSize)
	copy(out, h.bytes[start:start+uint64(storedSize)])
	return out
}

// UsedHeapSize returns the number of bytes currently bump-allocated.
func (h *Heap) UsedHeapSize() uint64 { return h.top.Load() }

// WastedHeapSize returns bytes freed by removes but not yet reclaimed by
// a compaction pass.
func (h *Heap) WastedHeapSize() uint64 { return h.wasted.Load() }

// addWasted accounts for space a remove freed without reclaiming it.
func (h *Heap) addWasted(n uint64) { h.wasted.Add(n) }
