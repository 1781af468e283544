// Package hashtbl implements the concurrent key->value content table: a
// fixed-width slot array (hash, addr) backed by a variable-sized,
// bump-allocated, LZ4-compressing heap, plus the compacting mark-and-move
// garbage collector that reclaims space freed by master-only removes.
package hashtbl

// Heap entry header bit layout, per the data model:
//
//	bit 0:      tag bit, always 1 — distinguishes a header from a
//	            compaction back-pointer (whose LSB is 0 by construction,
//	            since every entry is at least 8-byte aligned).
//	bits 1..31: uncompressed size, when LZ4 shrank the payload; 0 otherwise.
//	bit 32:     kind — 0 serialized object, 1 raw string.
//	bits 33..63: stored (post-compression, or raw) payload size in bytes.
const (
	headerTagMask           = uint64(1)
	headerUncompressedShift = 1
	headerUncompressedMask  = uint64(1)<<31 - 1
	headerKindShift         = 32
	headerKindMask          = uint64(1)
	headerStoredShift       = 33
	headerStoredMask        = uint64(1)<<31 - 1
)

// Kind identifies how a stored payload should be deserialized.
type Kind uint8

const (
	KindSerialized Kind = 0
	KindString     Kind = 1
)

// maxPayloadBytes is the largest payload this table can store: the stored
// size field is 31 bits.
const maxPayloadBytes = int(headerStoredMask) // 2^31 - 1

func makeHeader(uncompressedSize uint32, kind Kind, storedSize uint32) uint64 {
	h := headerTagMask
	h |= (uint64(uncompressedSize) & headerUncompressedMask) << headerUncompressedShift
	h |= (uint64(kind) & headerKindMask) << headerKindShift
	h |= (uint64(storedSize) & headerStoredMask) << headerStoredShift
	return h
}

func headerIsTagged(h uint64) bool { return h&headerTagMask == headerTagMask }

func headerUncompressedSize(h uint64) uint32 {
	return uint32((h >> headerUncompressedShift) & headerUncompressedMask)
}

func headerKind(h uint64) Kind {
	return Kind((h >> headerKindShift) & headerKindMask)
}

func headerStoredSize(h uint64) uint32 {
	return uint32((h >> headerStoredShift) & headerStoredMask)
}

// entryHeaderBytes is the width of the header word itself, preceding the
// payload within a heap entry.
const entryHeaderBytes = 8

// totalEntrySize returns the number of bytes (header + payload) a heap
// entry with this header occupies before alignment.
func totalEntrySize(h uint64) uint64 {
	return entryHeaderBytes + uint64(headerStoredSize(h))
}

// alignment is the heap's bump-allocation granularity. Entries are at
// least this wide apart, which is what guarantees a live header's LSB (1)
// can never collide with a compaction back-pointer's LSB (0): both live at
// addresses that are multiples of alignment.
const alignment = 64

func alignUp(n uint64) uint64 {
	return (n + alignment - 1) &^ (alignment - 1)
}
