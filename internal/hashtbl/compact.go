package hashtbl

import "encoding/binary"

// aggressiveFactor and defaultFactor are the two thresholds spec.md §4.6
// offers for deciding whether a compaction pass is worth its cost.
const (
	aggressiveFactor = 1.2
	defaultFactor    = 2.0
)

// ShouldCollect reports whether a compaction pass is worth running, per
// spec.md §4.6: run iff used >= factor*(used-wasted).
func (t *Table) ShouldCollect(aggressive bool) bool {
	used := t.heap.UsedHeapSize()
	wasted := t.heap.WastedHeapSize()
	factor := defaultFactor
	if aggressive {
		factor = aggressiveFactor
	}
	live := used - wasted
	return float64(used) >= factor*float64(live)
}

// Collect runs the in-place mark-and-compact pass described in spec.md
// §4.6. It is master-only and quiescence-required, enforced by the
// caller, not Table itself.
//
// The mark pass swaps each live hashtbl addr slot's heap offset for a
// back-pointer: the header moves into the addr word, and the heap word
// where the header used to live gets the *hashtbl slot index*, shifted
// left by one so its LSB is 0 (the spec uses the address of the addr
// slot itself for this; this implementation addresses hashtbl slots by
// index rather than raw pointer, so the index stands in for the address,
// recovered by the sweep pass with a right shift). Headers always carry
// an LSB of 1 (headerTagMask), so the sweep pass can tell a live
// back-pointer from a dead header purely from that bit.
func (t *Table) Collect() {
	for slot := uint64(0); slot < t.numSlots(); slot++ {
		addr := t.loadAddr(slot)
		if addr == addrNull || addr == addrWriteInProgress {
			continue
		}
		offset := decodeAddr(addr)
		header := t.heap.ReadHeader(offset)
		t.storeAddr(slot, header)
		backPtr := slot << 1
		binary.LittleEndian.PutUint64(t.heap.bytes[offset:], backPtr)
	}

	heapBytes := t.heap.bytes
	top := t.heap.UsedHeapSize()
	var dst, src uint64
	for src < top {
		word := binary.LittleEndian.Uint64(heapBytes[src:])
		if headerIsTagged(word) {
			// Dead entry: its header is still in place, LSB=1.
			src += alignUp(totalEntrySize(word))
			continue
		}
		// Live entry: word is a back-pointer (slot<<1), LSB=0.
		slot := word >> 1
		header := t.loadAddr(slot)
		size := alignUp(totalEntrySize(header))
		binary.LittleEndian.PutUint64(heapBytes[src:], header)
		if dst != src {
			copy(heapBytes[dst:dst+size], heapBytes[src:src+size])
		}
		t.storeAddr(slot, encodeAddr(dst))
		dst += size
		src += size
	}

	t.heap.top.Store(dst)
	t.heap.wasted.Store(0)
}
