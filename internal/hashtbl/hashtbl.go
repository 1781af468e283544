package hashtbl

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tcshare/shmstore/internal/wait"
)

// ErrHashTableFull is raised when the insert probe wraps back to its
// starting slot without finding room, per spec.md's hash-table-full.
var ErrHashTableFull = errors.New("hashtbl: hash-table-full")

// ErrWriteLost is returned by Add when a concurrent writer won the race
// to claim the slot's addr word. The spec describes this outcome via a
// minimum-signed-int sentinel return; an error is the idiomatic Go
// rendering of the same "your write was silently dropped" contract. Per
// spec.md, this is safe because values under the same key are defined as
// equivalent: whichever writer wins, readers see a valid value.
var ErrWriteLost = errors.New("hashtbl: write lost race, another writer claimed the slot")

// ErrKeyAbsent is returned by Get/GetSize/Move/Remove when the key has
// never been written.
var ErrKeyAbsent = errors.New("hashtbl: key absent")

// ErrKeyRemoved is returned by Get/GetSize when the key was once present
// but has since been removed.
var ErrKeyRemoved = errors.New("hashtbl: key removed")

// ErrMoveDestinationOccupied is returned by Move when key2 already names
// a present entry.
var ErrMoveDestinationOccupied = errors.New("hashtbl: move destination already occupied")

// watchdogTimeout bounds the busy-wait on a WRITE_IN_PROGRESS sentinel,
// per spec.md §4.5's "60-second watchdog that fails if a writer died".
const watchdogTimeout = 60 * time.Second

// MemResult is the three-valued outcome of Mem, using the spec's literal
// sentinel integers so callers that mirror the original's numeric
// contract (present/removed/absent) can compare directly.
type MemResult int

const (
	MemPresent MemResult = 1
	MemAbsent  MemResult = -1
	MemRemoved MemResult = -2
)

// Table is the concurrent key->value content table: a fixed hashtbl slot
// array backed by a bump-allocated, LZ4-compressing heap. Each slot is
// two words, hash at words[2i] and addr at words[2i+1], matching the
// spec's 16-byte {hash, addr} layout. The backing slice is ordinarily a
// view into the shared region; Table is agnostic to where it comes from.
//
// Move and Remove are master-only, quiescence-required operations per
// spec.md §4.5. Table does not self-guard: the facade calls
// guard.AssertMaster/guard.AssertAllowRemoves before invoking them,
// mirroring internal/deptbl's layering.
type Table struct {
	words    []uint64 // len 2H
	heap     *Heap
	hcounter *atomic.Uint64
	codec    Codec
}

// New builds a Table over the given backing slice (length 2H, H a power
// of two) and heap. codec may be nil if the caller never stores values
// other than strings/[]byte.
func New(words []uint64, heap *Heap, hcounter *atomic.Uint64, codec Codec) (*Table, error) {
	h := len(words) / 2
	if len(words) != 2*h || h == 0 || h&(h-1) != 0 {
		return nil, errors.New("hashtbl: slot word count must be 2*H for a power-of-two H")
	}
	return &Table{words: words, heap: heap, hcounter: hcounter, codec: codec}, nil
}

func (t *Table) numSlots() uint64 { return uint64(len(t.words) / 2) }
func (t *Table) mask() uint64     { return t.numSlots() - 1 }

func (t *Table) loadHash(slot uint64) uint64 { return atomic.LoadUint64(&t.words[2*slot]) }
func (t *Table) loadAddr(slot uint64) uint64 { return atomic.LoadUint64(&t.words[2*slot+1]) }

func (t *Table) casHash(slot uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&t.words[2*slot], old, new)
}
func (t *Table) casAddr(slot uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&t.words[2*slot+1], old, new)
}
func (t *Table) storeAddr(slot uint64, v uint64) { atomic.StoreUint64(&t.words[2*slot+1], v) }

// claimSlot implements the shared probe used by Add and Move's
// destination side: find the slot already holding hash, or claim the
// first empty one, bumping hcounter exactly when a 0 hash word is
// claimed. Returns ErrHashTableFull if the probe wraps.
func (t *Table) claimSlot(hash uint64) (slot uint64, err error) {
	slot = hash & t.mask()
	start := slot
	for {
		s := t.loadHash(slot)
		if s == hash {
			return slot, nil
		}
		if t.hcounter.Load() >= t.numSlots() {
			return 0, ErrHashTableFull
		}
		if s == 0 {
			if t.casHash(slot, 0, hash) {
				t.hcounter.Add(1)
				return slot, nil
			}
			if t.loadHash(slot) == hash {
				return slot, nil
			}
		}
		slot = (slot + 1) & t.mask()
		if slot == start {
			return 0, ErrHashTableFull
		}
	}
}

// findSlot probes for an existing hash without claiming anything, for
// read-only paths (Mem, Get, Move's source, Remove).
func (t *Table) findSlot(hash uint64) (slot uint64, found bool) {
	slot = hash & t.mask()
	start := slot
	for {
		s := t.loadHash(slot)
		if s == 0 {
			return 0, false
		}
		if s == hash {
			return slot, true
		}
		slot = (slot + 1) & t.mask()
		if slot == start {
			return 0, false
		}
	}
}

// Add inserts data under hash (the first 8 bytes of a caller-supplied
// 128-bit external hash, per spec.md §4.5 "Key hashing"). Strings and
// []byte are stored as raw payloads (kind=KindString); any other value
// is marshaled through the Table's Codec (kind=KindSerialized). Returns
// the allocated heap bytes and the original payload size, or
// ErrWriteLost if a concurrent writer won the slot first.
func (t *Table) Add(hash uint64, data any) (allocBytes, origBytes int64, err error) {
	slot, err := t.claimSlot(hash)
	if err != nil {
		return 0, 0, err
	}
	return t.writeAt(slot, data)
}

func (t *Table) writeAt(slot uint64, data any) (allocBytes, origBytes int64, err error) {
	if !t.casAddr(slot, addrNull, addrWriteInProgress) {
		return 0, 0, ErrWriteLost
	}
	payload, kind, err := t.marshal(data)
	if err != nil {
		t.storeAddr(slot, addrNull)
		return 0, 0, err
	}
	header, stored, err := encode(payload, kind)
	if err != nil {
		t.storeAddr(slot, addrNull)
		return 0, 0, err
	}
	offset, err := t.heap.Alloc(header)
	if err != nil {
		t.storeAddr(slot, addrNull)
		return 0, 0, err
	}
	t.heap.WriteAt(offset, header, stored)
	t.storeAddr(slot, encodeAddr(offset))
	return int64(alignUp(totalEntrySize(header))), int64(len(payload)), nil
}

func (t *Table) marshal(data any) ([]byte, Kind, error) {
	switch v := data.(type) {
	case []byte:
		return v, KindString, nil
	case string:
		return []byte(v), KindString, nil
	default:
		if t.codec == nil {
			return nil, 0, errors.New("hashtbl: non-byte-string value and no Codec configured")
		}
		b, err := t.codec.Marshal(v)
		if err != nil {
			return nil, 0, err
		}
		return b, KindSerialized, nil
	}
}

func (t *Table) unmarshal(payload []byte, kind Kind) (any, error) {
	if kind == KindString {
		return payload, nil
	}
	if t.codec == nil {
		return nil, errors.New("hashtbl: serialized value and no Codec configured")
	}
	return t.codec.Unmarshal(payload)
}

// Mem reports whether hash is present, removed, or absent, busy-waiting
// on a WRITE_IN_PROGRESS sentinel up to the watchdog timeout.
func (t *Table) Mem(ctx context.Context, hash uint64) (MemResult, error) {
	slot, found := t.findSlot(hash)
	if !found {
		return MemAbsent, nil
	}
	addr, err := t.resolveAddr(ctx, slot)
	if err != nil {
		return 0, err
	}
	if addr == addrNull {
		return MemRemoved, nil
	}
	return MemPresent, nil
}

// resolveAddr returns the slot's published addr, busy-waiting past the
// WRITE_IN_PROGRESS sentinel if necessary.
func (t *Table) resolveAddr(ctx context.Context, slot uint64) (uint64, error) {
	addr := t.loadAddr(slot)
	if addr != addrWriteInProgress {
		return addr, nil
	}
	err := wait.SpinUntil(ctx, func() bool {
		addr = t.loadAddr(slot)
		return addr != addrWriteInProgress
	}, watchdogTimeout)
	if err != nil {
		return 0, err
	}
	return addr, nil
}

// Get returns the decoded value stored at hash. The key must be present
// (neither absent nor removed), matching spec.md §4.5.
func (t *Table) Get(ctx context.Context, hash uint64) (any, error) {
	payload, kind, err := t.readEntry(ctx, hash)
	if err != nil {
		return nil, err
	}
	return t.unmarshal(payload, kind)
}

// GetSize returns the original (uncompressed) payload size stored at
// hash.
func (t *Table) GetSize(ctx context.Context, hash uint64) (int, error) {
	payload, _, err := t.readEntry(ctx, hash)
	if err != nil {
		return 0, err
	}
	return len(payload), nil
}

func (t *Table) readEntry(ctx context.Context, hash uint64) ([]byte, Kind, error) {
	slot, found := t.findSlot(hash)
	if !found {
		return nil, 0, ErrKeyAbsent
	}
	addr, err := t.resolveAddr(ctx, slot)
	if err != nil {
		return nil, 0, err
	}
	if addr == addrNull {
		return nil, 0, ErrKeyRemoved
	}
	offset := decodeAddr(addr)
	header := t.heap.ReadHeader(offset)
	stored := t.heap.ReadPayload(offset, headerStoredSize(header))
	payload, kind, err := decode(header, stored)
	if err != nil {
		return nil, 0, err
	}
	return payload, kind, nil
}

// Move relocates the entry at hash1 to be addressed under hash2. hash1
// must be present; hash2 must be absent. Master-only, quiescence
// required (enforced by the caller, not Table itself).
func (t *Table) Move(hash1, hash2 uint64) error {
	srcSlot, found := t.findSlot(hash1)
	if !found {
		return ErrKeyAbsent
	}
	srcAddr := t.loadAddr(srcSlot)
	if srcAddr == addrNull {
		return ErrKeyRemoved
	}
	dstSlot, existed := t.findSlot(hash2)
	if existed {
		if t.loadAddr(dstSlot) != addrNull {
			return ErrMoveDestinationOccupied
		}
	} else {
		var err error
		dstSlot, err = t.claimSlot(hash2)
		if err != nil {
			return err
		}
	}
	t.storeAddr(dstSlot, srcAddr)
	t.storeAddr(srcSlot, addrNull)
	return nil
}

// Remove clears hash's addr, leaving the hash word as a tombstone and
// accounting the freed heap bytes as wasted until the next compaction.
// Master-only, quiescence required (enforced by the caller).
func (t *Table) Remove(hash uint64) error {
	slot, found := t.findSlot(hash)
	if !found {
		return ErrKeyAbsent
	}
	addr := t.loadAddr(slot)
	if addr == addrNull {
		return ErrKeyRemoved
	}
	offset := decodeAddr(addr)
	header := t.heap.ReadHeader(offset)
	t.storeAddr(slot, addrNull)
	t.heap.addWasted(alignUp(totalEntrySize(header)))
	return nil
}

// UsedSlots returns hcounter, the number of hash slots ever claimed
// (including tombstoned removes).
func (t *Table) UsedSlots() uint64 { return t.hcounter.Load() }

// TotalSlots returns H, the table's slot capacity.
func (t *Table) TotalSlots() uint64 { return t.numSlots() }

// Heap exposes the backing heap for callers that need occupancy stats or
// want to drive compaction directly.
func (t *Table) Heap() *Heap { return t.heap }
