package deptbl

import (
	"fmt"
	"sync/atomic"

	"github.com/tcshare/shmstore/internal/hashutil"
)

// Table is the concurrent append-only 31-bit-key -> {31-bit-value}
// multimap. Its two backing slices are ordinarily views into the shared
// memory region (the caller casts the mapped bytes to []uint64 and passes
// them in), but Table itself is agnostic to where the memory comes from,
// which keeps it unit-testable over plain Go slices.
//
// Master-only operations (Reset) are not guarded here: the phase discipline
// that makes them safe is centralized in package guard and enforced by the
// facade that calls into Table, per the spec's "Role & phase guards"
// component.
type Table struct {
	slots     []uint64 // len D, power of two
	bind      *bindings
	dcounter  *atomic.Uint64 // total distinct edges (entry_count)
	usedSlots *atomic.Uint64 // deptbl slots (head + interior) currently occupied
}

// New builds a Table over the given backing slices. dcounter and usedSlots
// are shared counters (normally cells in the region's globals page); pass
// fresh *atomic.Uint64 values for a standalone, non-shared table.
func New(slots []uint64, bindingWords []uint64, dcounter, usedSlots *atomic.Uint64) (*Table, error) {
	d := len(slots)
	if d == 0 || d&(d-1) != 0 {
		return nil, fmt.Errorf("deptbl: slot count %d is not a power of two", d)
	}
	if len(bindingWords) != d {
		return nil, fmt.Errorf("deptbl: bindings length %d does not match slot count %d", len(bindingWords), d)
	}
	return &Table{
		slots:     slots,
		bind:      &bindings{words: bindingWords},
		dcounter:  dcounter,
		usedSlots: usedSlots,
	}, nil
}

func (t *Table) capacity() uint64 { return uint64(len(t.slots)) }
func (t *Table) mask() uint64     { return t.capacity() - 1 }

func (t *Table) load(i uint64) slot { return slot(atomic.LoadUint64(&t.slots[i])) }

func (t *Table) cas(i uint64, old, newS slot) bool {
	return atomic.CompareAndSwapUint64(&t.slots[i], uint64(old), uint64(newS))
}

func (t *Table) store(i uint64, s slot) { atomic.StoreUint64(&t.slots[i], uint64(s)) }

// AddDep inserts the edge (key,val), doing nothing if it is already
// present. Idempotent, per spec.
func (t *Table) AddDep(key, val uint32) error {
	if uint64(key) > maxKeyOrVal {
		return ErrKeyTooLarge
	}
	if uint64(val) > maxKeyOrVal {
		return ErrValTooLarge
	}
	res, err := t.bind.add(key, val, t.dcounter, t.capacity())
	if err != nil {
		return err
	}
	if res == addAlreadyPresent {
		return nil
	}
	return t.prepend(key, val)
}

// prepend publishes a newly-deduplicated edge into the per-key chain. It is
// called at most once per edge, guaranteed by the bindings pre-check.
func (t *Table) prepend(key, val uint32) error {
	idx := hashutil.Mix64(uint64(key)) & t.mask()
	start := idx
	for {
		cur := t.load(idx)
		switch {
		case cur.isEmpty():
			if t.cas(idx, 0, makeSlot(key, tagKey, val, tagVal)) {
				t.usedSlots.Add(1)
				return nil
			}
			// Someone else claimed this slot between our load and CAS;
			// re-examine it on the next loop iteration without advancing.
		case cur.isHead() && cur.keyNum() == key:
			return t.spliceHead(idx, key, val)
		default:
			idx = (idx + 1) & t.mask()
			if idx == start {
				return ErrDepTableFull
			}
		}
	}
}

// spliceHead links a freshly allocated interior node in front of the
// existing head chain for key via a single CAS on the head slot.
func (t *Table) spliceHead(headIdx uint64, key, val uint32) error {
	nodeIdx, err := t.allocInteriorNode(key, val)
	if err != nil {
		return err
	}
	for {
		h := t.load(headIdx)
		// The node is unreachable until the CAS below publishes it, so a
		// plain store here is race-free even though other writers may be
		// concurrently prepending to unrelated keys.
		t.store(nodeIdx, makeSlot(val, tagVal, h.nextNum(), h.nextTag()))
		newHead := makeSlot(key, tagKey, uint32(nodeIdx), tagNext)
		if t.cas(headIdx, h, newHead) {
			return nil
		}
	}
}

// allocInteriorNode claims an empty slot to hold one more edge value for an
// existing head chain. The returned slot is not yet reachable from any
// head; the caller links it in via spliceHead.
func (t *Table) allocInteriorNode(key, val uint32) (uint64, error) {
	start := hashutil.Mix64(encodePair(key, val)) & t.mask()
	idx := start
	for {
		if t.load(idx).isEmpty() {
			if t.cas(idx, 0, makeSlot(val, tagVal, placeholderNext, tagNext)) {
				t.usedSlots.Add(1)
				return idx, nil
			}
		}
		idx = (idx + 1) & t.mask()
		if idx == start {
			return 0, ErrDepTableFull
		}
	}
}

// GetDep returns the edge values for key in unspecified order.
func (t *Table) GetDep(key uint32) []uint32 {
	idx := hashutil.Mix64(uint64(key)) & t.mask()
	start := idx
	for {
		cur := t.load(idx)
		if cur.isEmpty() {
			return nil
		}
		if cur.isHead() && cur.keyNum() == key {
			return walkChain(t, cur)
		}
		idx = (idx + 1) & t.mask()
		if idx == start {
			return nil
		}
	}
}

func walkChain(t *Table, head slot) []uint32 {
	var out []uint32
	n := head
	for n.nextTag() == tagNext {
		nxt := t.load(uint64(n.nextNum()))
		out = append(out, nxt.keyNum())
		n = nxt
	}
	out = append(out, n.nextNum())
	return out
}

// UsedSlots returns the number of occupied deptbl slots (heads + interior
// nodes).
func (t *Table) UsedSlots() uint64 { return t.usedSlots.Load() }

// TotalSlots returns D, the table's slot capacity.
func (t *Table) TotalSlots() uint64 { return t.capacity() }

// EntryCount returns the number of distinct edges stored.
func (t *Table) EntryCount() uint64 { return t.dcounter.Load() }

// Reset zeroes both the deptbl and the bindings table. Callers must hold
// the master-only, quiescence-required guard before calling this; Table
// itself performs no phase checks (see the Table doc).
func (t *Table) Reset() {
	for i := range t.slots {
		atomic.StoreUint64(&t.slots[i], 0)
	}
	t.bind.reset()
	t.dcounter.Store(0)
	t.usedSlots.Store(0)
}

// Snapshot walks the slot array once and returns every key's edge set,
// without re-deriving probe order. Used by the persistence sink so a save
// pass doesn't need to re-hash every key it already has the slot for.
func (t *Table) Snapshot() map[uint32][]uint32 {
	out := make(map[uint32][]uint32)
	for i := uint64(0); i < t.capacity(); i++ {
		s := t.load(i)
		if s.isEmpty() || !s.isHead() {
			continue
		}
		out[s.keyNum()] = walkChain(t, s)
	}
	return out
}
