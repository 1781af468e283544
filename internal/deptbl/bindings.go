package deptbl

import (
	"sync/atomic"

	"github.com/tcshare/shmstore/internal/hashutil"
)

// bindings is the parallel open-addressed set of (key,value) pairs encoded
// as (key<<31)|val with pairPresentBit set, used to short-circuit duplicate
// edge insertion in O(1) average without ever walking the per-key value
// chain.
type bindings struct {
	words []uint64 // len is a power of two, the same D as the deptbl proper
}

func encodePair(key, val uint32) uint64 {
	return (uint64(key) << 31) | uint64(val)
}

// pairPresentBit is set on every word stored in bindings. encodePair(0, 0)
// is 0, the empty-word value, so without this bit the edge (0,0) would
// read as already present and never be inserted.
const pairPresentBit = uint64(1) << 63

func (b *bindings) mask() uint64 { return uint64(len(b.words)) - 1 }

// addResult distinguishes the three outcomes of add, mirroring the spec's
// "already present" / "newly inserted" / dep-table-full trichotomy.
type addResult int

const (
	addAlreadyPresent addResult = iota
	addNewlyInserted
)

// add performs the bindings pre-check for a single edge. It never mutates
// the deptbl proper; callers only call prepend_to_deptbl_list when this
// returns addNewlyInserted.
func (b *bindings) add(key, val uint32, dcounter *atomic.Uint64, capacity uint64) (addResult, error) {
	pair := encodePair(key, val) | pairPresentBit
	slotIdx := hashutil.Mix64(encodePair(key, val)) & b.mask()

	for {
		if dcounter.Load() >= capacity {
			return 0, ErrDepTableFull
		}
		cur := atomic.LoadUint64(&b.words[slotIdx])
		if cur == pair {
			return addAlreadyPresent, nil
		}
		if cur == 0 {
			if atomic.CompareAndSwapUint64(&b.words[slotIdx], 0, pair) {
				dcounter.Add(1)
				return addNewlyInserted, nil
			}
			// Lost the race; re-examine the same slot before moving on,
			// since the winner may have written exactly our pair.
			cur = atomic.LoadUint64(&b.words[slotIdx])
			if cur == pair {
				return addAlreadyPresent, nil
			}
			if cur == 0 {
				continue // still empty somehow (shouldn't happen); retry this slot
			}
		}
		slotIdx = (slotIdx + 1) & b.mask()
	}
}

func (b *bindings) reset() {
	for i := range b.words {
		atomic.StoreUint64(&b.words[i], 0)
	}
}
