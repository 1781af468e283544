package region

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/tcshare/shmstore/internal/guard"
)

// Globals is the small-objects page: cache-line-separated atomic cells
// for everything spec.md §3 lists there (heap top, hashtbl/deptbl
// counts, monotonic counter, master pid, log level, sample rate,
// stop-flag, wasted-heap counter, allow-removes, allow-dep-reads). Each
// field gets its own trailing pad so concurrent updates to unrelated
// counters from different cores never false-share a cache line,
// mirroring the teacher's SegmentHeader/RingHeader per-field atomic
// accessor style, generalized from manual Load/Store wrappers to the
// sync/atomic.UintNN types directly.
//
// Globals is laid directly over mapped shared memory via unsafe.Pointer;
// its field order and padding must never change without a protocol
// version bump.
type Globals struct {
	HeapTop atomic.Uint64
	_       [56]byte

	WastedHeap atomic.Uint64
	_          [56]byte

	HashtblCount atomic.Uint64
	_            [56]byte

	DepUsedSlots atomic.Uint64
	_            [56]byte

	DepEntryCount atomic.Uint64
	_             [56]byte

	Monotonic atomic.Uint64
	_         [56]byte

	MasterPid atomic.Uint32
	_         [60]byte

	LogLevel atomic.Uint32
	_        [60]byte

	SampleRate atomic.Uint32
	_          [60]byte

	StopFlag atomic.Uint32
	_        [60]byte

	AllowRemovesFlag atomic.Uint32
	_                [60]byte

	AllowDepReadsFlag atomic.Uint32
	_                 [60]byte
}

// globalsView casts the small-objects page of mem (at the given layout
// offset) to a *Globals. mem must be at least offset+sizeof(Globals)
// bytes and must never be reallocated for the lifetime of the view.
func globalsView(mem []byte, offset uint64) *Globals {
	return (*Globals)(unsafe.Pointer(&mem[offset]))
}

// NextCounter returns the next value of the region's monotonic counter,
// wrapping modulo math.MaxInt64 per spec.md §4.2.
func (g *Globals) NextCounter() uint64 {
	return g.Monotonic.Add(1) % uint64(math.MaxInt64)
}

// MasterPID implements guard.Coordination.
func (g *Globals) MasterPID() int { return int(g.MasterPid.Load()) }

// WorkersShouldExit implements guard.Coordination.
func (g *Globals) WorkersShouldExit() bool { return g.StopFlag.Load() != 0 }

// AllowRemoves implements guard.Coordination.
func (g *Globals) AllowRemoves() bool { return g.AllowRemovesFlag.Load() != 0 }

// AllowDependencyTableReads implements guard.Coordination.
func (g *Globals) AllowDependencyTableReads() bool { return g.AllowDepReadsFlag.Load() != 0 }

// SetStopFlag raises or clears the region-global stop flag that
// guard.CheckShouldExit consults. Master-only by convention; not
// self-guarded here (see internal/guard's layering note).
func (g *Globals) SetStopFlag(stop bool) {
	if stop {
		g.StopFlag.Store(1)
	} else {
		g.StopFlag.Store(0)
	}
}

// SetAllowRemoves toggles the quiescent-phase flag gating master-only
// remove/move/compaction operations.
func (g *Globals) SetAllowRemoves(allow bool) {
	if allow {
		g.AllowRemovesFlag.Store(1)
	} else {
		g.AllowRemovesFlag.Store(0)
	}
}

// SetAllowDependencyTableReads toggles whether GetDep-style reads are
// currently permitted.
func (g *Globals) SetAllowDependencyTableReads(allow bool) {
	if allow {
		g.AllowDepReadsFlag.Store(1)
	} else {
		g.AllowDepReadsFlag.Store(0)
	}
}

var _ guard.Coordination = (*Globals)(nil)

// processLocalCounter backs NextCounter-equivalent behavior for callers
// that need a counter before Init/Connect has produced a Globals view,
// per spec.md §4.2 ("if called before init, use a process-local counter
// instead").
var processLocalCounter atomic.Uint64

// NextProcessLocalCounter returns the next value of the process-local
// fallback counter.
func NextProcessLocalCounter() uint64 {
	return processLocalCounter.Add(1) % uint64(math.MaxInt64)
}
