package region

import "fmt"

// regionPageSize is a fixed protocol constant, not the host's actual
// page size: every process must agree on the byte offsets derived from
// it regardless of what os.Getpagesize() happens to report locally.
const regionPageSize = 4096

// Layout is the set of byte offsets and sizes for each sub-structure
// inside the mapped region, derived once from Config and shared by every
// process that connects to the same region. Order matches spec.md §3:
// small-objects page, sink-filename page, global blob, deptbl slots,
// deptbl bindings, hashtbl slots, heap.
type Layout struct {
	TotalSize uint64

	SmallObjectsOffset uint64
	SinkFilenameOffset uint64

	GlobalBlobOffset uint64
	GlobalBlobSize   uint64

	DeptblSlotsOffset    uint64
	DeptblBindingsOffset uint64
	DepSlots             uint64 // D, power of two

	HashtblSlotsOffset uint64
	HashtblSlots       uint64 // H, power of two

	HeapOffset uint64
	HeapSize   uint64
}

// ComputeLayout derives a Layout from cfg, matching spec.md §4.1's
// shared_mem_size formula: global + dep*8 + dep*8 + hashtbl*16 + heap +
// 2*page.
func ComputeLayout(cfg Config) (Layout, error) {
	if cfg.GlobalSizeB <= 0 || cfg.GlobalSizeB%8 != 0 {
		return Layout{}, fmt.Errorf("region: GlobalSizeB must be a positive multiple of 8")
	}
	if cfg.HeapSize <= 0 {
		return Layout{}, fmt.Errorf("region: HeapSize must be positive")
	}
	if cfg.DepTablePow == 0 || cfg.DepTablePow > 31 {
		return Layout{}, fmt.Errorf("region: DepTablePow out of range: %d", cfg.DepTablePow)
	}
	if cfg.HashTablePow == 0 || cfg.HashTablePow > 31 {
		return Layout{}, fmt.Errorf("region: HashTablePow out of range: %d", cfg.HashTablePow)
	}

	d := uint64(1) << cfg.DepTablePow
	h := uint64(1) << cfg.HashTablePow

	l := Layout{
		SmallObjectsOffset:   0,
		SinkFilenameOffset:   regionPageSize,
		GlobalBlobOffset:     2 * regionPageSize,
		GlobalBlobSize:       uint64(cfg.GlobalSizeB),
		DeptblSlotsOffset:    2*regionPageSize + uint64(cfg.GlobalSizeB),
		DepSlots:             d,
		DeptblBindingsOffset: 2*regionPageSize + uint64(cfg.GlobalSizeB) + d*8,
		HashtblSlotsOffset:   2*regionPageSize + uint64(cfg.GlobalSizeB) + d*8 + d*8,
		HashtblSlots:         h,
		HeapOffset:           2*regionPageSize + uint64(cfg.GlobalSizeB) + d*8 + d*8 + h*16,
		HeapSize:             uint64(cfg.HeapSize),
	}
	l.TotalSize = l.HeapOffset + l.HeapSize
	return l, nil
}
