// Command shmstore-debug creates a throwaway region with the sizes given
// on the command line, drives a handful of representative operations
// through it, and prints the outcome of each content-table Add (allocated
// and original bytes), the deptbl's used/total slots and entry count, and
// whether a compaction pass is recommended — a probe in the same spirit
// as the teacher's debug-capacity tool, retargeted from ring-buffer
// backpressure to this store's bump allocator and probe tables.
package main

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/tcshare/shmstore"
)

type md5Hasher struct{}

func (md5Hasher) Hash(key []byte) [16]byte { return md5.Sum(key) }

func main() {
	globalSizeB := argInt(1, 4096)
	heapSize := argInt(2, 1<<20)
	depPow := uint(argInt(3, 10))
	hashPow := uint(argInt(4, 10))

	cfg := shmstore.Config{
		GlobalSizeB:  int64(globalSizeB),
		HeapSize:     int64(heapSize),
		DepTablePow:  depPow,
		HashTablePow: hashPow,
	}

	connector, err := shmstore.Init(cfg)
	if err != nil {
		log.Fatalf("Init: %v", err)
	}
	store, err := shmstore.Connect(connector, true, cfg, md5Hasher{}, nil)
	if err != nil {
		log.Fatalf("Connect: %v", err)
	}
	defer store.Close()

	fmt.Printf("=== Region Configuration ===\n")
	fmt.Printf("global_size_b: %d bytes\n", globalSizeB)
	fmt.Printf("heap_size:     %d bytes\n", heapSize)
	fmt.Printf("dep_table_pow: %d (%d slots)\n", depPow, uint64(1)<<depPow)
	fmt.Printf("hash_table_pow: %d (%d slots)\n", hashPow, uint64(1)<<hashPow)

	fmt.Printf("\n=== Fill Test: Content Table ===\n")
	testSizes := []int{10, 100, 1000, 10000, 65536}
	for i, size := range testSizes {
		key := []byte(fmt.Sprintf("probe-%d", i))
		data := make([]byte, size)
		allocBytes, origBytes, err := store.Add(key, data)
		if err != nil {
			fmt.Printf("size %7d bytes: FAIL (%v)\n", size, err)
			continue
		}
		fmt.Printf("size %7d bytes: OK (alloc=%d orig=%d)\n", size, allocBytes, origBytes)
	}

	fmt.Printf("\n=== Fill Test: Dependency Table ===\n")
	added := 0
	for i := uint32(0); i < 64; i++ {
		if err := store.AddDep(1, i+2); err != nil {
			fmt.Printf("AddDep failed after %d edges: %v\n", added, err)
			break
		}
		added++
	}
	fmt.Printf("added %d edges under key 1\n", added)
	deps, err := store.GetDep(1)
	if err != nil {
		log.Fatalf("GetDep: %v", err)
	}
	fmt.Printf("GetDep(1) returned %d values\n", len(deps))

	fmt.Printf("\n=== Occupancy ===\n")
	fmt.Printf("deptbl used/total:   %d/%d\n", store.DepUsedSlots(), store.DepTotalSlots())
	fmt.Printf("deptbl entry_count:  %d\n", store.DepEntryCount())
	fmt.Printf("compaction recommended (default factor): %v\n", store.ShouldCompact(false))

	ctx := context.Background()
	res, err := store.Mem(ctx, []byte("probe-0"))
	fmt.Printf("mem(probe-0) = %v, err=%v\n", res, err)
}

func argInt(idx int, fallback int) int {
	if len(os.Args) <= idx {
		return fallback
	}
	v, err := strconv.Atoi(os.Args[idx])
	if err != nil {
		return fallback
	}
	return v
}
