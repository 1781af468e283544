package deptbl

import (
	"sort"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

func newTestTable(t *testing.T, d int) *Table {
	t.Helper()
	slots := make([]uint64, d)
	bindingWords := make([]uint64, d)
	var dcounter, used atomic.Uint64
	tbl, err := New(slots, bindingWords, &dcounter, &used)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tbl
}

func TestAddDepAndGetDep(t *testing.T) {
	tbl := newTestTable(t, 16)

	if err := tbl.AddDep(1, 2); err != nil {
		t.Fatalf("AddDep(1,2): %v", err)
	}
	if err := tbl.AddDep(1, 3); err != nil {
		t.Fatalf("AddDep(1,3): %v", err)
	}
	if err := tbl.AddDep(1, 2); err != nil { // duplicate, must be a no-op
		t.Fatalf("AddDep(1,2) dup: %v", err)
	}

	got := tbl.GetDep(1)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []uint32{2, 3}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("GetDep(1) = %v, want permutation of %v", got, want)
	}

	if n := tbl.EntryCount(); n != 2 {
		t.Fatalf("EntryCount() = %d, want 2", n)
	}
}

func TestGetDepAbsentKey(t *testing.T) {
	tbl := newTestTable(t, 16)
	if got := tbl.GetDep(42); got != nil {
		t.Fatalf("GetDep on absent key = %v, want nil", got)
	}
}

func TestAddDepManyValuesSameKey(t *testing.T) {
	tbl := newTestTable(t, 64)
	const n = 20
	for v := uint32(1); v <= n; v++ {
		if err := tbl.AddDep(7, v); err != nil {
			t.Fatalf("AddDep(7,%d): %v", v, err)
		}
	}
	got := tbl.GetDep(7)
	seen := make(map[uint32]bool)
	for _, v := range got {
		seen[v] = true
	}
	if len(seen) != n {
		t.Fatalf("GetDep(7) has %d distinct values, want %d (got %v)", len(seen), n, got)
	}
	for v := uint32(1); v <= n; v++ {
		if !seen[v] {
			t.Fatalf("GetDep(7) missing value %d", v)
		}
	}
}

func TestDepTableFullOnBindings(t *testing.T) {
	const d = 8
	tbl := newTestTable(t, d)
	inserted := 0
	for v := uint32(0); v < 4*d; v++ {
		err := tbl.AddDep(uint32(v%3), v)
		if err == ErrDepTableFull {
			break
		}
		if err != nil {
			t.Fatalf("AddDep: %v", err)
		}
		inserted++
	}
	if inserted == 0 || inserted > d {
		t.Fatalf("inserted %d edges before hitting dep-table-full, capacity is %d", inserted, d)
	}
	if err := tbl.AddDep(999, 999); err != ErrDepTableFull {
		t.Fatalf("AddDep after full = %v, want ErrDepTableFull", err)
	}
}

func TestReset(t *testing.T) {
	tbl := newTestTable(t, 16)
	if err := tbl.AddDep(1, 2); err != nil {
		t.Fatal(err)
	}
	tbl.Reset()
	if got := tbl.GetDep(1); got != nil {
		t.Fatalf("GetDep after Reset = %v, want nil", got)
	}
	if n := tbl.EntryCount(); n != 0 {
		t.Fatalf("EntryCount after Reset = %d, want 0", n)
	}
}

// TestConcurrentAddDepSameKey fans out goroutines standing in for worker
// processes (see SPEC_FULL.md §9, "Note on goroutines vs. processes in
// tests") that all add distinct values under one key concurrently.
func TestConcurrentAddDepSameKey(t *testing.T) {
	tbl := newTestTable(t, 1024)
	const workers = 8
	const perWorker = 32

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				v := uint32(w*perWorker + i + 1)
				if err := tbl.AddDep(55, v); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent AddDep: %v", err)
	}

	got := tbl.GetDep(55)
	seen := make(map[uint32]bool, len(got))
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate value %d in GetDep(55)", v)
		}
		seen[v] = true
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("GetDep(55) returned %d distinct values, want %d", len(seen), workers*perWorker)
	}
}

func TestSnapshot(t *testing.T) {
	tbl := newTestTable(t, 32)
	if err := tbl.AddDep(1, 10); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddDep(1, 11); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddDep(2, 20); err != nil {
		t.Fatal(err)
	}

	snap := tbl.Snapshot()
	if len(snap[1]) != 2 {
		t.Fatalf("snapshot[1] = %v, want 2 values", snap[1])
	}
	if len(snap[2]) != 1 || snap[2][0] != 20 {
		t.Fatalf("snapshot[2] = %v, want [20]", snap[2])
	}
}
