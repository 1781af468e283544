package hashtbl

import (
	"context"
	"testing"
)

func TestShouldCollectThresholds(t *testing.T) {
	tbl := newTestTable(t, 16, 4096)
	tbl.heap.top.Store(1000)
	tbl.heap.wasted.Store(0)
	if tbl.ShouldCollect(false) {
		t.Fatalf("ShouldCollect(default) with no waste = true, want false")
	}
	tbl.heap.wasted.Store(600) // live = 400, used/live = 2.5 >= 2.0
	if !tbl.ShouldCollect(false) {
		t.Fatalf("ShouldCollect(default) with heavy waste = false, want true")
	}
	tbl.heap.wasted.Store(200) // live = 800, used/live = 1.25 >= 1.2 (aggressive only)
	if tbl.ShouldCollect(false) {
		t.Fatalf("ShouldCollect(default) at 1.25x = true, want false")
	}
	if !tbl.ShouldCollect(true) {
		t.Fatalf("ShouldCollect(aggressive) at 1.25x = false, want true")
	}
}

func TestCollectNoOpWhenNothingRemoved(t *testing.T) {
	tbl := newTestTable(t, 16, 4096)
	ctx := context.Background()
	for i := uint64(1); i <= 4; i++ {
		if _, _, err := tbl.Add(i, "value"); err != nil {
			t.Fatal(err)
		}
	}
	beforeTop := tbl.heap.UsedHeapSize()
	tbl.Collect()
	if tbl.heap.UsedHeapSize() != beforeTop {
		t.Fatalf("Collect with nothing removed changed heap top from %d to %d", beforeTop, tbl.heap.UsedHeapSize())
	}
	for i := uint64(1); i <= 4; i++ {
		got, err := tbl.Get(ctx, i)
		if err != nil {
			t.Fatalf("Get(%d) after no-op collect: %v", i, err)
		}
		if string(got.([]byte)) != "value" {
			t.Fatalf("Get(%d) = %q, want %q", i, got, "value")
		}
	}
}

func TestCollectReclaimsRemovedEntries(t *testing.T) {
	tbl := newTestTable(t, 16, 4096)
	ctx := context.Background()

	for i := uint64(1); i <= 4; i++ {
		if _, _, err := tbl.Add(i, "payload-for-"+string(rune('0'+i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.Remove(2); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Remove(4); err != nil {
		t.Fatal(err)
	}
	beforeTop := tbl.heap.UsedHeapSize()
	tbl.Collect()
	afterTop := tbl.heap.UsedHeapSize()
	if afterTop >= beforeTop {
		t.Fatalf("Collect did not shrink heap top: before=%d after=%d", beforeTop, afterTop)
	}
	if tbl.heap.WastedHeapSize() != 0 {
		t.Fatalf("WastedHeapSize after Collect = %d, want 0", tbl.heap.WastedHeapSize())
	}

	for _, i := range []uint64{1, 3} {
		got, err := tbl.Get(ctx, i)
		if err != nil {
			t.Fatalf("Get(%d) survivor after collect: %v", i, err)
		}
		want := "payload-for-" + string(rune('0'+i))
		if string(got.([]byte)) != want {
			t.Fatalf("Get(%d) = %q, want %q", i, got, want)
		}
	}
	for _, i := range []uint64{2, 4} {
		if res, _ := tbl.Mem(ctx, i); res != MemRemoved {
			t.Fatalf("Mem(%d) after collect = %v, want MemRemoved", i, res)
		}
	}
}

func TestCollectFullReclaimWhenAllRemoved(t *testing.T) {
	tbl := newTestTable(t, 16, 4096)
	for i := uint64(1); i <= 3; i++ {
		if _, _, err := tbl.Add(i, "x"); err != nil {
			t.Fatal(err)
		}
	}
	for i := uint64(1); i <= 3; i++ {
		if err := tbl.Remove(i); err != nil {
			t.Fatal(err)
		}
	}
	tbl.Collect()
	if got := tbl.heap.UsedHeapSize(); got != 0 {
		t.Fatalf("UsedHeapSize after collecting an all-removed table = %d, want 0", got)
	}
}
