package shmstore

import (
	"context"
	"crypto/md5"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/tcshare/shmstore/internal/guard"
	"github.com/tcshare/shmstore/internal/hashtbl"
)

// md5Hasher satisfies Hasher with the stdlib's 16-byte MD5 sum, a stand-in
// for whatever collision-resistant hash a real caller would supply.
type md5Hasher struct{}

func (md5Hasher) Hash(key []byte) [16]byte { return md5.Sum(key) }

type stringCodec struct{}

func (stringCodec) Marshal(v any) ([]byte, error) { return []byte(v.(string)), nil }
func (stringCodec) Unmarshal(data []byte) (any, error) { return string(data), nil }

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		GlobalSizeB:  4096,
		HeapSize:     1 << 20,
		DepTablePow:  8,
		HashTablePow: 8,
	}
}

// connectMasterAndWorker brings up one region and maps it twice in this
// process, once as master and once as worker — standing in for a real
// fork the way internal/deptbl and internal/hashtbl's own concurrency
// tests stand goroutines in for worker processes. Because the region is
// mapped at a fixed virtual address backed by the same file descriptor,
// both mappings alias the same physical pages, so this is a faithful
// simulation rather than two independent copies.
func connectMasterAndWorker(t *testing.T, cfg Config) (master, worker *Store) {
	t.Helper()
	connector, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	master, err = Connect(connector, true, cfg, md5Hasher{}, stringCodec{})
	if err != nil {
		t.Fatalf("Connect(master): %v", err)
	}
	worker, err = Connect(connector, false, cfg, md5Hasher{}, stringCodec{})
	if err != nil {
		master.Close()
		t.Fatalf("Connect(worker): %v", err)
	}
	t.Cleanup(func() {
		worker.Close()
		master.Close()
	})
	return master, worker
}

func TestNextCounterFallbackIsMonotonic(t *testing.T) {
	first := NextCounter()
	second := NextCounter()
	if second <= first {
		t.Fatalf("NextCounter() fallback not monotonic: %d then %d", first, second)
	}
}

func TestEndToEndBlobDepsAndContent(t *testing.T) {
	master, worker := connectMasterAndWorker(t, testConfig(t))
	ctx := context.Background()

	if err := master.StoreBlob([]byte("build-42")); err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	got, err := worker.LoadBlob()
	if err != nil {
		t.Fatalf("worker LoadBlob: %v", err)
	}
	if string(got) != "build-42" {
		t.Fatalf("LoadBlob = %q, want build-42", got)
	}

	if err := master.AddDep(1, 2); err != nil {
		t.Fatalf("AddDep: %v", err)
	}
	if err := master.AddDep(1, 3); err != nil {
		t.Fatalf("AddDep: %v", err)
	}
	if err := master.AddDep(1, 2); err != nil { // idempotent
		t.Fatalf("AddDep (duplicate): %v", err)
	}
	vals, err := worker.GetDep(1)
	if err != nil {
		t.Fatalf("GetDep: %v", err)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	if len(vals) != 2 || vals[0] != 2 || vals[1] != 3 {
		t.Fatalf("GetDep(1) = %v, want [2 3]", vals)
	}

	if _, _, err := master.Add([]byte("widget-1"), "spanner"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	val, err := worker.Get(ctx, []byte("widget-1"))
	if err != nil {
		t.Fatalf("worker Get: %v", err)
	}
	if val.(string) != "spanner" {
		t.Fatalf("Get = %q, want spanner", val)
	}

	res, err := worker.Mem(ctx, []byte("widget-1"))
	if err != nil || res != hashtbl.MemPresent {
		t.Fatalf("Mem = %v, %v, want MemPresent", res, err)
	}
}

func TestWorkerCannotPerformMasterOnlyOps(t *testing.T) {
	_, worker := connectMasterAndWorker(t, testConfig(t))

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected a guard violation panic for worker calling Remove")
		}
		if _, ok := rec.(*guard.Violation); !ok {
			t.Fatalf("recovered %#v, want *guard.Violation", rec)
		}
	}()
	worker.Remove([]byte("anything"))
}

func TestMasterRemoveRequiresAllowRemoves(t *testing.T) {
	master, _ := connectMasterAndWorker(t, testConfig(t))
	if _, _, err := master.Add([]byte("k"), "v"); err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a guard violation when allow_removes is unset")
			}
		}()
		master.Remove([]byte("k"))
	}()

	master.SetAllowRemoves(true)
	if err := master.Remove([]byte("k")); err != nil {
		t.Fatalf("Remove after SetAllowRemoves(true): %v", err)
	}

	ctx := context.Background()
	res, err := master.Mem(ctx, []byte("k"))
	if err != nil || res != hashtbl.MemRemoved {
		t.Fatalf("Mem(removed) = %v, %v, want MemRemoved", res, err)
	}
}

func TestSaveAndLoadSinkRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.SinkPath = filepath.Join(t.TempDir(), "deps.sqlite")
	cfg.BuildRevision = "test-rev"

	connector, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	master, err := Connect(connector, true, cfg, md5Hasher{}, stringCodec{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer master.Close()

	if err := master.AddDep(10, 20); err != nil {
		t.Fatal(err)
	}
	if err := master.AddDep(10, 21); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := master.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(cfg.SinkPath); err != nil {
		t.Fatalf("sink file missing after Save: %v", err)
	}

	reader, err := master.LoadSink(ctx, false)
	if err != nil {
		t.Fatalf("LoadSink: %v", err)
	}
	defer reader.Close()

	vals, err := reader.GetDep(ctx, 10)
	if err != nil {
		t.Fatalf("GetDep via sink: %v", err)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	if len(vals) != 2 || vals[0] != 20 || vals[1] != 21 {
		t.Fatalf("sink GetDep(10) = %v, want [20 21]", vals)
	}
}
