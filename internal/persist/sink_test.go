package persist

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	table := map[uint32][]uint32{
		1: {2, 3},
		4: {5},
		6: {},
	}
	if err := Save(ctx, db, table, "rev-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r, err := Load(ctx, db, false, "rev-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.BuildRevision() != "rev-1" {
		t.Fatalf("BuildRevision = %q, want rev-1", r.BuildRevision())
	}

	got, err := r.GetDep(ctx, 1)
	if err != nil {
		t.Fatalf("GetDep(1): %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("GetDep(1) = %v, want [2 3]", got)
	}

	got, err = r.GetDep(ctx, 4)
	if err != nil {
		t.Fatalf("GetDep(4): %v", err)
	}
	if len(got) != 1 || got[0] != 5 {
		t.Fatalf("GetDep(4) = %v, want [5]", got)
	}

	got, err = r.GetDep(ctx, 999)
	if err != nil {
		t.Fatalf("GetDep(999): %v", err)
	}
	if got != nil {
		t.Fatalf("GetDep(999) = %v, want nil", got)
	}
}

func TestSaveUpdateModeMergesPerKey(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	if err := Save(ctx, db, map[uint32][]uint32{1: {2}}, "rev-1"); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := Save(ctx, db, map[uint32][]uint32{1: {9, 9, 9}, 2: {7}}, "rev-2"); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	r, err := Load(ctx, db, false, "rev-2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := r.GetDep(ctx, 1)
	if err != nil {
		t.Fatalf("GetDep(1): %v", err)
	}
	if len(got) != 3 || got[0] != 9 {
		t.Fatalf("GetDep(1) after update = %v, want [9 9 9]", got)
	}

	got, err = r.GetDep(ctx, 2)
	if err != nil {
		t.Fatalf("GetDep(2): %v", err)
	}
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("GetDep(2) = %v, want [7]", got)
	}
}

func TestLoadRejectsBuildRevisionMismatch(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	if err := Save(ctx, db, map[uint32][]uint32{1: {2}}, "rev-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(ctx, db, false, "rev-2"); err == nil {
		t.Fatalf("Load with mismatched revision = nil error, want error")
	}

	if _, err := Load(ctx, db, true, "rev-2"); err != nil {
		t.Fatalf("Load with ignoreBuildRevision=true: %v", err)
	}
}

func TestListKeysAscending(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	table := map[uint32][]uint32{5: {1}, 1: {2}, 3: {3}}
	if err := Save(ctx, db, table, "rev-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r, err := Load(ctx, db, false, "rev-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	keys, err := r.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	want := []uint32{1, 3, 5}
	if len(keys) != len(want) {
		t.Fatalf("ListKeys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("ListKeys = %v, want %v", keys, want)
		}
	}
}

func TestLoadRejectsMissingHeader(t *testing.T) {
	ctx := context.Background()
	db := openMemDB(t)

	if _, err := Load(ctx, db, true, ""); err == nil {
		t.Fatalf("Load on empty db = nil error, want error")
	}
}
