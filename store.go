package shmstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/tcshare/shmstore/internal/deptbl"
	"github.com/tcshare/shmstore/internal/globalblob"
	"github.com/tcshare/shmstore/internal/guard"
	"github.com/tcshare/shmstore/internal/hashtbl"
	"github.com/tcshare/shmstore/internal/persist"
	"github.com/tcshare/shmstore/internal/region"
	"github.com/tcshare/shmstore/internal/telemetry"
)

// Hasher supplies the store's content-table key hash, per spec.md §6: a
// 16-byte (128-bit) hash of which only the first 8 bytes are
// significant. The caller guarantees collision resistance over its
// domain; the store trusts it entirely.
type Hasher interface {
	Hash(key []byte) [16]byte
}

// Connector is the opaque handle Init returns. Workers pass it to
// Connect to map the same region. Safe to pass across os/exec the way
// internal/region.Connector documents.
type Connector struct {
	inner *region.Connector
}

// Init creates the shared-memory region per spec.md §4.1 and returns a
// Connector for the master and its future workers to Connect with.
func Init(cfg Config) (*Connector, error) {
	resolved := resolveConfig(&cfg)
	rc, err := region.Init(region.Config{
		GlobalSizeB:  resolved.GlobalSizeB,
		HeapSize:     resolved.HeapSize,
		DepTablePow:  resolved.DepTablePow,
		HashTablePow: resolved.HashTablePow,
		ShmDir:       resolved.ShmDir,
		MinimumAvail: resolved.MinimumAvail,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &Connector{inner: rc}, nil
}

// Store is the facade spec.md §6 describes: global blob slot, dependency
// table, content table, and an optional persistence sink, all wired
// against one mapped region.
type Store struct {
	region *region.Region
	role   guard.Role

	blob    *globalblob.Blob
	deps    *deptbl.Table
	content *hashtbl.Table

	hasher Hasher
	codec  hashtbl.Codec

	sinkPath      string
	buildRevision string

	log           *telemetry.Logger
	memWaitSample *telemetry.Sampler
	compactSample *telemetry.Sampler
}

// Connect maps the region connector names in the current process and
// wires every component against it, per spec.md §4.1's connect(). If
// isMaster, it records this process's pid in the master-pid cell.
func Connect(connector *Connector, isMaster bool, cfg Config, hasher Hasher, codec hashtbl.Codec) (*Store, error) {
	resolved := resolveConfig(&cfg)

	r, err := region.Connect(connector.inner, isMaster)
	if err != nil {
		return nil, classify(err)
	}

	blob, err := globalblob.New(r.GlobalBlobBytes())
	if err != nil {
		r.Close()
		return nil, classify(err)
	}

	deps, err := deptbl.New(r.DeptblSlotWords(), r.DeptblBindingWords(), &r.Globals.DepEntryCount, &r.Globals.DepUsedSlots)
	if err != nil {
		r.Close()
		return nil, classify(err)
	}

	heap := hashtbl.NewHeap(r.HeapBytes(), &r.Globals.HeapTop, &r.Globals.WastedHeap)
	content, err := hashtbl.New(r.HashtblSlotWords(), heap, &r.Globals.HashtblCount, codec)
	if err != nil {
		r.Close()
		return nil, classify(err)
	}

	role := guard.Role{IsMaster: isMaster, Pid: os.Getpid()}
	log := telemetry.New(telemetry.ParseLevel(resolved.LogLevel), resolved.SampleRate)
	log.Infof("connected pid=%d master=%v heap=%d dep_slots=%d hash_slots=%d", role.Pid, isMaster, resolved.HeapSize, uint64(1)<<resolved.DepTablePow, uint64(1)<<resolved.HashTablePow)

	return &Store{
		region:        r,
		role:          role,
		blob:          blob,
		deps:          deps,
		content:       content,
		hasher:        hasher,
		codec:         codec,
		sinkPath:      resolved.SinkPath,
		buildRevision: resolved.BuildRevision,
		log:           log,
		memWaitSample: new(telemetry.Sampler),
		compactSample: new(telemetry.Sampler),
	}, nil
}

// Close unmaps the region. It does not remove the backing file.
func (s *Store) Close() error { return s.region.Close() }

// --- Global blob slot, spec.md §4.3 ---

// StoreBlob writes data into the single global blob slot. Master-only.
func (s *Store) StoreBlob(data []byte) error {
	guard.AssertMaster(s.role)
	return classify(s.blob.Store(data))
}

// LoadBlob returns a copy of the global blob. Any process may call this.
func (s *Store) LoadBlob() ([]byte, error) {
	b, err := s.blob.Load()
	return b, classify(err)
}

// ClearBlob resets the global blob to empty. Master-only.
func (s *Store) ClearBlob() {
	guard.AssertMaster(s.role)
	s.blob.Clear()
}

// --- Dependency table, spec.md §4.4 ---

// AddDep inserts the edge (key, val), idempotently.
func (s *Store) AddDep(key, val uint32) error {
	if err := guard.CheckShouldExit(s.region.Globals); err != nil {
		return classify(err)
	}
	return classify(s.deps.AddDep(key, val))
}

// GetDep returns every value key maps to, order unspecified. The
// allow-dependency-table-reads flag defaults to enabled at region
// connect time (region.Connect), matching the original's init-time
// default; callers that disable it via SetAllowDependencyTableReads
// will see this assert fire instead of reading stale state.
func (s *Store) GetDep(key uint32) ([]uint32, error) {
	if err := guard.CheckShouldExit(s.region.Globals); err != nil {
		return nil, classify(err)
	}
	guard.AssertAllowDepReads(s.region.Globals)
	return s.deps.GetDep(key), nil
}

func (s *Store) DepUsedSlots() uint64  { return s.deps.UsedSlots() }
func (s *Store) DepTotalSlots() uint64 { return s.deps.TotalSlots() }
func (s *Store) DepEntryCount() uint64 { return s.deps.EntryCount() }

// ResetDeps zeroes both the deptbl and bindings tables. Master-only,
// quiescence required.
func (s *Store) ResetDeps() {
	guard.AssertMaster(s.role)
	guard.AssertAllowRemoves(s.region.Globals)
	s.deps.Reset()
}

// --- Content table, spec.md §4.5 ---

func (s *Store) hashKey(key []byte) uint64 {
	h := s.hasher.Hash(key)
	return binary.LittleEndian.Uint64(h[:8])
}

// Add stores data under key, returning the allocated heap bytes and the
// original payload size, or hashtbl.ErrWriteLost if a concurrent writer
// won the race (the reader will still see that writer's value).
func (s *Store) Add(key []byte, data any) (allocBytes, origBytes int64, err error) {
	if err := guard.CheckShouldExit(s.region.Globals); err != nil {
		return 0, 0, classify(err)
	}
	guard.AssertWritesEnabled()
	allocBytes, origBytes, err = s.content.Add(s.hashKey(key), data)
	if err != nil {
		s.log.Debugf("add failed: %v", err)
	}
	return allocBytes, origBytes, classify(err)
}

// Mem reports whether key is present, removed, or absent. A caller
// racing a concurrent writer busy-waits inside content.Mem; that wait is
// the one hot path sampled here rather than logged unconditionally.
func (s *Store) Mem(ctx context.Context, key []byte) (hashtbl.MemResult, error) {
	if err := guard.CheckShouldExit(s.region.Globals); err != nil {
		return 0, classify(err)
	}
	r, err := s.content.Mem(ctx, s.hashKey(key))
	if err != nil {
		s.log.Sampled(s.memWaitSample, telemetry.LevelWarn, "mem wait failed: %v", err)
	}
	return r, classify(err)
}

// Get returns the decoded value stored at key. key must be present.
func (s *Store) Get(ctx context.Context, key []byte) (any, error) {
	if err := guard.CheckShouldExit(s.region.Globals); err != nil {
		return nil, classify(err)
	}
	v, err := s.content.Get(ctx, s.hashKey(key))
	return v, classify(err)
}

// GetSize returns the original (uncompressed) payload size at key.
func (s *Store) GetSize(ctx context.Context, key []byte) (int, error) {
	if err := guard.CheckShouldExit(s.region.Globals); err != nil {
		return 0, classify(err)
	}
	n, err := s.content.GetSize(ctx, s.hashKey(key))
	return n, classify(err)
}

// Move relocates the entry at key1 to key2. Master-only, quiescence
// required; key1 must be present, key2 must be absent.
func (s *Store) Move(key1, key2 []byte) error {
	guard.AssertMaster(s.role)
	guard.AssertAllowRemoves(s.region.Globals)
	return classify(s.content.Move(s.hashKey(key1), s.hashKey(key2)))
}

// Remove clears key's entry, accumulating wasted heap bytes until the
// next compaction. Master-only, quiescence required.
func (s *Store) Remove(key []byte) error {
	guard.AssertMaster(s.role)
	guard.AssertAllowRemoves(s.region.Globals)
	return classify(s.content.Remove(s.hashKey(key)))
}

// --- Compaction, spec.md §4.6 ---

// ShouldCompact reports whether the content table's heap has enough
// reclaimable waste to justify a compaction pass.
func (s *Store) ShouldCompact(aggressive bool) bool {
	return s.content.ShouldCollect(aggressive)
}

// Compact runs the mark-and-sweep compactor. Master-only, quiescence
// required.
func (s *Store) Compact() {
	guard.AssertMaster(s.role)
	guard.AssertAllowRemoves(s.region.Globals)
	s.log.Sampled(s.compactSample, telemetry.LevelInfo, "compaction pass starting")
	s.content.Collect()
}

// --- Coordination, spec.md §4.2/§4.8 ---

// NextCounter returns the region's next monotonic counter value.
func (s *Store) NextCounter() uint64 { return s.region.Globals.NextCounter() }

// NextCounter returns the next value of the monotonic counter without a
// live Store, for callers that need one before Init/Connect has run, per
// spec.md §4.2 ("if called before init, use a process-local counter
// instead"). Values from this fallback share no sequence with any
// region's counter.
func NextCounter() uint64 { return region.NextProcessLocalCounter() }

// CheckShouldExit returns guard.ErrWorkerShouldExit if the master has
// raised the stop flag and this process has not opted out of early exit.
func (s *Store) CheckShouldExit() error {
	err := guard.CheckShouldExit(s.region.Globals)
	if err != nil {
		s.log.Debugf("worker pid=%d exiting: %v", s.role.Pid, err)
	}
	return classify(err)
}

// SetStopFlag raises or clears the region-global stop flag. Master-only.
func (s *Store) SetStopFlag(stop bool) {
	guard.AssertMaster(s.role)
	s.region.Globals.SetStopFlag(stop)
}

// SetAllowRemoves toggles the quiescent-phase flag gating master-only
// remove/move/compaction operations. Master-only.
func (s *Store) SetAllowRemoves(allow bool) {
	guard.AssertMaster(s.role)
	s.region.Globals.SetAllowRemoves(allow)
}

// SetAllowDependencyTableReads toggles whether GetDep is currently
// permitted. Master-only.
func (s *Store) SetAllowDependencyTableReads(allow bool) {
	guard.AssertMaster(s.role)
	s.region.Globals.SetAllowDependencyTableReads(allow)
}

// --- Persistence sink, spec.md §4.7/§6 ---

// Save walks the dependency table and writes it to the configured sink
// path, creating the file if needed.
func (s *Store) Save(ctx context.Context) error {
	if s.sinkPath == "" {
		return fmt.Errorf("shmstore: no sink path configured (FILE_INFO_ON_DISK_PATH)")
	}
	db, err := sql.Open("sqlite", s.sinkPath)
	if err != nil {
		s.log.Warnf("opening sink %s: %v", s.sinkPath, err)
		return fmt.Errorf("shmstore: opening sink: %w", err)
	}
	defer db.Close()
	if err := persist.Save(ctx, db, s.deps.Snapshot(), s.buildRevision); err != nil {
		s.log.Warnf("saving sink %s: %v", s.sinkPath, err)
		return err
	}
	s.log.Infof("saved dependency sink to %s", s.sinkPath)
	return nil
}

// SinkReader answers GetDep queries directly against the persisted sink,
// bypassing the in-memory deptbl, per spec.md §6.
type SinkReader struct {
	db *sql.DB
	r  *persist.Reader
}

// LoadSink opens and validates the configured sink path for direct
// GetDep queries. Callers should Close the returned SinkReader.
func (s *Store) LoadSink(ctx context.Context, ignoreBuildRevision bool) (*SinkReader, error) {
	if s.sinkPath == "" {
		return nil, fmt.Errorf("shmstore: no sink path configured (FILE_INFO_ON_DISK_PATH)")
	}
	db, err := sql.Open("sqlite", s.sinkPath)
	if err != nil {
		return nil, fmt.Errorf("shmstore: opening sink: %w", err)
	}
	r, err := persist.Load(ctx, db, ignoreBuildRevision, s.buildRevision)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SinkReader{db: db, r: r}, nil
}

// GetDep queries the sink directly for key's edge values.
func (sr *SinkReader) GetDep(ctx context.Context, key uint32) ([]uint32, error) {
	return sr.r.GetDep(ctx, key)
}

// ListKeys returns every key recorded in the sink, ascending.
func (sr *SinkReader) ListKeys(ctx context.Context) ([]uint32, error) {
	return sr.r.ListKeys(ctx)
}

// Close closes the sink's database handle.
func (sr *SinkReader) Close() error { return sr.db.Close() }
