// Package persist implements the optional relational mirror of the
// dependency table, per spec.md §4.7: a save step walks the deptbl and
// writes a header row plus one row per key, and a load step can answer
// GetDep queries directly from the file, bypassing the in-memory table.
//
// This reproduces the contract of the original's "#ifndef NO_SQLITE3"
// sink (original_source/hack/heap/hh_shared.c) over database/sql and
// modernc.org/sqlite (pure Go, no cgo) rather than the original's
// libsqlite3 linkage.
package persist

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
)

// sinkMagic identifies a file written by this package, mirroring the
// original implementation's fixed 64-bit header constant.
var sinkMagic = uint64(0xFACEFACEFACEB000)

// ErrBadMagic is returned by Load when the file's header row doesn't
// carry sinkMagic, meaning it wasn't written by this package (or a
// compatible one).
var ErrBadMagic = errors.New("persist: bad header magic")

// ErrBuildRevisionMismatch is returned by Load when the caller asked for
// a specific build revision and the file records a different one.
var ErrBuildRevisionMismatch = errors.New("persist: build revision mismatch")

// ErrUnreachable mirrors spec.md §7's "sink returned a value outside the
// contracted {row, done} set": database/sql's Rows.Next contract is
// exactly that pair (true means row, false means done), with any
// iteration failure surfaced separately via Rows.Err. ListKeys checks
// Err after a false Next specifically to catch that third case.
var ErrUnreachable = errors.New("persist: row iterator ended outside the row/done contract")

const schema = `
CREATE TABLE IF NOT EXISTS HEADER (
	magic INTEGER NOT NULL,
	build_revision TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS DEPTABLE (
	key_vertex INTEGER PRIMARY KEY,
	value_vertex BLOB NOT NULL
);
`

// Save writes table (normally deptbl.Table.Snapshot()'s result) to db,
// creating the schema if needed and writing the HEADER row. Re-running
// Save against a db that already has a HEADER row merges: each key's
// row is replaced (update-mode merge, per spec.md §4.7 — the original's
// chosen merge semantics are last-writer-wins per key, not a union of
// old and new values).
func Save(ctx context.Context, db *sql.DB, table map[uint32][]uint32, buildRevision string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("persist: creating schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM HEADER`); err != nil {
		return fmt.Errorf("persist: clearing header: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO HEADER (magic, build_revision) VALUES (?, ?)`,
		int64(sinkMagic), buildRevision); err != nil {
		return fmt.Errorf("persist: writing header: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO DEPTABLE (key_vertex, value_vertex) VALUES (?, ?)
		ON CONFLICT(key_vertex) DO UPDATE SET value_vertex = excluded.value_vertex
	`)
	if err != nil {
		return fmt.Errorf("persist: preparing upsert: %w", err)
	}
	defer stmt.Close()

	for key, values := range table {
		if _, err := stmt.ExecContext(ctx, int64(key), encodeValues(values)); err != nil {
			return fmt.Errorf("persist: upserting key %d: %w", key, err)
		}
	}

	return tx.Commit()
}

// Reader answers GetDep queries directly against a persisted sink,
// bypassing the in-memory deptbl, per spec.md §6.
type Reader struct {
	db            *sql.DB
	buildRevision string
}

// Load opens and validates a persisted sink. If ignoreBuildRevision is
// false and wantRevision is non-empty, the file's recorded build
// revision must match exactly.
func Load(ctx context.Context, db *sql.DB, ignoreBuildRevision bool, wantRevision string) (*Reader, error) {
	var magic int64
	var gotRevision string
	err := db.QueryRowContext(ctx, `SELECT magic, build_revision FROM HEADER LIMIT 1`).Scan(&magic, &gotRevision)
	if err != nil {
		return nil, fmt.Errorf("persist: reading header: %w", err)
	}
	if uint64(magic) != sinkMagic {
		return nil, ErrBadMagic
	}
	if !ignoreBuildRevision && wantRevision != "" && gotRevision != wantRevision {
		return nil, fmt.Errorf("%w: file has %q, want %q", ErrBuildRevisionMismatch, gotRevision, wantRevision)
	}
	return &Reader{db: db, buildRevision: gotRevision}, nil
}

// BuildRevision returns the revision string recorded in the file's
// header row.
func (r *Reader) BuildRevision() string { return r.buildRevision }

// GetDep queries DEPTABLE directly for key's edge values.
func (r *Reader) GetDep(ctx context.Context, key uint32) ([]uint32, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT value_vertex FROM DEPTABLE WHERE key_vertex = ?`, int64(key)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: querying key %d: %w", key, err)
	}
	return decodeValues(blob), nil
}

// ListKeys returns every key recorded in DEPTABLE, in ascending order.
func (r *Reader) ListKeys(ctx context.Context) ([]uint32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key_vertex FROM DEPTABLE ORDER BY key_vertex`)
	if err != nil {
		return nil, fmt.Errorf("persist: listing keys: %w", err)
	}
	defer rows.Close()

	var keys []uint32
	for rows.Next() {
		var k int64
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("persist: scanning key: %w", err)
		}
		keys = append(keys, uint32(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return keys, nil
}

// encodeValues concatenates values as little-endian uint32s, per
// spec.md's "byte-array-of-values" row shape.
func encodeValues(values []uint32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}

func decodeValues(blob []byte) []uint32 {
	if len(blob) == 0 {
		return nil
	}
	out := make([]uint32, len(blob)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(blob[4*i:])
	}
	return out
}
