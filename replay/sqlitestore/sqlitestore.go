// Package sqlitestore provides a SQLite-backed cache store for recorded runs.
//
// Unlike the flat-file stores, a SQLite cache holds many runs side by side:
// each recording gets its own run ID and an old run is only gone when
// explicitly deleted. Useful when replays of more than the latest run matter.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"io"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/sim-replay/sim-replay/replay"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    model TEXT NOT NULL,
    created_at TEXT NOT NULL,
    step_rate INTEGER NOT NULL,
    compression TEXT NOT NULL,
    steps INTEGER NOT NULL DEFAULT 0,
    params BLOB
);

CREATE TABLE IF NOT EXISTS snapshots (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    step INTEGER NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (run_id, step)
);
`

// DB is a handle to a SQLite cache database. One DB can record new runs and
// replay stored ones.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite cache database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// SQLite works best with a single writer. One connection carries the
	// recording transaction, the second serves reads; WAL keeps them from
	// blocking each other.
	db.SetMaxOpenConns(2)

	if _, err := db.Exec(schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database handle. Stores obtained from this DB must be
// closed first.
func (d *DB) Close() error {
	return d.db.Close()
}

// Runs lists the headers of all recorded runs, newest first.
func (d *DB) Runs() ([]replay.Header, error) {
	rows, err := d.db.Query(`
		SELECT run_id, version, model, created_at, step_rate, compression, steps, params
		FROM runs ORDER BY created_at DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var headers []replay.Header
	for rows.Next() {
		var h replay.Header
		if err := rows.Scan(&h.RunID, &h.Version, &h.Model, &h.CreatedAt,
			&h.StepRate, &h.Compression, &h.Steps, &h.Params); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// DeleteRun removes a recorded run and its snapshots.
func (d *DB) DeleteRun(runID string) error {
	if _, err := d.db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	return nil
}

// Record starts recording a new run described by header. The returned store
// is not durable until Close returns.
func (d *DB) Record(header *replay.Header) (*Store, error) {
	if header == nil {
		return nil, fmt.Errorf("sqlite store: nil header")
	}
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting recording transaction: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO runs (run_id, version, model, created_at, step_rate, compression, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		header.RunID, header.Version, header.Model, header.CreatedAt,
		header.StepRate, string(header.Compression), header.Params)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("inserting run %s: %w", header.RunID, err)
	}
	return &Store{header: header, recording: true, tx: tx}, nil
}

// Replay opens a recorded run for replay. An empty runID replays the most
// recently recorded run.
func (d *DB) Replay(runID string) (*Store, error) {
	row := d.db.QueryRow(`
		SELECT run_id, version, model, created_at, step_rate, compression, steps, params
		FROM runs WHERE run_id = IIF(? = '', (SELECT run_id FROM runs ORDER BY created_at DESC, run_id DESC LIMIT 1), ?)`,
		runID, runID)
	var h replay.Header
	if err := row.Scan(&h.RunID, &h.Version, &h.Model, &h.CreatedAt,
		&h.StepRate, &h.Compression, &h.Steps, &h.Params); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no recorded run %q in cache database", runID)
		}
		return nil, fmt.Errorf("loading run %q: %w", runID, err)
	}
	if h.Version != replay.CacheFormatVersion {
		return nil, fmt.Errorf("run %s: format version %d, want %d",
			h.RunID, h.Version, replay.CacheFormatVersion)
	}
	rows, err := d.db.Query(`SELECT data FROM snapshots WHERE run_id = ? ORDER BY step`, h.RunID)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots for run %s: %w", h.RunID, err)
	}
	return &Store{header: &h, rows: rows}, nil
}

// Store is one recording or replay of a run inside a cache database.
// It implements replay.Store.
type Store struct {
	header    *replay.Header
	recording bool
	tx        *sql.Tx   // recording
	step      int       // next snapshot index while recording
	rows      *sql.Rows // replaying
	closed    bool
}

// Header returns the run metadata.
func (s *Store) Header() *replay.Header { return s.header }

// Append compresses a snapshot and inserts it under the next step index.
func (s *Store) Append(snapshot []byte) error {
	if !s.recording {
		return fmt.Errorf("sqlite store: opened for replay")
	}
	if s.closed {
		return fmt.Errorf("sqlite store: already closed")
	}
	data, err := s.header.Compression.Compress(snapshot)
	if err != nil {
		return err
	}
	if _, err := s.tx.Exec(`INSERT INTO snapshots (run_id, step, data) VALUES (?, ?, ?)`,
		s.header.RunID, s.step, data); err != nil {
		return fmt.Errorf("inserting snapshot %d: %w", s.step, err)
	}
	s.step++
	return nil
}

// Next returns the next recorded snapshot, or io.EOF when the run is
// exhausted.
func (s *Store) Next() ([]byte, error) {
	if s.recording {
		return nil, fmt.Errorf("sqlite store: opened for recording")
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating snapshots: %w", err)
		}
		return nil, io.EOF
	}
	var data []byte
	if err := s.rows.Scan(&data); err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return s.header.Compression.Decompress(data)
}

// Close finalizes the store. A recording store stamps the final step count on
// its run row and commits; until then the run is invisible to replays.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.recording {
		s.header.Steps = s.step
		if _, err := s.tx.Exec(`UPDATE runs SET steps = ? WHERE run_id = ?`,
			s.step, s.header.RunID); err != nil {
			s.tx.Rollback()
			return fmt.Errorf("finalizing run %s: %w", s.header.RunID, err)
		}
		if err := s.tx.Commit(); err != nil {
			return fmt.Errorf("committing run %s: %w", s.header.RunID, err)
		}
		return nil
	}
	return s.rows.Close()
}
