// Package persistence provides optional, best-effort durability for the
// simulator's state: a single-row snapshot of the full domain map, and an
// append-only log of every frame seen on the wire. A disabled Store is a
// no-op so the simulator runs entirely in memory by default.
package persistence

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// TrafficRecord is one logged frame, independent of the simulator's
// in-memory session/role types so this package has no upward dependency.
type TrafficRecord struct {
	Timestamp   time.Time
	SessionID   string
	Role        string
	Direction   string
	MID         string
	Revision    int
	Length      int
	RawASCII    string
	DecodedData string
}

// Store is a best-effort SQLite-backed persistence layer. The zero value
// (via NewDisabled) performs no I/O at all.
type Store struct {
	db      *sql.DB
	enabled bool
}

// NewDisabled returns a Store that silently discards every operation,
// used when persistence is turned off.
func NewDisabled() *Store {
	return &Store{enabled: false}
}

// Open opens (creating if necessary) a SQLite database at dsn and runs
// any pending embedded migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: set WAL mode: %w", err)
	}
	s := &Store{db: db, enabled: true}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// LoadState returns the last saved state snapshot's raw JSON, or nil if
// persistence is disabled or nothing has been saved yet.
func (s *Store) LoadState() ([]byte, error) {
	if !s.enabled {
		return nil, nil
	}
	var stateJSON string
	err := s.db.QueryRow("SELECT state_json FROM state_snapshot WHERE id = 1").Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: load state: %w", err)
	}
	return []byte(stateJSON), nil
}

// SaveState upserts the single state-snapshot row. Errors are returned
// for visibility but callers treat persistence as best-effort and never
// fail a mutation because of them.
func (s *Store) SaveState(stateJSON []byte) error {
	if !s.enabled {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO state_snapshot (id, updated_at, state_json) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, state_json = excluded.state_json`,
		time.Now().UTC(), string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("persistence: save state: %w", err)
	}
	return nil
}

// AppendTraffic appends one frame to the traffic log.
func (s *Store) AppendTraffic(r TrafficRecord) error {
	if !s.enabled {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO traffic (timestamp, session_id, role, direction, mid, revision, length, raw_ascii, decoded_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC(), r.SessionID, r.Role, r.Direction, r.MID, r.Revision, r.Length, r.RawASCII, r.DecodedData,
	)
	if err != nil {
		return fmt.Errorf("persistence: append traffic: %w", err)
	}
	return nil
}

// Enabled reports whether this Store actually performs I/O.
func (s *Store) Enabled() bool {
	return s.enabled
}
