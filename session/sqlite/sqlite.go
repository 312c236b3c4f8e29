// Package sqlite provides a core.SessionStore persisting session snapshots in
// SQLite through the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/hupe1980/chatreview/core"
)

// Store archives session snapshots in a single table. The dialogue and the
// score history are kept as one JSON document per session.
type Store struct {
	db *sql.DB
}

// Config contains configuration for the SQLite store.
type Config struct {
	Path string // Path to the database file, ":memory:" when empty
}

// New opens (and migrates) the database at cfg.Path.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A private in-memory database exists once per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			role_id TEXT NOT NULL,
			scenario_id TEXT NOT NULL,
			state TEXT NOT NULL,
			payload TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			finished_at DATETIME
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Save inserts or replaces the snapshot.
func (s *Store) Save(ctx context.Context, snap core.SessionSnapshot) error {
	if snap.ID == "" {
		return core.Errorf("sqlite.Save", core.ErrInvalidArgument, "snapshot without id")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	var finished sql.NullTime
	if snap.Finished != nil {
		finished = sql.NullTime{Time: snap.Finished.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, role_id, scenario_id, state, payload, started_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.ID,
		snap.RoleID,
		snap.ScenarioID,
		string(snap.State),
		string(payload),
		snap.Created.UTC(),
		nonZero(snap.Updated),
		finished,
	)
	if err != nil {
		return core.E("sqlite.Save", core.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Get loads the snapshot stored for id.
func (s *Store) Get(ctx context.Context, id string) (core.SessionSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM sessions WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SessionSnapshot{}, core.Errorf("sqlite.Get", core.ErrNotFound, "session %s", id)
	}
	if err != nil {
		return core.SessionSnapshot{}, core.E("sqlite.Get", core.ErrUpstreamUnavailable, err)
	}

	var snap core.SessionSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return core.SessionSnapshot{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return snap, nil
}

// List returns all stored session ids, oldest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY started_at, id")
	if err != nil {
		return nil, core.E("sqlite.List", core.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
