package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/peerlink/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS buffered_events (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	object     TEXT NOT NULL,
	actor      INTEGER NOT NULL,
	payload    BLOB,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_buffered_events_room ON buffered_events(room, seq);
CREATE INDEX IF NOT EXISTS idx_buffered_events_object ON buffered_events(room, object);
`

// SQLiteStore implements store.EventLog for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append stores an event at the end of the room's log.
func (s *SQLiteStore) Append(ctx context.Context, ev *store.BufferedEvent) error {
	query := `
		INSERT INTO buffered_events (room, kind, object, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, query, ev.Room, ev.Kind, ev.Object, ev.Actor, ev.Payload, createdAt)
	if err != nil {
		return fmt.Errorf("insert buffered event: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	ev.Seq = seq
	ev.CreatedAt = createdAt
	return nil
}

// List returns the room's events in append order.
func (s *SQLiteStore) List(ctx context.Context, room string) ([]*store.BufferedEvent, error) {
	query := `
		SELECT seq, room, kind, object, actor, payload, created_at
		FROM buffered_events
		WHERE room = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, room)
	if err != nil {
		return nil, fmt.Errorf("query buffered events: %w", err)
	}
	defer rows.Close()

	var events []*store.BufferedEvent
	for rows.Next() {
		var ev store.BufferedEvent
		if err := rows.Scan(&ev.Seq, &ev.Room, &ev.Kind, &ev.Object, &ev.Actor, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan buffered event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buffered events: %w", err)
	}
	return events, nil
}

// RemoveObject drops every event that refers to the object.
func (s *SQLiteStore) RemoveObject(ctx context.Context, room, object string) error {
	query := `DELETE FROM buffered_events WHERE room = ? AND object = ?`
	if _, err := s.db.ExecContext(ctx, query, room, object); err != nil {
		return fmt.Errorf("delete object events: %w", err)
	}
	return nil
}

// DropRoom forgets the room's log entirely.
func (s *SQLiteStore) DropRoom(ctx context.Context, room string) error {
	query := `DELETE FROM buffered_events WHERE room = ?`
	if _, err := s.db.ExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("delete room events: %w", err)
	}
	return nil
}

var _ store.EventLog = (*SQLiteStore)(nil)
