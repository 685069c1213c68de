// Package sqlite provides a SQLite-backed capture-log sink.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registered as "sqlite3"

	"github.com/papercomputeco/splice/pkg/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	logged_at  TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	entry      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_logged_at ON entries (logged_at);
`

// Sink persists entries as JSON rows in a SQLite database.
type Sink struct {
	db *sql.DB
}

// New opens (or creates) the capture database at dbPath. The path can be
// ":memory:" for an in-memory database.
func New(dbPath string) (*Sink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Sinks are written from multiple workers; WAL avoids writer stalls.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Sink{db: db}, nil
}

func (s *Sink) Emit(entry *record.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO entries (logged_at, note, entry) VALUES (?, ?, ?)",
		entry.LoggedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		string(entry.Note),
		string(data),
	)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}
