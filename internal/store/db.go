package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const createSchema = `
CREATE TABLE IF NOT EXISTS viewer_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// DB wraps a *sql.DB holding the viewer's persisted state. The only
// state today is the encrypted credential blob, kept in a key-value
// table so the schema never needs migrating for new slots.
type DB struct {
	conn *sql.DB
}

// Open opens or creates the state database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(createSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Slot returns a handle to one named key-value slot.
func (d *DB) Slot(name string) *Slot {
	return &Slot{db: d, name: name}
}

// Slot is a single named value in viewer_state. An absent row and an
// empty string are equivalent: both read back as "".
type Slot struct {
	db   *DB
	name string
}

// Get retrieves the slot value. Returns empty string if not set.
func (s *Slot) Get() (string, error) {
	var value string
	err := s.db.conn.QueryRow("SELECT value FROM viewer_state WHERE key = ?", s.name).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Set upserts the slot value.
func (s *Slot) Set(value string) error {
	_, err := s.db.conn.Exec(
		`INSERT INTO viewer_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		s.name, value,
	)
	return err
}

// Delete removes the slot row. Deleting an absent slot is a no-op.
func (s *Slot) Delete() error {
	_, err := s.db.conn.Exec("DELETE FROM viewer_state WHERE key = ?", s.name)
	return err
}
