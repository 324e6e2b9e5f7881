// Package outbox keeps voice notes whose upload failed in a local SQLite
// database, so they can be uploaded again without re-recording.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one stored voice note.
type Entry struct {
	ID              int64
	Name            string
	MIMEType        string
	Folder          string
	DurationSeconds float64
	Size            int
	Attempts        int
	LastError       string
	CreatedAt       time.Time
	// Data is only populated by Get.
	Data []byte
}

// migration is one schema step, applied once in version order.
type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{1, "create_notes", `
		CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			folder TEXT NOT NULL DEFAULT '',
			duration_seconds REAL NOT NULL,
			data BLOB NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`},
	{2, "index_created_at", `CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at)`},
}

// Store is the SQLite outbox.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow sets the clock used to stamp new entries.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens or creates the outbox database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create outbox directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping outbox: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	for _, m := range migrations {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&n)
		if err != nil {
			return fmt.Errorf("read migration %d: %w", m.version, err)
		}
		if n > 0 {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

// Save stores a note and returns its ID.
func (s *Store) Save(ctx context.Context, e Entry) (int64, error) {
	if len(e.Data) == 0 {
		return 0, ErrEmptyNote
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (name, mime_type, folder, duration_seconds, data, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Name, e.MIMEType, e.Folder, e.DurationSeconds, e.Data, e.LastError, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("save voice note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read voice note id: %w", err)
	}
	return id, nil
}

// List returns every stored note, oldest first, without audio data.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, mime_type, folder, duration_seconds, length(data),
		       attempts, last_error, created_at
		FROM notes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list voice notes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Name, &e.MIMEType, &e.Folder, &e.DurationSeconds,
			&e.Size, &e.Attempts, &e.LastError, &created); err != nil {
			return nil, fmt.Errorf("scan voice note: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one note including its audio data.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	var e Entry
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, mime_type, folder, duration_seconds, data,
		       attempts, last_error, created_at
		FROM notes WHERE id = ?`, id).Scan(
		&e.ID, &e.Name, &e.MIMEType, &e.Folder, &e.DurationSeconds, &e.Data,
		&e.Attempts, &e.LastError, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get voice note: %w", err)
	}
	e.Size = len(e.Data)
	e.CreatedAt = time.UnixMilli(created)
	return e, nil
}

// RecordFailure counts a failed upload attempt.
func (s *Store) RecordFailure(ctx context.Context, id int64, msg string) error {
	return s.update(ctx, "UPDATE notes SET attempts = attempts + 1, last_error = ? WHERE id = ?", msg, id)
}

// Delete removes a note, typically after a successful upload.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.update(ctx, "DELETE FROM notes WHERE id = ?", id)
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update outbox: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, args[len(args)-1])
	}
	return nil
}
