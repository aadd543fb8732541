// Package db provides the local durable store for DocFlow form records.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3, WAL mode) with a
// single forms table keyed by a locally assigned integer id, plus secondary
// indices on status and form type. It owns the record lifecycle (create,
// replace-in-place, delete), the status update path used by the sync engine,
// and the aggregate counts shown to the user.
//
// Layout:
//   - Database file: <data_dir>/docflow.db
//   - WAL mode: concurrent readers during writes
//   - Indexes: status, form_type, last_modified
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection holding form records.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. Any failure to open or configure
// the database is reported as ErrStorageUnavailable.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %w", ErrStorageUnavailable, err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrStorageUnavailable, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrStorageUnavailable, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}

	return db, nil
}

// Initialize opens the database at path and creates the schema if it doesn't
// exist. It is safe to call against an existing database.
func Initialize(ctx context.Context, path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// SetClock replaces the timestamp source used for lastModified.
func (db *DB) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	db.now = now
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the forms table and its indices if they don't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS forms (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		form_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		fields TEXT,                         -- JSON object
		checklists TEXT,                     -- JSON object
		mitigations TEXT,                    -- JSON array
		workers TEXT,                        -- JSON array
		document TEXT,                       -- JSON, rendered attachment
		last_modified INTEGER NOT NULL,      -- unix nanoseconds
		sync_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,

		-- Remote outcome
		remote_id TEXT,
		document_url TEXT,
		signature_urls TEXT                  -- JSON object
	);

	CREATE INDEX IF NOT EXISTS idx_forms_status ON forms(status);
	CREATE INDEX IF NOT EXISTS idx_forms_form_type ON forms(form_type);
	CREATE INDEX IF NOT EXISTS idx_forms_last_modified ON forms(last_modified);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %w", ErrStorageUnavailable, err)
	}

	return nil
}
