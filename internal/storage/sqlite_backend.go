package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register sqlite driver
)

// DefaultDocumentKey is the key under which fallback stores keep the document.
const DefaultDocumentKey = "officedesk_data"

// schemaDDL defines the key-value schema shared by the fallback stores.
//
// One row per key; the document is stored as JSON text under DocumentKey.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS kv_store (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT ''
);
`

// SQLiteBackend implements DocumentBackend as a local key-value fallback store.
//
// It stands in for browser local storage when no document file has been
// granted. Every load re-parses; there is no modification stamp. Uses WAL
// mode so a second process can read while another writes.
type SQLiteBackend struct {
	// DBPath is the absolute path to the SQLite database file.
	DBPath string

	// DocumentKey is the row key holding the document.
	DocumentKey string
}

// NewSQLiteBackend creates a new SQLiteBackend and initializes the database schema.
//
// Parent directories will be created automatically if they don't exist.
// Returns an error if schema creation fails.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	backend := &SQLiteBackend{
		DBPath:      dbPath,
		DocumentKey: DefaultDocumentKey,
	}

	if err := backend.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return backend, nil
}

// Kind reports KindFallback.
func (b *SQLiteBackend) Kind() Kind {
	return KindFallback
}

// Describe returns the database path and key.
func (b *SQLiteBackend) Describe() string {
	return fmt.Sprintf("sqlite:%s#%s", b.DBPath, b.DocumentKey)
}

// connect opens a new database connection with WAL mode enabled.
//
// Creates parent directories if needed.
func (b *SQLiteBackend) connect() (*sql.DB, error) {
	dir := filepath.Dir(b.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", b.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	return db, nil
}

// ensureSchema creates the key-value table if it doesn't exist.
func (b *SQLiteBackend) ensureSchema() error {
	db, err := b.connect()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}

	return nil
}

// Read returns the stored document. A missing row yields Snapshot{Exists: false}.
func (b *SQLiteBackend) Read(ctx context.Context) (Snapshot, error) {
	db, err := b.connect()
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = db.Close() }()

	var value string
	err = db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, b.DocumentKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query document: %w", err)
	}

	return Snapshot{Data: []byte(value), Exists: true}, nil
}

// Write replaces the stored document in a single UPSERT statement.
func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	db, err := b.connect()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at)
		 VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.DocumentKey, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	return nil
}
