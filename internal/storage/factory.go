package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JamesPrial/officedesk/internal/pathutil"
)

// Backend type names accepted by GetStorageBackend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and locates a document backend.
//
// Empty fields fall back to environment variables:
//   - OFFICEDESK_BACKEND: "file" (default when a document path is known), "sqlite" or "postgres"
//   - OFFICEDESK_DOCUMENT: document file path
//   - OFFICEDESK_SQLITE_PATH: SQLite fallback database path (default: <DataDir>/fallback.db)
//   - OFFICEDESK_POSTGRES_DSN: PostgreSQL connection string
type Options struct {
	Backend      string
	DataDir      string
	DocumentPath string
	SQLitePath   string
	PostgresDSN  string
}

// GetStorageBackend returns the configured document backend.
//
// With no backend named anywhere, file storage is chosen when a document path
// is known and the SQLite fallback store otherwise. Absolute and "~" paths
// are taken as granted; relative paths resolve against DataDir and must stay
// inside it.
//
// Returns error if the backend type is unknown, a required setting is missing,
// or a path escapes DataDir.
func GetStorageBackend(opts Options) (DocumentBackend, error) {
	backendType := strings.ToLower(strings.TrimSpace(firstNonEmpty(opts.Backend, os.Getenv("OFFICEDESK_BACKEND"))))
	docPath := firstNonEmpty(opts.DocumentPath, os.Getenv("OFFICEDESK_DOCUMENT"))
	if backendType == "" {
		backendType = BackendSQLite
		if strings.TrimSpace(docPath) != "" {
			backendType = BackendFile
		}
	}

	switch backendType {
	case BackendFile, "json":
		if strings.TrimSpace(docPath) == "" {
			return nil, fmt.Errorf("file backend requires a document path")
		}
		path, err := resolvePath(opts.DataDir, docPath)
		if err != nil {
			return nil, fmt.Errorf("invalid document path: %w", err)
		}
		return NewJSONBackend(path), nil

	case BackendSQLite:
		sqlitePath := firstNonEmpty(opts.SQLitePath, os.Getenv("OFFICEDESK_SQLITE_PATH"))
		if sqlitePath == "" {
			if strings.TrimSpace(opts.DataDir) == "" {
				return nil, fmt.Errorf("sqlite backend requires a database path or data directory")
			}
			sqlitePath = filepath.Join(opts.DataDir, "fallback.db")
		}
		path, err := resolvePath(opts.DataDir, sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("invalid SQLite path: %w", err)
		}
		b, err := NewSQLiteBackend(path)
		if err != nil {
			return nil, err
		}
		return b, nil

	case BackendPostgres:
		dsn := firstNonEmpty(opts.PostgresDSN, os.Getenv("OFFICEDESK_POSTGRES_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("postgres backend requires a connection string")
		}
		b, err := NewPostgresBackend(dsn)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %q. Expected 'file', 'sqlite' or 'postgres'", backendType)
	}
}

// resolvePath confines relative paths to dataDir. Absolute and "~" paths, or
// any path when no dataDir is configured, are only expanded.
func resolvePath(dataDir, p string) (string, error) {
	trimmed := strings.TrimSpace(p)
	if strings.TrimSpace(dataDir) == "" || filepath.IsAbs(trimmed) || strings.HasPrefix(trimmed, "~") {
		return pathutil.Expand(trimmed)
	}
	return pathutil.ResolveWithin(dataDir, trimmed)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
