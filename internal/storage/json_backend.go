package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// JSONBackend implements DocumentBackend using a user-granted JSON file.
//
// Writes go to a temporary file in the same directory which then replaces the
// document with os.Rename, so readers in other processes never observe a
// partial document.
type JSONBackend struct {
	// DocFile is the absolute path to the JSON document file.
	DocFile string
}

// NewJSONBackend creates a new JSONBackend for the given file path.
//
// The docFile parameter should be an absolute path. The file is not created
// here; use CreateIfMissing when connecting to a brand-new document.
func NewJSONBackend(docFile string) *JSONBackend {
	return &JSONBackend{
		DocFile: docFile,
	}
}

// Kind reports KindFile: loads may be cached by modification stamp.
func (b *JSONBackend) Kind() Kind {
	return KindFile
}

// Describe returns the document path.
func (b *JSONBackend) Describe() string {
	return b.DocFile
}

// Read returns the document bytes and the file's modification time in Unix
// nanoseconds.
//
// A missing file is an error, not an empty document: the granted file was
// moved or deleted and the caller must treat the connection as lost.
func (b *JSONBackend) Read(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	f, err := os.Open(b.DocFile)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Snapshot{}, fmt.Errorf("stat document: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read document: %w", err)
	}

	return Snapshot{
		Data:   data,
		Stamp:  info.ModTime().UnixNano(),
		Exists: true,
	}, nil
}

// Stamp returns the file's current modification time without reading it.
func (b *JSONBackend) Stamp(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := os.Stat(b.DocFile)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixNano(), nil
}

// Write atomically replaces the document file with data.
//
// Creates parent directories if needed. Uses a temporary file and os.Rename
// for atomic replacement to ensure data consistency even if the process
// is interrupted.
//
// Returns an error if there's a file system error during directory creation,
// file writing, or atomic rename operation.
func (b *JSONBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Ensure parent directory exists
	dir := filepath.Dir(b.DocFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Create temporary file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".officedesk-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Write data to temp file
	_, writeErr := tmpFile.Write(data)
	syncErr := tmpFile.Sync()
	closeErr := tmpFile.Close()

	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return writeErr
	}
	if syncErr != nil {
		_ = os.Remove(tmpPath)
		return syncErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return closeErr
	}

	// Atomically rename temp file to target file
	if err := os.Rename(tmpPath, b.DocFile); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return nil
}

// CreateIfMissing writes an empty document when the file does not exist yet.
// An existing file is left untouched.
func (b *JSONBackend) CreateIfMissing(ctx context.Context) error {
	if _, err := os.Stat(b.DocFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := EmptyDocument().Marshal()
	if err != nil {
		return err
	}
	return b.Write(ctx, data)
}
