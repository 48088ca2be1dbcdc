// Package handlestore remembers which document store the user granted access
// to, so the next session can reconnect without asking again.
//
// The handle is kept in ~/.config/officedesk/handle.toml. Only one handle is
// stored; Put overwrites it.
package handlestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/JamesPrial/officedesk/internal/pathutil"
)

// DefaultPath is where the handle is stored when no path is given.
const DefaultPath = "~/.config/officedesk/handle.toml"

// ErrRestoreFailed is returned by Get when a stored handle exists but cannot
// be read back. Callers log it and fall back to configured storage.
var ErrRestoreFailed = errors.New("restore failed")

// Handle identifies a granted document store.
type Handle struct {
	// Mode is "file", "sqlite" or "postgres".
	Mode string `toml:"mode"`

	// Path is the document file or SQLite database path.
	Path string `toml:"path,omitempty"`

	// DSN is the PostgreSQL connection string.
	DSN string `toml:"dsn,omitempty"`

	GrantedAt time.Time `toml:"granted_at"`
}

// Store persists a single Handle in a TOML file.
type Store struct {
	path string
}

// New returns a Store backed by path, or DefaultPath when path is empty.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	resolved, err := pathutil.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("resolve handle path: %w", err)
	}
	return &Store{path: resolved}, nil
}

// Path returns the resolved file path.
func (s *Store) Path() string { return s.path }

// Put replaces the stored handle. The file is written to a temporary file
// and renamed into place, and is readable only by the owner since a DSN may
// carry a password.
func (s *Store) Put(h Handle) error {
	if strings.TrimSpace(h.Mode) == "" {
		return fmt.Errorf("handle mode is empty")
	}
	if h.GrantedAt.IsZero() {
		h.GrantedAt = time.Now().UTC()
	}

	data, err := toml.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal handle: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create handle dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".handle-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp handle: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write handle: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod handle: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace handle: %w", err)
	}
	return nil
}

// Get returns the stored handle. ok is false when nothing was stored. Any
// other failure wraps ErrRestoreFailed.
func (s *Store) Get() (h Handle, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Handle{}, false, nil
	}
	if err != nil {
		return Handle{}, false, fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}

	if err := toml.Unmarshal(data, &h); err != nil {
		return Handle{}, false, fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}
	if strings.TrimSpace(h.Mode) == "" {
		return Handle{}, false, fmt.Errorf("%w: handle has no mode", ErrRestoreFailed)
	}
	return h, true, nil
}

// Clear forgets the stored handle. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove handle: %w", err)
	}
	return nil
}
