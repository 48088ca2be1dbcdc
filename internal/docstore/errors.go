package docstore

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by every operation while no backend is connected:
// no file was granted, the grant was not restored, or the connection was
// dropped after a read failure. Mutating operations do nothing in this state.
var ErrNotConnected = errors.New("not connected to a document store")

// ErrConflict is matched by *ConflictError via errors.Is.
var ErrConflict = errors.New("document changed since it was loaded")

// ReadError reports a failed read of the underlying store (file moved, deleted,
// permission revoked, database unreachable, or unparseable contents). Callers
// treat it as "connection lost".
type ReadError struct {
	// Location describes the backend (path or DSN-free identifier).
	Location string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read document %s: %v", e.Location, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failed write. The in-memory cache has already been
// rolled back to the last known stored state when this is returned.
type WriteError struct {
	Location string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write document %s: %v", e.Location, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ConflictError is returned in strict concurrency mode when the document file
// was modified by another writer between the load that began an update and
// the save that would end it. Nothing is written.
type ConflictError struct {
	ExpectedStamp int64
	CurrentStamp  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("document changed since load (expected stamp %d, found %d)", e.ExpectedStamp, e.CurrentStamp)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsConnectionLost reports whether err means the caller must prompt for a
// reconnect: either nothing is connected or the store could not be read.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	var re *ReadError
	return errors.Is(err, ErrNotConnected) || errors.As(err, &re)
}
