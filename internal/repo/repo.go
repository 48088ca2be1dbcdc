// Package repo exposes fetch/add/update/delete operations over the slices of
// the office document.
//
// Every mutation follows the same template: load the whole document, compute
// a new slice, save the whole document with that slice replaced. Mutations
// return the full updated slice so callers can re-render without another load.
package repo

import (
	"errors"
	"time"

	"github.com/JamesPrial/officedesk/internal/docstore"
)

var (
	// ErrTaskNotFound is returned when no task has the requested id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrEventNotFound is returned when no calendar event has the requested id.
	ErrEventNotFound = errors.New("event not found")
	// ErrClientNotFound is returned when no client has the requested id.
	ErrClientNotFound = errors.New("client not found")
	// ErrDuplicateClient is returned by Add when the id is already taken.
	ErrDuplicateClient = errors.New("client id already exists")
	// ErrInvalidStatus is returned for a status outside todo/in_progress/done.
	ErrInvalidStatus = errors.New("invalid task status")
	// ErrInvalidEventType is returned for an event type other than shift/reminder.
	ErrInvalidEventType = errors.New("invalid event type")
)

// timestampLayout is ISO 8601 UTC with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Repos bundles the repositories that share one gateway.
type Repos struct {
	Tasks    *TaskRepo
	Events   *EventRepo
	Clients  *ClientRepo
	Profiles *ProfileRepo
}

// New builds all repositories over gw. A nil now uses time.Now.
func New(gw *docstore.Gateway, now func() time.Time) *Repos {
	if now == nil {
		now = time.Now
	}
	return &Repos{
		Tasks:    &TaskRepo{gw: gw, now: now},
		Events:   &EventRepo{gw: gw, now: now},
		Clients:  &ClientRepo{gw: gw},
		Profiles: &ProfileRepo{gw: gw},
	}
}

func stamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
