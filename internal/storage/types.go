// Package storage provides the document model and persistence backends for officedesk.
//
// This package defines the single JSON document that holds all dashboard state
// and the DocumentBackend contract implemented by the file, SQLite and PostgreSQL
// backends. Backends only move bytes; caching and concurrency policy live in the
// docstore package.
package storage

import (
	"context"
	"encoding/json"
)

// MaxHistory is the number of history entries retained per task.
// Older entries are dropped silently.
const MaxHistory = 20

// Task status values.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Calendar event types.
const (
	EventShift    = "shift"
	EventReminder = "reminder"
)

// HistoryEntry records one mutation of a task. Entries are immutable once created.
type HistoryEntry struct {
	// Timestamp is an ISO 8601 UTC timestamp.
	Timestamp string `json:"timestamp"`

	// UserName is the display name of the actor.
	UserName string `json:"userName"`

	// Action is a short human-readable description of the mutation.
	Action string `json:"action"`

	// Details carries optional extra context (e.g. a note preview).
	Details string `json:"details,omitempty"`
}

// Task is one cell of the client/work-item progress matrix, or an ad-hoc misc task.
//
// Non-misc tasks are unique per (ClientID, Category, WorkItem, Year). This is
// enforced at write time by find-or-replace, not by the schema.
type Task struct {
	ID             string         `json:"id"`
	ClientID       string         `json:"clientId"`
	ClientName     string         `json:"clientName"`
	Category       string         `json:"category"`
	WorkItem       string         `json:"workItem"`
	Year           string         `json:"year"`
	Status         string         `json:"status"`
	Note           string         `json:"note"`
	AssigneeID     string         `json:"assigneeId"`
	AssigneeName   string         `json:"assigneeName"`
	CompletionDate string         `json:"completionDate"`
	IsNA           bool           `json:"isNA"`
	IsMisc         bool           `json:"isMisc"`
	LastUpdatedBy  string         `json:"lastUpdatedBy"`
	LastUpdatedAt  string         `json:"lastUpdatedAt"`
	History        []HistoryEntry `json:"history"`
}

// SameCell reports whether t and other address the same matrix cell.
func (t Task) SameCell(other Task) bool {
	return t.ClientID == other.ClientID &&
		t.Category == other.Category &&
		t.WorkItem == other.WorkItem &&
		t.Year == other.Year
}

// CalendarEvent is an entry on a user's calendar.
//
// Reminders are visible only to their owner; shifts are visible to their owner
// and to supervisors.
type CalendarEvent struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"ownerId"`
	OwnerName   string `json:"ownerName"`
	CreatorID   string `json:"creatorId"`
	CreatedAt   string `json:"createdAt"`
}

// ClientProfile holds free-form notes about a client. At most one exists per client.
type ClientProfile struct {
	ClientID        string   `json:"clientId"`
	SpecialNotes    string   `json:"specialNotes"`
	AccountingNotes string   `json:"accountingNotes"`
	Tags            []string `json:"tags"`
}

// Document is the single persisted unit holding all dashboard state.
//
// Every mutation reads the entire Document, replaces one slice and writes the
// entire Document back. A *Document returned by a load must be treated as
// read-only; use the With* helpers to derive a modified copy.
type Document struct {
	Tasks          []Task          `json:"tasks"`
	Events         []CalendarEvent `json:"events"`
	Clients        []Client        `json:"clients"`
	ClientProfiles []ClientProfile `json:"clientProfiles"`

	// Undecoded holds stored array elements that could not be decoded, keyed
	// by slice name. Marshal appends them to their slice unchanged.
	Undecoded map[string][]json.RawMessage `json:"-"`
}

// Slice names as they appear in the stored document.
const (
	SliceTasks          = "tasks"
	SliceEvents         = "events"
	SliceClients        = "clients"
	SliceClientProfiles = "clientProfiles"
)

// EmptyDocument returns a document with every slice empty but non-nil.
func EmptyDocument() *Document {
	return &Document{
		Tasks:          make([]Task, 0),
		Events:         make([]CalendarEvent, 0),
		Clients:        make([]Client, 0),
		ClientProfiles: make([]ClientProfile, 0),
	}
}

// WithTasks returns a shallow copy of d with the task slice replaced.
func (d *Document) WithTasks(tasks []Task) *Document {
	cp := *d
	cp.Tasks = tasks
	return &cp
}

// WithEvents returns a shallow copy of d with the event slice replaced.
func (d *Document) WithEvents(events []CalendarEvent) *Document {
	cp := *d
	cp.Events = events
	return &cp
}

// WithClients returns a shallow copy of d with the client slice replaced.
func (d *Document) WithClients(clients []Client) *Document {
	cp := *d
	cp.Clients = clients
	return &cp
}

// WithClientProfiles returns a shallow copy of d with the profile slice replaced.
func (d *Document) WithClientProfiles(profiles []ClientProfile) *Document {
	cp := *d
	cp.ClientProfiles = profiles
	return &cp
}

// Marshal serializes the document with 2-space indentation and a trailing
// newline. Undecoded elements follow the decoded ones in each slice.
func (d *Document) Marshal() ([]byte, error) {
	n := Normalize(d)
	var v any = n
	if len(n.Undecoded) > 0 {
		v = struct {
			Tasks          []any `json:"tasks"`
			Events         []any `json:"events"`
			Clients        []any `json:"clients"`
			ClientProfiles []any `json:"clientProfiles"`
		}{
			Tasks:          withUndecoded(n.Tasks, n.Undecoded[SliceTasks]),
			Events:         withUndecoded(n.Events, n.Undecoded[SliceEvents]),
			Clients:        withUndecoded(n.Clients, n.Undecoded[SliceClients]),
			ClientProfiles: withUndecoded(n.ClientProfiles, n.Undecoded[SliceClientProfiles]),
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// UndecodedCount returns the number of elements kept in Undecoded.
func (d *Document) UndecodedCount() int {
	n := 0
	for _, elems := range d.Undecoded {
		n += len(elems)
	}
	return n
}

func withUndecoded[T any](elems []T, raw []json.RawMessage) []any {
	out := make([]any, 0, len(elems)+len(raw))
	for _, e := range elems {
		out = append(out, e)
	}
	for _, r := range raw {
		out = append(out, r)
	}
	return out
}

// Kind distinguishes file storage from fallback key-value storage.
type Kind int

const (
	// KindFile is a user-granted document file. Loads are cached by modification stamp.
	KindFile Kind = iota
	// KindFallback is a key-value store. Every load re-parses.
	KindFallback
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Snapshot is the raw result of reading a backend.
type Snapshot struct {
	// Data is the serialized document. Empty when Exists is false.
	Data []byte

	// Stamp is the modification stamp (Unix nanoseconds) for file storage.
	// Fallback stores report zero.
	Stamp int64

	// Exists is false when the store holds no document yet.
	Exists bool
}

// DocumentBackend defines the contract for document persistence.
//
// Implementations must make Write atomic: readers observe either the previous
// document or the complete new one, never a partial write.
type DocumentBackend interface {
	// Kind reports whether loads through this backend may be cached by stamp.
	Kind() Kind

	// Read returns the current serialized document and its stamp.
	//
	// A missing fallback value is reported as Snapshot{Exists: false} with a nil
	// error. A missing document file is an error: the granted file was moved or
	// deleted.
	Read(ctx context.Context) (Snapshot, error)

	// Write atomically replaces the stored document with data.
	Write(ctx context.Context, data []byte) error

	// Describe returns a short location string for logs and status output.
	Describe() string
}

// StampReader is implemented by backends that can report the current
// modification stamp without reading the document.
type StampReader interface {
	Stamp(ctx context.Context) (int64, error)
}
