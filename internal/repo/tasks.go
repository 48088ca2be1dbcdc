package repo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// notePreviewLen is the number of runes of a note recorded in history.
const notePreviewLen = 20

// TaskRepo manages the tasks slice.
type TaskRepo struct {
	gw  *docstore.Gateway
	now func() time.Time
}

// Fetch returns all tasks.
func (r *TaskRepo) Fetch(ctx context.Context) ([]storage.Task, error) {
	doc, err := r.gw.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

// ForClient returns the tasks belonging to clientID.
func (r *TaskRepo) ForClient(ctx context.Context, clientID string) ([]storage.Task, error) {
	tasks, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Task, 0)
	for _, t := range tasks {
		if t.ClientID == clientID {
			out = append(out, t)
		}
	}
	return out, nil
}

// AddOrReplace stores task as the assignment of its matrix cell.
//
// Non-misc tasks are matched by (clientId, category, workItem, year); misc
// tasks by id. A match keeps its id and history and gains a new history entry
// at the front; the history is then truncated to storage.MaxHistory. Without
// a match the task is inserted at the front of the list with a single-entry
// history, under a fresh id when its own id is empty or already taken. Any
// history on task itself is ignored.
func (r *TaskRepo) AddOrReplace(ctx context.Context, task storage.Task, actor string) ([]storage.Task, error) {
	if task.Status == "" {
		task.Status = storage.StatusTodo
	}
	if !validStatus(task.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, task.Status)
	}

	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		now := r.now()
		idx := r.find(doc.Tasks, task)

		next := task
		next.LastUpdatedBy = actor
		next.LastUpdatedAt = stamp(now)

		if idx < 0 {
			if next.ID == "" || indexByID(doc.Tasks, next.ID) >= 0 {
				next.ID = newTaskID(doc.Tasks, next, now)
			}
			next.History = []storage.HistoryEntry{
				entry(now, actor, "Assigned", assigneeDetails(next)),
			}
			tasks := make([]storage.Task, 0, len(doc.Tasks)+1)
			tasks = append(tasks, next)
			tasks = append(tasks, doc.Tasks...)
			return doc.WithTasks(tasks), nil
		}

		prev := doc.Tasks[idx]
		next.ID = prev.ID
		action := "Updated assignment"
		if prev.AssigneeID == "" {
			action = "Assigned"
		}
		next.History = prependHistory(prev.History, entry(now, actor, action, assigneeDetails(next)))
		return doc.WithTasks(replaceTask(doc.Tasks, idx, next)), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

// UpdateStatus sets the status of task id.
//
// When completionDate is non-nil it overwrites the task's completion date;
// an empty string clears it. lastUpdatedBy/lastUpdatedAt are always stamped
// and a history entry records the transition.
func (r *TaskRepo) UpdateStatus(ctx context.Context, id, status, actor string, completionDate *string) ([]storage.Task, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.mutate(ctx, id, func(t *storage.Task, now time.Time) {
		details := fmt.Sprintf("%s -> %s", statusLabel(t.Status), statusLabel(status))
		t.Status = status
		if completionDate != nil {
			t.CompletionDate = *completionDate
			if *completionDate != "" {
				details += " (" + *completionDate + ")"
			}
		}
		t.History = prependHistory(t.History, entry(now, actor, "Status changed", details))
		t.LastUpdatedBy = actor
		t.LastUpdatedAt = stamp(now)
	})
}

// UpdateNote replaces the note of task id. The history entry records a
// preview of at most 20 characters followed by "..." when longer.
func (r *TaskRepo) UpdateNote(ctx context.Context, id, note, actor string) ([]storage.Task, error) {
	return r.mutate(ctx, id, func(t *storage.Task, now time.Time) {
		t.Note = note
		t.History = prependHistory(t.History, entry(now, actor, "Note updated", notePreview(note)))
		t.LastUpdatedBy = actor
		t.LastUpdatedAt = stamp(now)
	})
}

// Reassign moves task id to a different assignee.
func (r *TaskRepo) Reassign(ctx context.Context, id, assigneeID, assigneeName, actor string) ([]storage.Task, error) {
	return r.mutate(ctx, id, func(t *storage.Task, now time.Time) {
		details := fmt.Sprintf("%s -> %s", orDash(t.AssigneeName), orDash(assigneeName))
		t.AssigneeID = assigneeID
		t.AssigneeName = assigneeName
		t.History = prependHistory(t.History, entry(now, actor, "Reassigned", details))
		t.LastUpdatedBy = actor
		t.LastUpdatedAt = stamp(now)
	})
}

// SetNA marks task id as not applicable (or clears the mark).
func (r *TaskRepo) SetNA(ctx context.Context, id string, isNA bool, actor string) ([]storage.Task, error) {
	return r.mutate(ctx, id, func(t *storage.Task, now time.Time) {
		t.IsNA = isNA
		action := "Marked N/A"
		if !isNA {
			action = "Cleared N/A"
		}
		t.History = prependHistory(t.History, entry(now, actor, action, ""))
		t.LastUpdatedBy = actor
		t.LastUpdatedAt = stamp(now)
	})
}

// Delete removes task id. Deleting an unknown id changes nothing and returns
// the current list.
func (r *TaskRepo) Delete(ctx context.Context, id string) ([]storage.Task, error) {
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		idx := indexByID(doc.Tasks, id)
		if idx < 0 {
			return doc, nil
		}
		tasks := make([]storage.Task, 0, len(doc.Tasks)-1)
		tasks = append(tasks, doc.Tasks[:idx]...)
		tasks = append(tasks, doc.Tasks[idx+1:]...)
		return doc.WithTasks(tasks), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

// mutate applies fn to a copy of task id and saves it in place.
func (r *TaskRepo) mutate(ctx context.Context, id string, fn func(t *storage.Task, now time.Time)) ([]storage.Task, error) {
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		idx := indexByID(doc.Tasks, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
		}
		t := doc.Tasks[idx]
		fn(&t, r.now())
		return doc.WithTasks(replaceTask(doc.Tasks, idx, t)), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Tasks, nil
}

func (r *TaskRepo) find(tasks []storage.Task, task storage.Task) int {
	if task.IsMisc {
		if task.ID == "" {
			return -1
		}
		return indexByID(tasks, task.ID)
	}
	for i, t := range tasks {
		if !t.IsMisc && t.SameCell(task) {
			return i
		}
	}
	return -1
}

func indexByID(tasks []storage.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func replaceTask(tasks []storage.Task, idx int, t storage.Task) []storage.Task {
	out := make([]storage.Task, len(tasks))
	copy(out, tasks)
	out[idx] = t
	return out
}

// prependHistory returns a new slice with e first, capped at storage.MaxHistory.
func prependHistory(history []storage.HistoryEntry, e storage.HistoryEntry) []storage.HistoryEntry {
	n := len(history) + 1
	if n > storage.MaxHistory {
		n = storage.MaxHistory
	}
	out := make([]storage.HistoryEntry, 0, n)
	out = append(out, e)
	out = append(out, history[:n-1]...)
	return out
}

func entry(now time.Time, actor, action, details string) storage.HistoryEntry {
	return storage.HistoryEntry{
		Timestamp: stamp(now),
		UserName:  actor,
		Action:    action,
		Details:   details,
	}
}

func notePreview(note string) string {
	runes := []rune(note)
	if len(runes) <= notePreviewLen {
		return note
	}
	return string(runes[:notePreviewLen]) + "..."
}

func assigneeDetails(t storage.Task) string {
	if t.AssigneeName == "" {
		return ""
	}
	return "assignee: " + t.AssigneeName
}

// newTaskID uses the creation time in milliseconds for matrix tasks, bumped
// until unused, and a UUID for misc tasks.
func newTaskID(tasks []storage.Task, t storage.Task, now time.Time) string {
	if t.IsMisc {
		return uuid.NewString()
	}
	ms := now.UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if indexByID(tasks, id) < 0 {
			return id
		}
		ms++
	}
}

func validStatus(s string) bool {
	switch s {
	case storage.StatusTodo, storage.StatusInProgress, storage.StatusDone:
		return true
	}
	return false
}

func statusLabel(s string) string {
	switch s {
	case storage.StatusTodo:
		return "todo"
	case storage.StatusInProgress:
		return "in progress"
	case storage.StatusDone:
		return "done"
	default:
		return orDash(s)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
