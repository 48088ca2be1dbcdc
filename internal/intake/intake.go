// Package intake reads and validates task assignment requests.
//
// Validation happens before the repository layer is touched: an assignment
// that fails here is never persisted. Used by cmd/assign-task and the MCP
// assign_task tool.
package intake

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/JamesPrial/officedesk/internal/storage"
)

// UnknownValue is the actor recorded when a request names none.
const UnknownValue = "unknown"

// Assignment is the JSON payload of an assignment request.
type Assignment struct {
	// Actor is the display name written into history. Optional.
	Actor string `json:"actor"`

	// ID selects a misc task to replace. Matrix tasks are matched by cell.
	ID string `json:"id,omitempty"`

	ClientID       string `json:"clientId"`
	ClientName     string `json:"clientName"`
	Category       string `json:"category"`
	WorkItem       string `json:"workItem"`
	Year           string `json:"year"`
	Status         string `json:"status"`
	Note           string `json:"note"`
	AssigneeID     string `json:"assigneeId"`
	AssigneeName   string `json:"assigneeName"`
	CompletionDate string `json:"completionDate"`
	IsNA           bool   `json:"isNA"`
	IsMisc         bool   `json:"isMisc"`
}

// ValidationError lists every problem found in an assignment.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid assignment: " + strings.Join(e.Problems, "; ")
}

// ReadAssignment decodes one assignment from r and validates it.
//
// Returns a decode error for malformed JSON and *ValidationError when the
// request is well-formed but incomplete.
func ReadAssignment(r io.Reader) (*Assignment, error) {
	var a Assignment
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode assignment: %w", err)
	}
	a.trim()
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the fields an assignment needs. Matrix tasks need the full
// cell address; misc tasks need a work item describing them. Both need an
// assignee.
func (a *Assignment) Validate() error {
	var problems []string
	if strings.TrimSpace(a.AssigneeID) == "" {
		problems = append(problems, "no assignee selected")
	}
	if a.IsMisc {
		if strings.TrimSpace(a.WorkItem) == "" {
			problems = append(problems, "misc task needs a work item")
		}
	} else {
		for _, f := range []struct{ name, value string }{
			{"clientId", a.ClientID},
			{"category", a.Category},
			{"workItem", a.WorkItem},
			{"year", a.Year},
		} {
			if strings.TrimSpace(f.value) == "" {
				problems = append(problems, "missing "+f.name)
			}
		}
	}
	switch a.Status {
	case "", storage.StatusTodo, storage.StatusInProgress, storage.StatusDone:
	default:
		problems = append(problems, fmt.Sprintf("unknown status %q", a.Status))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ActorOr returns the request's actor, then fallback, then UnknownValue.
func (a *Assignment) ActorOr(fallback string) string {
	if a.Actor != "" {
		return a.Actor
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return UnknownValue
}

// BuildTask converts a validated assignment into the task handed to
// repo.TaskRepo.AddOrReplace. Status defaults to todo; history is left for the
// repository to fill.
func BuildTask(a *Assignment) storage.Task {
	status := a.Status
	if status == "" {
		status = storage.StatusTodo
	}
	t := storage.Task{
		ClientID:       a.ClientID,
		ClientName:     a.ClientName,
		Category:       a.Category,
		WorkItem:       a.WorkItem,
		Year:           a.Year,
		Status:         status,
		Note:           a.Note,
		AssigneeID:     a.AssigneeID,
		AssigneeName:   a.AssigneeName,
		CompletionDate: a.CompletionDate,
		IsNA:           a.IsNA,
		IsMisc:         a.IsMisc,
	}
	if a.IsMisc {
		t.ID = a.ID
	}
	return t
}

func (a *Assignment) trim() {
	for _, p := range []*string{
		&a.Actor, &a.ID, &a.ClientID, &a.ClientName, &a.Category, &a.WorkItem,
		&a.Year, &a.Status, &a.AssigneeID, &a.AssigneeName, &a.CompletionDate,
	} {
		*p = strings.TrimSpace(*p)
	}
}
