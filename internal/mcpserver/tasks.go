package mcpserver

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JamesPrial/officedesk/internal/intake"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// HandleListTasks returns tasks matching the optional filters.
func (h *Handlers) HandleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := h.repos.Tasks.Fetch(ctx)
	if err != nil {
		return h.errorResult("List tasks", err), nil
	}

	clientID := request.GetString("client_id", "")
	status := request.GetString("status", "")
	assignee := request.GetString("assignee_id", "")

	out := make([]storage.Task, 0, len(tasks))
	for _, t := range tasks {
		if clientID != "" && t.ClientID != clientID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		if assignee != "" && t.AssigneeID != assignee {
			continue
		}
		out = append(out, t)
	}
	return jsonResult(out)
}

// HandleAssignTask validates an assignment and stores it with AddOrReplace.
// Validation failures are reported before the document is touched.
func (h *Handlers) HandleAssignTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := &intake.Assignment{
		ID:           request.GetString("id", ""),
		ClientID:     request.GetString("client_id", ""),
		ClientName:   request.GetString("client_name", ""),
		Category:     request.GetString("category", ""),
		WorkItem:     request.GetString("work_item", ""),
		Year:         request.GetString("year", ""),
		Status:       request.GetString("status", ""),
		Note:         request.GetString("note", ""),
		AssigneeID:   request.GetString("assignee_id", ""),
		AssigneeName: request.GetString("assignee_name", ""),
		IsMisc:       request.GetBool("is_misc", false),
	}
	if err := a.Validate(); err != nil {
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			return mcp.NewToolResultError(verr.Error()), nil
		}
		return h.errorResult("Assign task", err), nil
	}

	task := intake.BuildTask(a)
	tasks, err := h.repos.Tasks.AddOrReplace(ctx, task, h.actorFor(request))
	if err != nil {
		return h.errorResult("Assign task", err), nil
	}
	for _, t := range tasks {
		if (task.IsMisc && t.IsMisc && (task.ID == "" || t.ID == task.ID)) || (!task.IsMisc && !t.IsMisc && t.SameCell(task)) {
			return jsonResult(t)
		}
	}
	return jsonResult(tasks)
}

// HandleUpdateTaskStatus changes a task's status. completion_date is only
// applied when the argument is present.
func (h *Handlers) HandleUpdateTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: status"), nil
	}

	var completion *string
	if args := request.GetArguments(); args != nil {
		if v, ok := args["completion_date"].(string); ok {
			completion = &v
		}
	}

	tasks, err := h.repos.Tasks.UpdateStatus(ctx, id, status, h.actorFor(request), completion)
	if err != nil {
		return h.errorResult("Update status", err), nil
	}
	return taskResult(tasks, id)
}

// HandleUpdateTaskNote replaces a task's note.
func (h *Handlers) HandleUpdateTaskNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	args := request.GetArguments()
	note, ok := args["note"].(string)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: note"), nil
	}

	tasks, err := h.repos.Tasks.UpdateNote(ctx, id, note, h.actorFor(request))
	if err != nil {
		return h.errorResult("Update note", err), nil
	}
	return taskResult(tasks, id)
}

// HandleReassignTask changes the assignee of a task.
func (h *Handlers) HandleReassignTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	assigneeID, err := request.RequireString("assignee_id")
	if err != nil || assigneeID == "" {
		return mcp.NewToolResultError("Missing required parameter: assignee_id"), nil
	}
	assigneeName, err := request.RequireString("assignee_name")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: assignee_name"), nil
	}

	tasks, err := h.repos.Tasks.Reassign(ctx, id, assigneeID, assigneeName, h.actorFor(request))
	if err != nil {
		return h.errorResult("Reassign task", err), nil
	}
	return taskResult(tasks, id)
}

// HandleSetTaskNA sets or clears the not-applicable mark.
func (h *Handlers) HandleSetTaskNA(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	isNA, ok := request.GetArguments()["is_na"].(bool)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: is_na"), nil
	}

	tasks, err := h.repos.Tasks.SetNA(ctx, id, isNA, h.actorFor(request))
	if err != nil {
		return h.errorResult("Set not applicable", err), nil
	}
	return taskResult(tasks, id)
}

// HandleDeleteTask removes a task.
func (h *Handlers) HandleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	tasks, err := h.repos.Tasks.Delete(ctx, id)
	if err != nil {
		return h.errorResult("Delete task", err), nil
	}
	return jsonResult(map[string]any{"deleted": id, "remaining": len(tasks)})
}

func taskResult(tasks []storage.Task, id string) (*mcp.CallToolResult, error) {
	for _, t := range tasks {
		if t.ID == id {
			return jsonResult(t)
		}
	}
	return jsonResult(tasks)
}
