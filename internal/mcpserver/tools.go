package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var stringItems = mcp.Items(map[string]any{"type": "string"})

func actorParam() mcp.ToolOption {
	return mcp.WithString("actor",
		mcp.Description("Display name recorded in task history (defaults to the configured actor)"))
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func listTasksTool() mcp.Tool {
	return mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally filtered by client, status or assignee."),
		mcp.WithString("client_id",
			mcp.Description("Only tasks of this client")),
		mcp.WithString("status",
			mcp.Description("Only tasks with this status"),
			mcp.Enum("todo", "in_progress", "done")),
		mcp.WithString("assignee_id",
			mcp.Description("Only tasks assigned to this user")),
	)
}

func assignTaskTool() mcp.Tool {
	return mcp.NewTool("assign_task",
		mcp.WithDescription("Assign a matrix cell (client, category, work item, year) or a misc task. An existing assignment of the same cell is updated and keeps its history."),
		mcp.WithString("assignee_id",
			mcp.Required(),
			mcp.Description("User the task is assigned to")),
		mcp.WithString("assignee_name",
			mcp.Description("Display name of the assignee")),
		mcp.WithString("client_id",
			mcp.Description("Client id (required unless is_misc)")),
		mcp.WithString("client_name",
			mcp.Description("Client display name")),
		mcp.WithString("category",
			mcp.Description("Work category, e.g. ACCOUNTING (required unless is_misc)")),
		mcp.WithString("work_item",
			mcp.Description("Matrix column, or the description of a misc task")),
		mcp.WithString("year",
			mcp.Description("Fiscal year (required unless is_misc)")),
		mcp.WithString("status",
			mcp.Description("Initial status (default todo)"),
			mcp.Enum("todo", "in_progress", "done")),
		mcp.WithString("note",
			mcp.Description("Free-text note")),
		mcp.WithBoolean("is_misc",
			mcp.Description("Ad-hoc task not tied to a client cell")),
		mcp.WithString("id",
			mcp.Description("Misc task id to replace")),
		actorParam(),
	)
}

func updateTaskStatusTool() mcp.Tool {
	return mcp.NewTool("update_task_status",
		mcp.WithDescription("Change the status of a task and record it in the task history."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id")),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status"),
			mcp.Enum("todo", "in_progress", "done")),
		mcp.WithString("completion_date",
			mcp.Description("Completion date to set; an empty string clears it")),
		actorParam(),
	)
}

func updateTaskNoteTool() mcp.Tool {
	return mcp.NewTool("update_task_note",
		mcp.WithDescription("Replace the note of a task."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id")),
		mcp.WithString("note",
			mcp.Required(),
			mcp.Description("New note text")),
		actorParam(),
	)
}

func reassignTaskTool() mcp.Tool {
	return mcp.NewTool("reassign_task",
		mcp.WithDescription("Hand a task to another assignee."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id")),
		mcp.WithString("assignee_id",
			mcp.Required(),
			mcp.Description("New assignee id")),
		mcp.WithString("assignee_name",
			mcp.Required(),
			mcp.Description("New assignee display name")),
		actorParam(),
	)
}

func setTaskNATool() mcp.Tool {
	return mcp.NewTool("set_task_na",
		mcp.WithDescription("Mark a task as not applicable, or clear the mark."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id")),
		mcp.WithBoolean("is_na",
			mcp.Required(),
			mcp.Description("True marks the task not applicable")),
		actorParam(),
	)
}

func deleteTaskTool() mcp.Tool {
	return mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task. Deleting an unknown id changes nothing."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id")),
	)
}

// ---------------------------------------------------------------------------
// Calendar
// ---------------------------------------------------------------------------

func listEventsTool() mcp.Tool {
	return mcp.NewTool("list_events",
		mcp.WithDescription("List calendar events. With viewer_id only the events that viewer may see are returned."),
		mcp.WithString("viewer_id",
			mcp.Description("User whose calendar is shown")),
		mcp.WithBoolean("supervisor",
			mcp.Description("Viewer is a supervisor and also sees other users' shifts")),
	)
}

func addEventTool() mcp.Tool {
	return mcp.NewTool("add_event",
		mcp.WithDescription("Add a shift or reminder to a user's calendar."),
		mcp.WithString("date",
			mcp.Required(),
			mcp.Description("Event date (YYYY-MM-DD)")),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Event type"),
			mcp.Enum("shift", "reminder")),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short title")),
		mcp.WithString("description",
			mcp.Description("Longer description")),
		mcp.WithString("owner_id",
			mcp.Required(),
			mcp.Description("User the event belongs to")),
		mcp.WithString("owner_name",
			mcp.Description("Display name of the owner")),
		mcp.WithString("creator_id",
			mcp.Description("User creating the event (defaults to owner_id)")),
	)
}

func deleteEventTool() mcp.Tool {
	return mcp.NewTool("delete_event",
		mcp.WithDescription("Delete a calendar event. Deleting an unknown id changes nothing."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Event id")),
	)
}

// ---------------------------------------------------------------------------
// Clients
// ---------------------------------------------------------------------------

func listClientsTool() mcp.Tool {
	return mcp.NewTool("list_clients",
		mcp.WithDescription("List all clients including their extended fields."),
	)
}

func addClientTool() mcp.Tool {
	return mcp.NewTool("add_client",
		mcp.WithDescription("Add a client. The id is generated when omitted."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Client name")),
		mcp.WithString("code",
			mcp.Description("Office client code")),
		mcp.WithString("id",
			mcp.Description("Client id")),
		mcp.WithObject("fields",
			mcp.Description("Extra fields stored on the client, e.g. {\"taxId\": \"12345678\"}")),
	)
}

func deleteClientTool() mcp.Tool {
	return mcp.NewTool("delete_client",
		mcp.WithDescription("Delete a client together with all of its tasks."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Client id")),
	)
}

func getClientProfileTool() mcp.Tool {
	return mcp.NewTool("get_client_profile",
		mcp.WithDescription("Get the notes and tags kept for a client. Clients without a profile yield an empty one."),
		mcp.WithString("client_id",
			mcp.Required(),
			mcp.Description("Client id")),
	)
}

func saveClientProfileTool() mcp.Tool {
	return mcp.NewTool("save_client_profile",
		mcp.WithDescription("Create or replace the profile of a client."),
		mcp.WithString("client_id",
			mcp.Required(),
			mcp.Description("Client id")),
		mcp.WithString("special_notes",
			mcp.Description("Special handling notes")),
		mcp.WithString("accounting_notes",
			mcp.Description("Accounting notes")),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			stringItems),
	)
}

// ---------------------------------------------------------------------------
// Sync
// ---------------------------------------------------------------------------

func syncStatusTool() mcp.Tool {
	return mcp.NewTool("sync_status",
		mcp.WithDescription("Report the storage connection, cached document version and polling state."),
	)
}
