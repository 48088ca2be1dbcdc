package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JamesPrial/officedesk/internal/repo"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// HandleListEvents returns all events, or those visible to viewer_id.
func (h *Handlers) HandleListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		events []storage.CalendarEvent
		err    error
	)
	if viewer := request.GetString("viewer_id", ""); viewer != "" {
		events, err = h.repos.Events.Visible(ctx, repo.Viewer{
			ID:         viewer,
			Supervisor: request.GetBool("supervisor", false),
		})
	} else {
		events, err = h.repos.Events.Fetch(ctx)
	}
	if err != nil {
		return h.errorResult("List events", err), nil
	}
	return jsonResult(events)
}

// HandleAddEvent creates a calendar event and returns it.
func (h *Handlers) HandleAddEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ev := storage.CalendarEvent{
		Date:        request.GetString("date", ""),
		Type:        request.GetString("type", ""),
		Title:       request.GetString("title", ""),
		Description: request.GetString("description", ""),
		OwnerID:     request.GetString("owner_id", ""),
		OwnerName:   request.GetString("owner_name", ""),
		CreatorID:   request.GetString("creator_id", ""),
	}
	for _, req := range []struct{ name, value string }{
		{"date", ev.Date}, {"type", ev.Type}, {"title", ev.Title}, {"owner_id", ev.OwnerID},
	} {
		if req.value == "" {
			return mcp.NewToolResultError("Missing required parameter: " + req.name), nil
		}
	}
	if ev.CreatorID == "" {
		ev.CreatorID = ev.OwnerID
	}

	events, err := h.repos.Events.Add(ctx, ev)
	if err != nil {
		return h.errorResult("Add event", err), nil
	}
	// Add appends, so the new event is last.
	return jsonResult(events[len(events)-1])
}

// HandleDeleteEvent removes a calendar event.
func (h *Handlers) HandleDeleteEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}
	events, err := h.repos.Events.Delete(ctx, id)
	if err != nil {
		return h.errorResult("Delete event", err), nil
	}
	return jsonResult(map[string]any{"deleted": id, "remaining": len(events)})
}
