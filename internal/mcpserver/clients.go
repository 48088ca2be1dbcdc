package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JamesPrial/officedesk/internal/storage"
)

// HandleListClients returns every client.
func (h *Handlers) HandleListClients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients, err := h.repos.Clients.Fetch(ctx)
	if err != nil {
		return h.errorResult("List clients", err), nil
	}
	return jsonResult(clients)
}

// HandleAddClient adds a client. Values in fields become extended client
// fields; non-string values are stored in their printed form.
func (h *Handlers) HandleAddClient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil || name == "" {
		return mcp.NewToolResultError("Missing required parameter: name"), nil
	}
	c := storage.Client{
		ID:   request.GetString("id", ""),
		Code: request.GetString("code", ""),
		Name: name,
	}
	if args := request.GetArguments(); args != nil {
		if raw, present := args["fields"]; present {
			fields, ok := raw.(map[string]any)
			if !ok {
				return mcp.NewToolResultError("Invalid parameter: fields must be an object"), nil
			}
			for k, v := range fields {
				c.SetField(k, fmt.Sprintf("%v", v))
			}
		}
	}

	clients, err := h.repos.Clients.Add(ctx, c)
	if err != nil {
		return h.errorResult("Add client", err), nil
	}
	return jsonResult(clients[len(clients)-1])
}

// HandleDeleteClient removes a client and its tasks.
func (h *Handlers) HandleDeleteClient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	before, err := h.repos.Tasks.ForClient(ctx, id)
	if err != nil {
		return h.errorResult("Delete client", err), nil
	}
	clients, tasks, err := h.repos.Clients.Delete(ctx, id)
	if err != nil {
		return h.errorResult("Delete client", err), nil
	}
	return jsonResult(map[string]any{
		"deleted":           id,
		"tasks_removed":     len(before),
		"remaining_clients": len(clients),
		"remaining_tasks":   len(tasks),
	})
}

// HandleGetClientProfile returns a client's profile after refreshing the
// cached document.
func (h *Handlers) HandleGetClientProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("client_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: client_id"), nil
	}
	if _, err := h.gw.Load(ctx); err != nil {
		return h.errorResult("Get client profile", err), nil
	}
	return jsonResult(h.repos.Profiles.Get(id))
}

// HandleSaveClientProfile creates or replaces a client's profile.
func (h *Handlers) HandleSaveClientProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("client_id")
	if err != nil {
		return mcp.NewToolResultError("Missing required parameter: client_id"), nil
	}
	p := storage.ClientProfile{
		ClientID:        id,
		SpecialNotes:    request.GetString("special_notes", ""),
		AccountingNotes: request.GetString("accounting_notes", ""),
		Tags:            []string{},
	}
	if args := request.GetArguments(); args != nil {
		if raw, present := args["tags"]; present {
			list, ok := raw.([]any)
			if !ok {
				return mcp.NewToolResultError("Invalid parameter: tags must be an array"), nil
			}
			for i, v := range list {
				tag, ok := v.(string)
				if !ok {
					return mcp.NewToolResultError(fmt.Sprintf("Invalid tag at index %d", i)), nil
				}
				p.Tags = append(p.Tags, tag)
			}
		}
	}

	if _, err := h.repos.Profiles.Save(ctx, p); err != nil {
		return h.errorResult("Save client profile", err), nil
	}
	return jsonResult(p)
}
