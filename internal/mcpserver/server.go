// Package mcpserver exposes the office document repositories as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/repo"
	"github.com/JamesPrial/officedesk/internal/syncctl"
)

// Deps are the components the tools operate on.
type Deps struct {
	Gateway *docstore.Gateway
	Repos   *repo.Repos

	// Status reports the sync controller. Nil when no controller runs in
	// this process.
	Status func() syncctl.Status

	// Actor is written into task history when a call names no actor.
	Actor string

	// Reconnect restores a dropped gateway, e.g. from a handle granted by
	// `officedesk connect` after this server started. Nil disables it.
	Reconnect func(ctx context.Context) error

	Logger *log.Logger
}

// Handlers implements the tool handlers over Deps.
type Handlers struct {
	gw     *docstore.Gateway
	repos  *repo.Repos
	status func() syncctl.Status
	actor  string
	logger *log.Logger

	reconnect func(ctx context.Context) error
}

// NewHandlers returns handlers over d.
func NewHandlers(d Deps) (*Handlers, error) {
	if d.Gateway == nil || d.Repos == nil {
		return nil, errors.New("mcpserver: gateway and repositories are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[mcp-server] ", log.LstdFlags)
	}
	return &Handlers{
		gw:     d.Gateway,
		repos:  d.Repos,
		status: d.Status,
		actor:  d.Actor,
		logger: logger,

		reconnect: d.Reconnect,
	}, nil
}

// NewServer creates an MCP server with every officedesk tool registered.
func NewServer(d Deps) (*server.MCPServer, error) {
	h, err := NewHandlers(d)
	if err != nil {
		return nil, err
	}

	s := server.NewMCPServer(
		"officedesk",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// Tasks
	s.AddTool(listTasksTool(), h.withConnection(h.HandleListTasks))
	s.AddTool(assignTaskTool(), h.withConnection(h.HandleAssignTask))
	s.AddTool(updateTaskStatusTool(), h.withConnection(h.HandleUpdateTaskStatus))
	s.AddTool(updateTaskNoteTool(), h.withConnection(h.HandleUpdateTaskNote))
	s.AddTool(reassignTaskTool(), h.withConnection(h.HandleReassignTask))
	s.AddTool(setTaskNATool(), h.withConnection(h.HandleSetTaskNA))
	s.AddTool(deleteTaskTool(), h.withConnection(h.HandleDeleteTask))

	// Calendar
	s.AddTool(listEventsTool(), h.withConnection(h.HandleListEvents))
	s.AddTool(addEventTool(), h.withConnection(h.HandleAddEvent))
	s.AddTool(deleteEventTool(), h.withConnection(h.HandleDeleteEvent))

	// Clients and profiles
	s.AddTool(listClientsTool(), h.withConnection(h.HandleListClients))
	s.AddTool(addClientTool(), h.withConnection(h.HandleAddClient))
	s.AddTool(deleteClientTool(), h.withConnection(h.HandleDeleteClient))
	s.AddTool(getClientProfileTool(), h.withConnection(h.HandleGetClientProfile))
	s.AddTool(saveClientProfileTool(), h.withConnection(h.HandleSaveClientProfile))

	s.AddTool(syncStatusTool(), h.withConnection(h.HandleSyncStatus))

	return s, nil
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// withConnection reconnects a dropped gateway before running next. A failed
// attempt is logged and next reports the connection error itself.
func (h *Handlers) withConnection(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if h.reconnect != nil && !h.gw.Connected() {
			if err := h.reconnect(ctx); err != nil {
				h.logger.Printf("Reconnect failed: %v", err)
			} else {
				h.logger.Printf("Reconnected before %s", request.Params.Name)
			}
		}
		return next(ctx, request)
	}
}

// errorResult turns a repository error into a tool error. Lost connections
// get a hint so the caller knows a reconnect is needed. When the server can
// reconnect, a failed read also drops the gateway so the next call connects
// again from the remembered handle.
func (h *Handlers) errorResult(op string, err error) *mcp.CallToolResult {
	var readErr *docstore.ReadError
	if h.reconnect != nil && errors.As(err, &readErr) {
		h.gw.Disconnect()
	}
	if docstore.IsConnectionLost(err) {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v. Reconnect the document with `officedesk connect`.", op, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

// actorFor picks the actor argument, then the configured default.
func (h *Handlers) actorFor(request mcp.CallToolRequest) string {
	if a := request.GetString("actor", ""); a != "" {
		return a
	}
	if h.actor != "" {
		return h.actor
	}
	return "unknown"
}
