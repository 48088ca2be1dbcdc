package mcpserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

type syncStatus struct {
	Connected    bool       `json:"connected"`
	Storage      string     `json:"storage,omitempty"`
	Location     string     `json:"location,omitempty"`
	Version      uint64     `json:"version"`
	Polling      string     `json:"polling,omitempty"`
	OpenSurfaces []string   `json:"open_surfaces,omitempty"`
	LastReload   *time.Time `json:"last_reload,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// HandleSyncStatus reports the gateway connection and, when a controller
// runs in this process, its polling state.
func (h *Handlers) HandleSyncStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := syncStatus{
		Connected: h.gw.Connected(),
		Version:   h.gw.Version(),
	}
	if b := h.gw.Backend(); b != nil {
		st.Storage = b.Kind().String()
		st.Location = b.Describe()
	}
	if h.status != nil {
		s := h.status()
		st.Polling = s.State.String()
		for _, surface := range s.OpenSurfaces {
			st.OpenSurfaces = append(st.OpenSurfaces, surface.String())
		}
		if !s.LastReload.IsZero() {
			t := s.LastReload
			st.LastReload = &t
		}
		if s.LastError != nil {
			st.LastError = s.LastError.Error()
		}
	}
	return jsonResult(st)
}
