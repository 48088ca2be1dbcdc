package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/repo"
	"github.com/JamesPrial/officedesk/internal/storage"
	"github.com/JamesPrial/officedesk/internal/syncctl"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	h       *Handlers
	gw      *docstore.Gateway
	docPath string
}

// newFixture connects a gateway to a fresh document file and returns
// handlers over it.
func newFixture(t *testing.T, status func() syncctl.Status) fixture {
	t.Helper()
	docPath := filepath.Join(t.TempDir(), "office.json")
	backend := storage.NewJSONBackend(docPath)
	ctx := context.Background()
	if err := backend.CreateIfMissing(ctx); err != nil {
		t.Fatalf("CreateIfMissing: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	gw := docstore.New(docstore.Options{Logger: logger})
	if err := gw.Connect(ctx, backend); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	clock := time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC)
	h, err := NewHandlers(Deps{
		Gateway: gw,
		Repos:   repo.New(gw, func() time.Time { return clock }),
		Status:  status,
		Actor:   "Office",
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("NewHandlers: %v", err)
	}
	return fixture{h: h, gw: gw, docPath: docPath}
}

func request(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no Content elements")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result.Content[0] is %T, want mcp.TextContent", result.Content[0])
	}
	return tc.Text
}

type handlerFunc = server.ToolHandlerFunc

// call invokes fn and decodes a successful JSON result into out.
func call(t *testing.T, fn handlerFunc, name string, args map[string]any, out any) {
	t.Helper()
	result, err := fn(context.Background(), request(name, args))
	if err != nil {
		t.Fatalf("%s returned Go error: %v", name, err)
	}
	text := resultText(t, result)
	if result.IsError {
		t.Fatalf("%s returned tool error: %s", name, text)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("%s result is not JSON: %v\n%s", name, err, text)
		}
	}
}

// callError invokes fn and returns the text of the expected tool error.
func callError(t *testing.T, fn handlerFunc, name string, args map[string]any) string {
	t.Helper()
	result, err := fn(context.Background(), request(name, args))
	if err != nil {
		t.Fatalf("%s returned Go error: %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("%s succeeded, want tool error: %s", name, resultText(t, result))
	}
	return resultText(t, result)
}

func matrixArgs() map[string]any {
	return map[string]any{
		"client_id":     "c1",
		"client_name":   "Acme",
		"category":      "ACCOUNTING",
		"work_item":     "1月",
		"year":          "115",
		"assignee_id":   "u1",
		"assignee_name": "Alice",
	}
}

// ---------------------------------------------------------------------------
// NewServer
// ---------------------------------------------------------------------------

func Test_NewServer_ReturnsServer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	srv, err := NewServer(Deps{Gateway: f.gw, Repos: repo.New(f.gw, nil)})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	if srv == nil {
		t.Fatal("NewServer() returned nil server without error")
	}
}

func Test_NewServer_RequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := NewServer(Deps{}); err == nil {
		t.Error("NewServer(Deps{}) should fail")
	}
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func Test_AssignTask_ThenUpdateStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var assigned storage.Task
	call(t, f.h.HandleAssignTask, "assign_task", matrixArgs(), &assigned)
	if assigned.ID == "" || assigned.Status != storage.StatusTodo || assigned.LastUpdatedBy != "Office" {
		t.Fatalf("assigned = %+v", assigned)
	}

	var updated storage.Task
	call(t, f.h.HandleUpdateTaskStatus, "update_task_status", map[string]any{
		"id": assigned.ID, "status": "done", "completion_date": "2/17", "actor": "Alice",
	}, &updated)

	if updated.Status != storage.StatusDone || updated.CompletionDate != "2/17" {
		t.Errorf("updated = %+v", updated)
	}
	if len(updated.History) != 2 || updated.History[0].UserName != "Alice" {
		t.Errorf("history = %+v, want 2 entries newest by Alice", updated.History)
	}
}

func Test_AssignTask_SameCellReplaces(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	call(t, f.h.HandleAssignTask, "assign_task", matrixArgs(), nil)
	args := matrixArgs()
	args["assignee_id"], args["assignee_name"] = "u2", "Bob"
	var second storage.Task
	call(t, f.h.HandleAssignTask, "assign_task", args, &second)

	var tasks []storage.Task
	call(t, f.h.HandleListTasks, "list_tasks", nil, &tasks)
	if len(tasks) != 1 {
		t.Fatalf("len(tasks) = %d, want 1", len(tasks))
	}
	if second.AssigneeName != "Bob" || len(second.History) != 2 {
		t.Errorf("second = %+v", second)
	}
}

func Test_AssignTask_ValidationErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	tests := []struct {
		name    string
		args    map[string]any
		wantMsg string
	}{
		{name: "no assignee", args: map[string]any{"client_id": "c1", "category": "A", "work_item": "w", "year": "115"}, wantMsg: "no assignee selected"},
		{name: "missing year", args: map[string]any{"client_id": "c1", "category": "A", "work_item": "w", "assignee_id": "u1"}, wantMsg: "missing year"},
		{name: "bad status", args: map[string]any{"is_misc": true, "work_item": "w", "assignee_id": "u1", "status": "later"}, wantMsg: "unknown status"},
	}
	for _, tt := range tests {
		msg := callError(t, f.h.HandleAssignTask, "assign_task", tt.args)
		if !strings.Contains(msg, tt.wantMsg) {
			t.Errorf("%s: message = %q, want %q", tt.name, msg, tt.wantMsg)
		}
	}

	var tasks []storage.Task
	call(t, f.h.HandleListTasks, "list_tasks", nil, &tasks)
	if len(tasks) != 0 {
		t.Errorf("invalid assignments were stored: %+v", tasks)
	}
}

func Test_AssignTask_MiscGetsID(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var misc storage.Task
	call(t, f.h.HandleAssignTask, "assign_task", map[string]any{
		"is_misc": true, "work_item": "Call bank", "assignee_id": "u1",
	}, &misc)
	if !misc.IsMisc || misc.ID == "" || misc.WorkItem != "Call bank" {
		t.Errorf("misc = %+v", misc)
	}
}

func Test_ListTasks_Filters(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	call(t, f.h.HandleAssignTask, "assign_task", matrixArgs(), nil)
	other := matrixArgs()
	other["client_id"], other["assignee_id"], other["status"] = "c2", "u2", "in_progress"
	call(t, f.h.HandleAssignTask, "assign_task", other, nil)

	tests := []struct {
		args map[string]any
		want int
	}{
		{args: nil, want: 2},
		{args: map[string]any{"client_id": "c1"}, want: 1},
		{args: map[string]any{"status": "in_progress"}, want: 1},
		{args: map[string]any{"assignee_id": "u2", "client_id": "c1"}, want: 0},
	}
	for _, tt := range tests {
		var tasks []storage.Task
		call(t, f.h.HandleListTasks, "list_tasks", tt.args, &tasks)
		if len(tasks) != tt.want {
			t.Errorf("list_tasks %v = %d tasks, want %d", tt.args, len(tasks), tt.want)
		}
	}
}

func Test_UpdateTaskNote_AndDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var task storage.Task
	call(t, f.h.HandleAssignTask, "assign_task", matrixArgs(), &task)

	var noted storage.Task
	call(t, f.h.HandleUpdateTaskNote, "update_task_note", map[string]any{"id": task.ID, "note": "waiting on receipts"}, &noted)
	if noted.Note != "waiting on receipts" {
		t.Errorf("note = %q", noted.Note)
	}

	var del map[string]any
	call(t, f.h.HandleDeleteTask, "delete_task", map[string]any{"id": task.ID}, &del)
	if del["remaining"] != float64(0) {
		t.Errorf("delete result = %v", del)
	}
}

func Test_ReassignTask_AndSetNA(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var task storage.Task
	call(t, f.h.HandleAssignTask, "assign_task", matrixArgs(), &task)

	var moved storage.Task
	call(t, f.h.HandleReassignTask, "reassign_task", map[string]any{
		"id": task.ID, "assignee_id": "u2", "assignee_name": "Bob",
	}, &moved)
	if moved.AssigneeID != "u2" || moved.AssigneeName != "Bob" {
		t.Errorf("assignee = %q/%q, want u2/Bob", moved.AssigneeID, moved.AssigneeName)
	}

	var na storage.Task
	call(t, f.h.HandleSetTaskNA, "set_task_na", map[string]any{"id": task.ID, "is_na": true}, &na)
	if !na.IsNA {
		t.Error("IsNA = false, want true")
	}
	if na.LastUpdatedBy != "Office" {
		t.Errorf("LastUpdatedBy = %q, want Office", na.LastUpdatedBy)
	}

	if msg := callError(t, f.h.HandleSetTaskNA, "set_task_na", map[string]any{"id": task.ID}); !strings.Contains(msg, "is_na") {
		t.Errorf("missing is_na message = %q", msg)
	}
	if msg := callError(t, f.h.HandleReassignTask, "reassign_task", map[string]any{"id": task.ID, "assignee_name": "Bob"}); !strings.Contains(msg, "assignee_id") {
		t.Errorf("missing assignee_id message = %q", msg)
	}
}

func Test_TaskTools_MissingAndUnknown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if msg := callError(t, f.h.HandleUpdateTaskStatus, "update_task_status", map[string]any{"status": "done"}); !strings.Contains(msg, "id") {
		t.Errorf("missing id message = %q", msg)
	}
	if msg := callError(t, f.h.HandleUpdateTaskNote, "update_task_note", map[string]any{"id": "x"}); !strings.Contains(msg, "note") {
		t.Errorf("missing note message = %q", msg)
	}
	msg := callError(t, f.h.HandleUpdateTaskStatus, "update_task_status", map[string]any{"id": "nope", "status": "done"})
	if !strings.Contains(msg, repo.ErrTaskNotFound.Error()) {
		t.Errorf("unknown id message = %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Calendar
// ---------------------------------------------------------------------------

func Test_Events_AddListDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var shift, reminder storage.CalendarEvent
	call(t, f.h.HandleAddEvent, "add_event", map[string]any{
		"date": "2026-02-20", "type": "shift", "title": "Front desk", "owner_id": "u1",
	}, &shift)
	call(t, f.h.HandleAddEvent, "add_event", map[string]any{
		"date": "2026-02-21", "type": "reminder", "title": "File VAT", "owner_id": "u1",
	}, &reminder)
	if shift.ID == "" || shift.CreatorID != "u1" || shift.CreatedAt == "" {
		t.Errorf("shift = %+v", shift)
	}

	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{name: "all", args: nil, want: 2},
		{name: "owner", args: map[string]any{"viewer_id": "u1"}, want: 2},
		{name: "supervisor sees shifts", args: map[string]any{"viewer_id": "boss", "supervisor": true}, want: 1},
		{name: "other user", args: map[string]any{"viewer_id": "u2"}, want: 0},
	}
	for _, tt := range tests {
		var events []storage.CalendarEvent
		call(t, f.h.HandleListEvents, "list_events", tt.args, &events)
		if len(events) != tt.want {
			t.Errorf("%s: %d events, want %d", tt.name, len(events), tt.want)
		}
	}

	call(t, f.h.HandleDeleteEvent, "delete_event", map[string]any{"id": reminder.ID}, nil)
	var events []storage.CalendarEvent
	call(t, f.h.HandleListEvents, "list_events", nil, &events)
	if len(events) != 1 || events[0].ID != shift.ID {
		t.Errorf("after delete = %+v", events)
	}
}

func Test_AddEvent_Invalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if msg := callError(t, f.h.HandleAddEvent, "add_event", map[string]any{"date": "d", "type": "shift", "owner_id": "u1"}); !strings.Contains(msg, "title") {
		t.Errorf("missing title message = %q", msg)
	}
	msg := callError(t, f.h.HandleAddEvent, "add_event", map[string]any{"date": "d", "type": "party", "title": "x", "owner_id": "u1"})
	if !strings.Contains(msg, repo.ErrInvalidEventType.Error()) {
		t.Errorf("bad type message = %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Clients and profiles
// ---------------------------------------------------------------------------

func Test_Clients_AddWithFieldsAndCascadeDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var added map[string]any
	call(t, f.h.HandleAddClient, "add_client", map[string]any{
		"id": "c1", "name": "Acme", "code": "A01",
		"fields": map[string]any{"taxId": "12345678", "fee": 3000},
	}, &added)
	if added["taxId"] != "12345678" || added["fee"] != "3000" {
		t.Errorf("extended fields = %v", added)
	}

	call(t, f.h.HandleAssignTask, "assign_task", matrixArgs(), nil)

	var del map[string]any
	call(t, f.h.HandleDeleteClient, "delete_client", map[string]any{"id": "c1"}, &del)
	if del["tasks_removed"] != float64(1) || del["remaining_tasks"] != float64(0) || del["remaining_clients"] != float64(0) {
		t.Errorf("delete result = %v", del)
	}

	msg := callError(t, f.h.HandleAddClient, "add_client", map[string]any{"name": "X", "fields": "nope"})
	if !strings.Contains(msg, "fields") {
		t.Errorf("bad fields message = %q", msg)
	}
}

func Test_AddClient_Duplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	call(t, f.h.HandleAddClient, "add_client", map[string]any{"id": "c1", "name": "Acme"}, nil)
	msg := callError(t, f.h.HandleAddClient, "add_client", map[string]any{"id": "c1", "name": "Other"})
	if !strings.Contains(msg, repo.ErrDuplicateClient.Error()) {
		t.Errorf("duplicate message = %q", msg)
	}

	var clients []map[string]any
	call(t, f.h.HandleListClients, "list_clients", nil, &clients)
	if len(clients) != 1 {
		t.Errorf("clients = %v", clients)
	}
}

func Test_ClientProfile_SaveAndGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	var empty storage.ClientProfile
	call(t, f.h.HandleGetClientProfile, "get_client_profile", map[string]any{"client_id": "c1"}, &empty)
	if empty.ClientID != "c1" || empty.Tags == nil || len(empty.Tags) != 0 {
		t.Errorf("default profile = %+v", empty)
	}

	call(t, f.h.HandleSaveClientProfile, "save_client_profile", map[string]any{
		"client_id": "c1", "special_notes": "VIP", "tags": []any{"vat", "payroll"},
	}, nil)

	var got storage.ClientProfile
	call(t, f.h.HandleGetClientProfile, "get_client_profile", map[string]any{"client_id": "c1"}, &got)
	if got.SpecialNotes != "VIP" || strings.Join(got.Tags, ",") != "vat,payroll" {
		t.Errorf("profile = %+v", got)
	}

	msg := callError(t, f.h.HandleSaveClientProfile, "save_client_profile", map[string]any{"client_id": "c1", "tags": []any{"ok", 5}})
	if !strings.Contains(msg, "index 1") {
		t.Errorf("bad tag message = %q", msg)
	}
}

// ---------------------------------------------------------------------------
// Connection and status
// ---------------------------------------------------------------------------

func Test_Tools_NotConnected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gw.Disconnect()

	msg := callError(t, f.h.HandleListTasks, "list_tasks", nil)
	if !strings.Contains(msg, "officedesk connect") {
		t.Errorf("not connected message = %q", msg)
	}
	callError(t, f.h.HandleAssignTask, "assign_task", matrixArgs())
	callError(t, f.h.HandleGetClientProfile, "get_client_profile", map[string]any{"client_id": "c1"})
}

func Test_Tools_LostFile(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if err := os.Remove(f.docPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	msg := callError(t, f.h.HandleListClients, "list_clients", nil)
	if !strings.Contains(msg, "Reconnect") {
		t.Errorf("lost file message = %q", msg)
	}
}

// reconnectTo makes f reconnect to its own document file.
func reconnectTo(f fixture) {
	f.h.reconnect = func(ctx context.Context) error {
		return f.gw.Connect(ctx, storage.NewJSONBackend(f.docPath))
	}
}

func Test_WithConnection_ReconnectsDroppedGateway(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	reconnectTo(f)
	f.gw.Disconnect()

	var tasks []storage.Task
	call(t, f.h.withConnection(f.h.HandleListTasks), "list_tasks", nil, &tasks)
	if !f.gw.Connected() {
		t.Error("gateway still disconnected after a tool call")
	}
}

func Test_WithConnection_LostFileThenRestored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	reconnectTo(f)
	listClients := f.h.withConnection(f.h.HandleListClients)

	data, err := os.ReadFile(f.docPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := os.Remove(f.docPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	callError(t, listClients, "list_clients", nil)
	if f.gw.Connected() {
		t.Fatal("a failed read should drop the gateway")
	}
	callError(t, listClients, "list_clients", nil)

	if err := os.WriteFile(f.docPath, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	call(t, listClients, "list_clients", nil, nil)
	if !f.gw.Connected() {
		t.Error("gateway not reconnected once the file was restored")
	}
}

func Test_WithConnection_NoReconnectKeepsGateway(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if err := os.Remove(f.docPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	callError(t, f.h.withConnection(f.h.HandleListClients), "list_clients", nil)
	if !f.gw.Connected() {
		t.Error("gateway dropped although this server cannot reconnect")
	}
}

func Test_SyncStatus(t *testing.T) {
	t.Parallel()
	reload := time.Date(2026, 2, 17, 9, 0, 3, 0, time.UTC)
	f := newFixture(t, func() syncctl.Status {
		return syncctl.Status{
			State:        syncctl.Suspended,
			OpenSurfaces: []syncctl.Surface{syncctl.SurfaceNoteEditor},
			LastReload:   reload,
			LastError:    errors.New("earlier failure"),
		}
	})

	var st map[string]any
	call(t, f.h.HandleSyncStatus, "sync_status", nil, &st)

	if st["connected"] != true || st["storage"] != "file" || st["location"] != f.docPath {
		t.Errorf("connection fields = %v", st)
	}
	if st["polling"] != "suspended" || st["last_error"] != "earlier failure" {
		t.Errorf("controller fields = %v", st)
	}
	if surfaces, _ := st["open_surfaces"].([]any); len(surfaces) != 1 || surfaces[0] != "note_editor" {
		t.Errorf("open_surfaces = %v", st["open_surfaces"])
	}
}

func Test_SyncStatus_WithoutController(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.gw.Disconnect()

	var st map[string]any
	call(t, f.h.HandleSyncStatus, "sync_status", nil, &st)
	if st["connected"] != false {
		t.Errorf("connected = %v", st["connected"])
	}
	if _, ok := st["polling"]; ok {
		t.Error("polling reported without a controller")
	}
}
