package storage_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/JamesPrial/officedesk/internal/storage"
)

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

func Test_Parse_Shapes_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		input       string
		wantTasks   []string
		wantEvents  int
		wantClients int
		wantProfile int
	}{
		{name: "empty input", input: ""},
		{name: "whitespace only", input: "  \n"},
		{name: "null", input: "null"},
		{name: "bare number", input: "42"},
		{name: "legacy task array", input: `[{"id":"x"}]`, wantTasks: []string{"x"}},
		{name: "empty object", input: `{}`},
		{
			name:        "full document",
			input:       `{"tasks":[{"id":"a"},{"id":"b"}],"events":[{"id":"e","type":"shift"}],"clients":[{"id":"c","name":"Acme"}],"clientProfiles":[{"clientId":"c"}]}`,
			wantTasks:   []string{"a", "b"},
			wantEvents:  1,
			wantClients: 1,
			wantProfile: 1,
		},
		{
			name:       "non-array fields treated as absent",
			input:      `{"tasks":{"id":"a"},"events":"nope","clients":null,"clientProfiles":7}`,
			wantEvents: 0,
		},
		{
			name:        "partial document",
			input:       `{"clients":[{"id":"c1"}]}`,
			wantClients: 1,
		},
		{
			name:      "undecodable elements set aside",
			input:     `{"tasks":[{"id":"ok"},"junk",5,{"id":"also","history":"bad"}]}`,
			wantTasks: []string{"ok"},
		},
		{
			name:      "numeric fields coerced to strings",
			input:     `{"tasks":[{"id":1700000000000,"year":115}]}`,
			wantTasks: []string{"1700000000000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := storage.Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}

			if doc.Tasks == nil || doc.Events == nil || doc.Clients == nil || doc.ClientProfiles == nil {
				t.Fatalf("Parse(%q) left nil slices: %+v", tt.input, doc)
			}
			ids := make([]string, 0, len(doc.Tasks))
			for _, task := range doc.Tasks {
				ids = append(ids, task.ID)
				if task.History == nil {
					t.Errorf("task %q has nil history", task.ID)
				}
			}
			want := tt.wantTasks
			if want == nil {
				want = []string{}
			}
			if !reflect.DeepEqual(ids, want) {
				t.Errorf("task ids = %v, want %v", ids, want)
			}
			if len(doc.Events) != tt.wantEvents {
				t.Errorf("events = %d, want %d", len(doc.Events), tt.wantEvents)
			}
			if len(doc.Clients) != tt.wantClients {
				t.Errorf("clients = %d, want %d", len(doc.Clients), tt.wantClients)
			}
			if len(doc.ClientProfiles) != tt.wantProfile {
				t.Errorf("clientProfiles = %d, want %d", len(doc.ClientProfiles), tt.wantProfile)
			}
		})
	}
}

func Test_Parse_NumericYearKeptAsLiteral(t *testing.T) {
	t.Parallel()
	doc, err := storage.Parse([]byte(`{"tasks":[{"id":"t","year":115,"isNA":true}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Tasks[0].Year != "115" || !doc.Tasks[0].IsNA {
		t.Errorf("task = %+v, want year 115 and isNA", doc.Tasks[0])
	}
}

func Test_Parse_LooseTypesAtAnyDepth(t *testing.T) {
	t.Parallel()
	input := `{"tasks":[
		{"id":"a","history":[{"timestamp":1700000000000,"userName":"Alice","action":"Assigned"}]},
		{"id":"b","isNA":"false","isMisc":"true"},
		{"id":"c"}
	]}`

	doc, err := storage.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Tasks) != 3 {
		t.Fatalf("tasks = %d, want 3: %+v", len(doc.Tasks), doc.Tasks)
	}
	if h := doc.Tasks[0].History; len(h) != 1 || h[0].Timestamp != "1700000000000" || h[0].UserName != "Alice" {
		t.Errorf("history = %+v, want numeric timestamp kept as its literal", h)
	}
	if doc.Tasks[1].IsNA || !doc.Tasks[1].IsMisc {
		t.Errorf("task b = %+v, want isNA false and isMisc true", doc.Tasks[1])
	}
	if n := doc.UndecodedCount(); n != 0 {
		t.Errorf("UndecodedCount = %d, want 0", n)
	}
}

func Test_Parse_UndecodableElementsSurviveMarshal(t *testing.T) {
	t.Parallel()
	input := `{"tasks":[{"id":"ok"},"junk",{"id":"bad","history":"oops"}],"events":[{"id":"e","createdAt":{"at":1}}]}`

	doc, err := storage.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Tasks) != 1 || len(doc.Events) != 0 {
		t.Fatalf("decoded tasks=%d events=%d, want 1 and 0", len(doc.Tasks), len(doc.Events))
	}
	if n := doc.UndecodedCount(); n != 3 {
		t.Fatalf("UndecodedCount = %d, want 3", n)
	}

	// A mutation replaces the decoded slice; the set-aside elements ride along.
	next := doc.WithTasks(append([]storage.Task{{ID: "new"}}, doc.Tasks...))
	data, err := next.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"junk"`, `"oops"`, `"at": 1`, `"id": "new"`, `"id": "ok"`} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("Marshal output lacks %s:\n%s", want, data)
		}
	}

	again, err := storage.Parse(data)
	if err != nil {
		t.Fatalf("re-Parse: %v", err)
	}
	if len(again.Tasks) != 2 || again.UndecodedCount() != 3 {
		t.Errorf("after round trip tasks=%d undecoded=%d, want 2 and 3", len(again.Tasks), again.UndecodedCount())
	}
	if got := again.Undecoded[storage.SliceTasks]; len(got) != 2 || string(got[0]) != `"junk"` {
		t.Errorf("undecoded tasks = %s", got)
	}
}

func Test_Parse_InvalidJSON(t *testing.T) {
	t.Parallel()
	for _, input := range []string{`{"tasks": [`, `not json`, `{"a":1}{`} {
		_, err := storage.Parse([]byte(input))
		if !errors.Is(err, storage.ErrCorruptDocument) {
			t.Errorf("Parse(%q) error = %v, want ErrCorruptDocument", input, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Idempotence
// ---------------------------------------------------------------------------

func Test_Parse_Idempotent_Cases(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"null",
		`[{"id":"x"}]`,
		`[{"id":"x","history":[{"timestamp":"t","userName":"u","action":"a"}]}]`,
		`{"tasks":[{"id":"a","year":115}]}`,
		`{"events":[{"id":"e","type":"reminder","ownerId":"u1"}],"tasks":"bad"}`,
		`{"clients":[{"id":"c1","code":"A01","name":"Acme","taxId":"12345678","fees":{"monthly":3000,"annual":[1,2]},"flags":[true,false]}]}`,
		`{"clientProfiles":[{"clientId":"c1","specialNotes":"VIP"}]}`,
		`{"tasks":["junk",{"id":"ok"},{"id":"bad","history":"oops"}],"events":[{"id":"e","createdAt":{"at":1}}]}`,
	}

	for _, input := range inputs {
		first, err := storage.Parse([]byte(input))
		if err != nil {
			t.Fatalf("Parse(%q): %v", input, err)
		}
		once, err := first.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		second, err := storage.Parse(once)
		if err != nil {
			t.Fatalf("re-Parse(%q): %v", once, err)
		}
		twice, err := second.Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(once, twice) {
			t.Errorf("not idempotent for %q:\nfirst:  %s\nsecond: %s", input, once, twice)
		}
	}
}

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func Test_Normalize_NilAndPartial(t *testing.T) {
	t.Parallel()

	empty := storage.Normalize(nil)
	if empty.Tasks == nil || empty.Events == nil || empty.Clients == nil || empty.ClientProfiles == nil {
		t.Fatalf("Normalize(nil) = %+v", empty)
	}

	partial := &storage.Document{
		Tasks:          []storage.Task{{ID: "t"}},
		ClientProfiles: []storage.ClientProfile{{ClientID: "c"}},
	}
	got := storage.Normalize(partial)
	if got == partial {
		t.Fatal("Normalize returned its argument although it needed fixing")
	}
	if partial.Tasks[0].History != nil || partial.Events != nil {
		t.Error("Normalize modified its argument")
	}
	if got.Tasks[0].History == nil || got.ClientProfiles[0].Tags == nil || got.Events == nil {
		t.Errorf("Normalize left nil slices: %+v", got)
	}
	if again := storage.Normalize(got); again != got {
		t.Error("Normalize of a normalized document should return it unchanged")
	}
}
