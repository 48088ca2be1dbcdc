package handlestore_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JamesPrial/officedesk/internal/handlestore"
)

func newStore(t *testing.T) *handlestore.Store {
	t.Helper()
	s, err := handlestore.New(filepath.Join(t.TempDir(), "cfg", "handle.toml"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func Test_Store_GetEmpty(t *testing.T) {
	t.Parallel()
	h, ok, err := newStore(t).Get()
	if err != nil || ok {
		t.Fatalf("Get on empty store = %+v, %v, %v", h, ok, err)
	}
}

func Test_Store_PutGetOverwrite(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	granted := time.Date(2026, 2, 17, 9, 30, 0, 0, time.UTC)

	if err := s.Put(handlestore.Handle{Mode: "file", Path: "/srv/office.json", GrantedAt: granted}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h, ok, err := s.Get()
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if h.Mode != "file" || h.Path != "/srv/office.json" || !h.GrantedAt.Equal(granted) {
		t.Errorf("Get = %+v", h)
	}

	if err := s.Put(handlestore.Handle{Mode: "postgres", DSN: "postgres://u:p@db/office"}); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	h, _, _ = s.Get()
	if h.Mode != "postgres" || h.Path != "" || h.GrantedAt.IsZero() {
		t.Errorf("overwritten handle = %+v", h)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}

func Test_Store_PutRequiresMode(t *testing.T) {
	t.Parallel()
	if err := newStore(t).Put(handlestore.Handle{Path: "/x"}); err == nil {
		t.Fatal("expected error for empty mode")
	}
}

func Test_Store_Get_Corrupt_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "not toml", content: "mode = = file"},
		{name: "missing mode", content: "path = \"/srv/office.json\"\n"},
		{name: "wrong type", content: "mode = 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newStore(t)
			if err := os.MkdirAll(filepath.Dir(s.Path()), 0o700); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(s.Path(), []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}

			_, ok, err := s.Get()
			if ok {
				t.Error("corrupt handle reported as present")
			}
			if !errors.Is(err, handlestore.ErrRestoreFailed) {
				t.Errorf("error = %v, want ErrRestoreFailed", err)
			}
		})
	}
}

func Test_Store_Clear(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear on empty store: %v", err)
	}
	if err := s.Put(handlestore.Handle{Mode: "sqlite", Path: "/tmp/fallback.db"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Get(); ok {
		t.Error("handle still present after Clear")
	}
}
