package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func Test_Sink_ConsoleOnly(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := newSink(&buf, "")

	s.Logger("sync").Printf("poll resumed")

	if !strings.Contains(buf.String(), "[sync] ") || !strings.Contains(buf.String(), "poll resumed") {
		t.Errorf("output = %q", buf.String())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func Test_Sink_TeesToFile(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "officedesk.log")
	s := newSink(&buf, path)

	s.Logger("docstore").Printf("Connected")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[docstore] ") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(buf.String(), "Connected") {
		t.Errorf("console = %q", buf.String())
	}
}

func Test_Discard(t *testing.T) {
	t.Parallel()
	Discard().Printf("nothing")
}
