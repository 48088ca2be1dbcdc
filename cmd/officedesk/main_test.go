package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JamesPrial/officedesk/internal/logging"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) env {
	t.Helper()
	for _, k := range []string{
		"OFFICEDESK_DATA_DIR", "OFFICEDESK_BACKEND", "OFFICEDESK_DOCUMENT", "OFFICEDESK_SQLITE_PATH",
		"OFFICEDESK_POSTGRES_DSN", "OFFICEDESK_CONCURRENCY", "OFFICEDESK_ACTOR",
	} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	e := env{dir: dir, config: filepath.Join(dir, "config.toml")}
	content := "data_dir = \"" + dir + "\"\n" +
		"handle_path = \"" + filepath.Join(dir, "handle.toml") + "\"\n"
	require.NoError(t, os.WriteFile(e.config, []byte(content), 0o644))
	return e
}

// execute runs the root command with a discarded log.
func execute(t *testing.T, e env, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(&rootOptions{ConfigPath: e.config, sink: logging.NewSinkTo(io.Discard)})
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func Test_Status_FallbackStorage(t *testing.T) {
	e := newEnv(t)

	out, err := execute(t, e, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "fallback storage")
	assert.Contains(t, out, "0 tasks, 0 events, 0 clients, 0 profiles")
}

func Test_Status_InvalidFormat(t *testing.T) {
	e := newEnv(t)

	_, err := execute(t, e, "status", "--format", "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func Test_Connect_GrantFileThenStatus(t *testing.T) {
	e := newEnv(t)
	doc := filepath.Join(e.dir, "office.json")

	out, err := execute(t, e, "connect", "--file", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to file storage at "+doc)
	assert.FileExists(t, doc)

	out, err = execute(t, e, "status", "--format", "json")
	require.NoError(t, err)
	var got statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "file", got.Storage)
	assert.Equal(t, doc, got.Location)

	_, err = execute(t, e, "connect", "--forget")
	require.NoError(t, err)
	out, err = execute(t, e, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "fallback storage")
}

func Test_Connect_RequiresExactlyOneStore(t *testing.T) {
	e := newEnv(t)

	_, err := execute(t, e, "connect")
	assert.ErrorContains(t, err, "exactly one")

	_, err = execute(t, e, "connect", "--file", "a.json", "--sqlite", "b.db")
	assert.ErrorContains(t, err, "exactly one")
}

func Test_Import_Workbook(t *testing.T) {
	e := newEnv(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"客戶編號", "客戶名稱"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"A01", "Acme"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"B02", "Beta"}))
	path := filepath.Join(e.dir, "clients.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	out, err := execute(t, e, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2 added, 0 updated")

	out, err = execute(t, e, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0 added, 2 updated")

	out, err = execute(t, e, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2 clients")
}

func Test_Import_MissingFile(t *testing.T) {
	e := newEnv(t)

	_, err := execute(t, e, "import", filepath.Join(e.dir, "nope.xlsx"))
	assert.ErrorContains(t, err, "open workbook")
}

func Test_Run_ExitCodes(t *testing.T) {
	e := newEnv(t)
	t.Setenv("OFFICEDESK_CONFIG", e.config)

	var stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"bogus"}, io.Discard, &stderr))
	assert.Contains(t, stderr.String(), "Error:")

	assert.Equal(t, 0, run([]string{"--help"}, io.Discard, io.Discard))
}
