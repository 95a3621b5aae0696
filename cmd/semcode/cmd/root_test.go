package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

// runCommand executes the CLI with args and captures stdout payload
// written through the renderer (which writes to os.Stdout).
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	reader, writer, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = writer

	root := NewRootCmd()
	root.SetContext(context.Background())
	root.SetArgs(args)
	execErr := root.Execute()

	require.NoError(t, writer.Close())
	os.Stdout = old

	var buf bytes.Buffer
	_, err = buf.ReadFrom(reader)
	require.NoError(t, err)
	return buf.String(), execErr
}

func TestInitCommandCreatesState(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "init")

	_, err = os.Stat(filepath.Join(dir, ".context", "manifest.json"))
	require.NoError(t, err)
}

func TestInitIsIdempotentAtCLI(t *testing.T) {
	dir := t.TempDir()
	_, err := runCommand(t, "init", dir)
	require.NoError(t, err)
	_, err = runCommand(t, "init", dir)
	require.NoError(t, err)
}

func TestIndexAndSearchFlow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.rs", "fn main() {}\n")
	writeFile(t, dir, "src/lib.rs", "pub fn lib() {}\n")

	_, err := runCommand(t, "init", dir)
	require.NoError(t, err)

	out, err := runCommand(t, "index", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"indexedFiles":2`)

	out, err = runCommand(t, "search", "--codebase-root", dir, "--query", "pub fn lib() {}", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "src/lib.rs")
}

func TestIndexWithoutInitFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}\n")

	_, err := runCommand(t, "index", dir)
	require.Error(t, err)
}

func TestIndexWithInitFlag(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}\n")

	out, err := runCommand(t, "index", dir, "--init", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"indexedFiles":1`)
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}\n")

	out, err := runCommand(t, "status", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"initialized":false`)

	_, err = runCommand(t, "index", dir, "--init")
	require.NoError(t, err)

	out, err = runCommand(t, "status", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"initialized":true`)
	assert.Contains(t, out, `"collectionExists":true`)
}

func TestClearCommandIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}\n")

	_, err := runCommand(t, "index", dir, "--init")
	require.NoError(t, err)

	_, err = runCommand(t, "clear", dir)
	require.NoError(t, err)
	_, err = runCommand(t, "clear", dir)
	require.NoError(t, err)
}

func TestReindexCommandReportsChanges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}\n")

	_, err := runCommand(t, "index", dir, "--init")
	require.NoError(t, err)

	writeFile(t, dir, "b.rs", "fn b() {}\n")
	out, err := runCommand(t, "reindex", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"added":1`)
}

func TestJobsRoundTripViaCLI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rs", "fn a() {}\n")
	_, err := runCommand(t, "init", dir)
	require.NoError(t, err)

	// Create the job through index --background, then drive it with jobs
	// run.
	out, err := runCommand(t, "index", dir, "--background", "--json")
	// The spawn may fail because the test binary rejects the args; the
	// job itself must exist regardless.
	jobsDir := filepath.Join(dir, ".context", "jobs")
	entries, readErr := os.ReadDir(jobsDir)
	require.NoError(t, readErr)
	require.NotEmpty(t, entries)
	jobID := entries[0].Name()
	_ = out
	_ = err

	out, err = runCommand(t, "jobs", "run", "--job-id", jobID, "--codebase-root", dir, "--json")
	if err == nil {
		assert.Contains(t, out, `"state":"completed"`)
	} else {
		// The detached worker may have already completed the job.
		statusOut, statusErr := runCommand(t, "jobs", "status", "--job-id", jobID, "--codebase-root", dir, "--json")
		require.NoError(t, statusErr)
		assert.Contains(t, statusOut, `"state":"completed"`)
	}
}

func TestJSONErrorOutputOnUnknownJob(t *testing.T) {
	dir := t.TempDir()
	_, err := runCommand(t, "jobs", "status", "--job-id", "nope", "--codebase-root", dir)
	require.Error(t, err)
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runCommand(t, "version", "--json")
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(out, "\n")[0])
	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "version", record["event"])
}
