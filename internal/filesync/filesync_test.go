package filesync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func initialized(t *testing.T, root string, mode StorageMode, patterns []string) *Local {
	t.Helper()
	sync := NewLocal(root, mode)
	require.NoError(t, sync.Initialize(context.Background(), ports.FileSyncInitOptions{IgnorePatterns: patterns}))
	return sync
}

func TestFirstCheckReportsAllFilesAdded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.rs", "fn main() {}\n")
	writeFile(t, root, "src/lib.rs", "pub fn lib() {}\n")

	sync := initialized(t, root, StorageProject, nil)
	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.rs", "src/main.rs"}, changes.Added)
	assert.Empty(t, changes.Removed)
	assert.Empty(t, changes.Modified)
}

func TestNoChangesYieldsEmptySet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	sync := initialized(t, root, StorageProject, nil)
	_, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestDetectsAddRemoveModify(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.rs", "fn main() {}\n")
	writeFile(t, root, "src/lib.rs", "pub fn lib() {}\n")

	sync := initialized(t, root, StorageProject, nil)
	_, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "src/lib.rs", "pub fn lib() { /* changed */ }\n")
	require.NoError(t, os.Remove(filepath.Join(root, "src", "main.rs")))
	writeFile(t, root, "src/new.rs", "pub fn new() {}\n")

	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/new.rs"}, changes.Added)
	assert.Equal(t, []string{"src/main.rs"}, changes.Removed)
	assert.Equal(t, []string{"src/lib.rs"}, changes.Modified)
}

func TestChangeSetsAreDisjoint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "1")
	writeFile(t, root, "b.go", "2")

	sync := initialized(t, root, StorageProject, nil)
	_, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	writeFile(t, root, "a.go", "changed")
	writeFile(t, root, "c.go", "3")
	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))

	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	seen := map[string]int{}
	for _, p := range changes.Added {
		seen[p]++
	}
	for _, p := range changes.Removed {
		seen[p]++
	}
	for _, p := range changes.Modified {
		seen[p]++
	}
	for path, count := range seen {
		assert.Equal(t, 1, count, "path %s appears in more than one set", path)
	}
}

func TestSnapshotPersistsAcrossInstances(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "1")

	first := initialized(t, root, StorageProject, nil)
	_, err := first.CheckForChanges(context.Background())
	require.NoError(t, err)

	// A fresh adapter loads the snapshot: no changes reported.
	second := initialized(t, root, StorageProject, nil)
	changes, err := second.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestStateDirIsAlwaysIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "1")

	sync := initialized(t, root, StorageProject, nil)
	_, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	// The snapshot itself lives under .context/ and must not show up as
	// a change on the next pass.
	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestIgnorePatternsRespected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.go", "package app")
	writeFile(t, root, "vendor/dep.go", "package dep")

	sync := initialized(t, root, StorageProject, []string{"vendor/"})
	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.go"}, changes.Added)
}

func TestSnapshotVersionMismatchRejected(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "1")

	sync := initialized(t, root, StorageProject, nil)
	_, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	// Corrupt the version field.
	path := sync.snapshotPath()
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &raw))
	raw["version"] = json.RawMessage("2")
	updated, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	fresh := NewLocal(root, StorageProject)
	err = fresh.Initialize(context.Background(), ports.FileSyncInitOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeSyncSnapshotVersion, errors.CodeOf(err))
	env := errors.AsEnvelope(err)
	assert.Equal(t, "2", env.Meta["found"])
	assert.Equal(t, "1", env.Meta["expected"])
}

func TestDisabledStorageKeepsStateInMemory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "1")

	sync := initialized(t, root, StorageDisabled, nil)
	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes.Added, 1)

	// Nothing written to disk.
	_, err = os.Stat(filepath.Join(root, ".context"))
	assert.True(t, os.IsNotExist(err))

	// In-memory state still enables diffing within the process.
	changes, err = sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestDeleteSnapshotIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "1")

	sync := initialized(t, root, StorageProject, nil)
	_, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)

	require.NoError(t, sync.DeleteSnapshot(context.Background()))
	require.NoError(t, sync.DeleteSnapshot(context.Background()))

	changes, err := sync.CheckForChanges(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes.Added, 1, "after snapshot deletion everything reads as added")
}

func TestCheckBeforeInitializeFails(t *testing.T) {
	sync := NewLocal(t.TempDir(), StorageProject)
	_, err := sync.CheckForChanges(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeSyncNotInitialized, errors.CodeOf(err))
}

func TestParseStorageMode(t *testing.T) {
	mode, err := ParseStorageMode("")
	require.NoError(t, err)
	assert.Equal(t, StorageProject, mode)

	mode, err = ParseStorageMode("Disabled")
	require.NoError(t, err)
	assert.Equal(t, StorageDisabled, mode)

	_, err = ParseStorageMode("cloud")
	require.Error(t, err)
}
