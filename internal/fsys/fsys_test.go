package fsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestReadDirSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.go", "b")
	writeFile(t, dir, "a.go", "a")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))

	fs := NewLocal(dir)
	entries, err := fs.ReadDir(context.Background(), ".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.go", "b.go", "src"}, names)
}

func TestReadDirMissing(t *testing.T) {
	fs := NewLocal(t.TempDir())
	_, err := fs.ReadDir(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestReadFileTextSizeBound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.go", "0123456789")

	fs := NewLocal(dir)
	_, err := fs.ReadFileText(context.Background(), "big.go", 5)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))

	content, err := fs.ReadFileText(context.Background(), "big.go", 100)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", content)
}

func TestReadFileTextRejectsInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin"), []byte{0xff, 0xfe, 0x00}, 0o644))

	fs := NewLocal(dir)
	_, err := fs.ReadFileText(context.Background(), "bin", 0)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.CodeOf(err))
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/main.rs", "fn main() {}\n")

	fs := NewLocal(dir)
	stat, err := fs.Stat(context.Background(), "src/main.rs")
	require.NoError(t, err)
	assert.False(t, stat.IsDir)
	assert.Equal(t, int64(13), stat.Size)
	assert.Greater(t, stat.ModTimeMs, int64(0))
}

func TestReadObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := NewLocal(t.TempDir())
	_, err := fs.ReadDir(ctx, ".")
	assert.Equal(t, errors.CodeCancelled, errors.CodeOf(err))
}

func TestPolicyRejectsTraversal(t *testing.T) {
	policy := NewPolicy()

	tests := []struct {
		name string
		path string
		code string
	}{
		{name: "absolute", path: "/etc/passwd", code: errors.CodeDomainPathTraverse},
		{name: "windows drive", path: `C:\temp`, code: errors.CodeDomainPathTraverse},
		{name: "dotdot", path: "src/../../secret", code: errors.CodeDomainPathTraverse},
		{name: "state dir", path: ".context/jobs/x", code: errors.CodePermissionDenied},
		{name: "state dir root", path: ".context", code: errors.CodePermissionDenied},
		{name: "empty", path: "", code: errors.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.ValidateRelative(tt.path)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	assert.NoError(t, policy.ValidateRelative("src/main.rs"))
	assert.NoError(t, policy.ValidateRelative("a/.hidden/file.go"))
}

func TestPolicyAllowStateDir(t *testing.T) {
	policy := &Policy{AllowStateDir: true}
	assert.NoError(t, policy.ValidateRelative(".context/sync/abc.json"))
}

func TestNormalizeRelative(t *testing.T) {
	assert.Equal(t, "src/main.rs", NormalizeRelative("./src/main.rs"))
	assert.Equal(t, "src/main.rs", NormalizeRelative("src\\main.rs"))
	assert.Equal(t, "src/main.rs", NormalizeRelative("/src/main.rs"))
}

func TestMatcherForcedStateDir(t *testing.T) {
	m := NewMatcher(nil)
	assert.True(t, m.Ignored(".context", true))
	assert.True(t, m.Ignored(".context/jobs/1/status.json", false))
	assert.False(t, m.Ignored("src/main.rs", false))
}

func TestMatcherPatterns(t *testing.T) {
	m := NewMatcher([]string{"node_modules/", "*.min.js", "# comment", ""})
	assert.True(t, m.Ignored("node_modules", true))
	assert.True(t, m.Ignored("dist/app.min.js", false))
	assert.False(t, m.Ignored("src/app.js", false))
}

func TestMatcherReadsContextignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ContextIgnoreFile, "src/main.rs\n")
	writeFile(t, dir, "src/main.rs", "fn main() {}\n")

	fs := NewLocal(dir)
	m := NewMatcherForRoot(context.Background(), fs, nil)
	assert.True(t, m.Ignored("src/main.rs", false))
	assert.False(t, m.Ignored("src/lib.rs", false))
}
