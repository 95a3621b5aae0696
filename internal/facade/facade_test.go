package facade

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/fsys"
	"github.com/Luiz-Frias/semcode/internal/jobs"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
	"github.com/Luiz-Frias/semcode/internal/telemetry"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func initApp(t *testing.T, root string) *App {
	t.Helper()
	app, err := Init(root, telemetry.Noop{})
	require.NoError(t, err)
	return app
}

func TestInitCreatesStateDir(t *testing.T) {
	root := t.TempDir()
	app := initApp(t, root)

	assert.True(t, app.Initialized())
	_, err := os.Stat(filepath.Join(root, fsys.StateDirName, "manifest.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, fsys.StateDirName, "config.toml"))
	require.NoError(t, err)
}

func TestIndexThenSearch(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/main.rs", "fn main() {}\n")
	write(t, root, "src/lib.rs", "pub fn lib() {}\n")

	app := initApp(t, root)
	out, err := app.RunIndexLocal(reqctx.New(context.Background()), IndexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.IndexedFiles)

	results, err := app.RunSearchLocal(reqctx.New(context.Background()), "pub fn lib() {}", SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "src/lib.rs", results[0].RelativePath)
}

func TestIndexRequiresInit(t *testing.T) {
	root := t.TempDir()
	app, err := Open(root, telemetry.Noop{})
	require.NoError(t, err)

	_, err = app.RunIndexLocal(reqctx.New(context.Background()), IndexOptions{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestReindexAfterIndexSeesNoChanges(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.rs", "fn a() {}\n")

	app := initApp(t, root)
	_, err := app.RunIndexLocal(reqctx.New(context.Background()), IndexOptions{})
	require.NoError(t, err)

	out, err := app.RunReindexLocal(reqctx.New(context.Background()), nil)
	require.NoError(t, err)
	assert.Zero(t, out.Added)
	assert.Zero(t, out.Removed)
	assert.Zero(t, out.Modified)
}

func TestClearLocalIdempotent(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.rs", "fn a() {}\n")

	app := initApp(t, root)
	_, err := app.RunIndexLocal(reqctx.New(context.Background()), IndexOptions{})
	require.NoError(t, err)

	require.NoError(t, app.RunClearLocal(reqctx.New(context.Background())))
	require.NoError(t, app.RunClearLocal(reqctx.New(context.Background())))
}

func TestJobLifecycleIndex(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.rs", "fn a() {}\n")
	app := initApp(t, root)

	request, err := app.CreateJob(jobs.KindIndex, false)
	require.NoError(t, err)

	status, err := ReadJobStatus(root, request.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateQueued, status.State)

	final, err := RunJob(context.Background(), root, request.ID, telemetry.Noop{})
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCompleted, final.State)
	require.NotNil(t, final.Result)
	require.NotNil(t, final.Result.Index)
	assert.Equal(t, 1, final.Result.Index.IndexedFiles)
}

func TestJobCancelImmediately(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.rs", "fn a() {}\n")
	app := initApp(t, root)

	request, err := app.CreateJob(jobs.KindIndex, false)
	require.NoError(t, err)
	require.NoError(t, CancelJob(root, request.ID))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	final, err := RunJob(ctx, root, request.ID, telemetry.Noop{})
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCancelled, final.State)
	assert.True(t, final.CancelRequested)
	assert.Nil(t, final.Result)
	assert.Nil(t, final.Error)

	persisted, err := ReadJobStatus(root, request.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCancelled, persisted.State)
}

func TestRunJobWithInitIfMissing(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.rs", "fn a() {}\n")

	request, err := jobs.Create(root, jobs.KindIndex, true)
	require.NoError(t, err)

	final, err := RunJob(context.Background(), root, request.ID, telemetry.Noop{})
	require.NoError(t, err)
	assert.Equal(t, jobs.StateCompleted, final.State)

	// Job auto-initialized the codebase.
	_, err = os.Stat(filepath.Join(root, fsys.StateDirName, "manifest.json"))
	require.NoError(t, err)
}

func TestJobStatusTimestampsAdvance(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.rs", "fn a() {}\n")
	app := initApp(t, root)

	request, err := app.CreateJob(jobs.KindReindex, false)
	require.NoError(t, err)
	queued, err := ReadJobStatus(root, request.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	final, err := RunJob(context.Background(), root, request.ID, telemetry.Noop{})
	require.NoError(t, err)
	assert.Greater(t, final.UpdatedAtMs, queued.UpdatedAtMs)
}
