package reqctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

func TestNewAssignsCorrelationID(t *testing.T) {
	req := New(context.Background())
	assert.NotEmpty(t, req.CorrelationID())

	other := New(context.Background())
	assert.NotEqual(t, req.CorrelationID(), other.CorrelationID())
}

func TestEnsureNotCancelled(t *testing.T) {
	req := New(context.Background())
	require.NoError(t, req.EnsureNotCancelled("scan"))

	req.Cancel()
	err := req.EnsureNotCancelled("scan")
	require.Error(t, err)
	assert.Equal(t, errors.CodeCancelled, errors.CodeOf(err))
	assert.Equal(t, "scan", errors.AsEnvelope(err).Meta["operation"])
}

func TestCancelPropagatesToContext(t *testing.T) {
	req := New(context.Background())
	req.Cancel()

	select {
	case <-req.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestParentCancellationPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	req := New(parent)
	cancel()
	assert.True(t, req.Cancelled())
}

func TestWatchSentinelTripsOnFile(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, "cancel")

	req := New(context.Background())
	stop := req.WatchSentinel(sentinel, 5*time.Millisecond)
	defer stop()

	require.NoError(t, os.WriteFile(sentinel, nil, 0o644))

	select {
	case <-req.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sentinel did not trip cancellation")
	}
}

func TestWatchSentinelStopIsIdempotent(t *testing.T) {
	req := New(context.Background())
	stop := req.WatchSentinel(filepath.Join(t.TempDir(), "cancel"), time.Millisecond)
	stop()
	stop()
	assert.False(t, req.Cancelled())
}
