package jobs

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/pipeline"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

// WorkFunc executes the job body. It receives the request context (whose
// token trips on the cancel sentinel) and a progress callback, and
// returns the kind-typed result.
type WorkFunc func(req *reqctx.Request, progress pipeline.ProgressFunc) (*Result, error)

// RunnerOptions tune the worker.
type RunnerOptions struct {
	// ProgressInterval rate-limits status writes. A forced write always
	// happens at 100%.
	ProgressInterval time.Duration
	// CancelPollInterval is how often the cancel sentinel is polled.
	CancelPollInterval time.Duration
}

func (o RunnerOptions) normalized() RunnerOptions {
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 500 * time.Millisecond
	}
	if o.CancelPollInterval <= 0 {
		o.CancelPollInterval = 250 * time.Millisecond
	}
	return o
}

// statusWriter serializes status mutations and tolerates write failures
// by recording warnings instead of crashing the worker.
type statusWriter struct {
	mu     sync.Mutex
	path   string
	status Status
}

func (w *statusWriter) mutate(fn func(*Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.status)
	w.status.UpdatedAtMs = nowMs()
	if err := writeJSON(w.path, w.status); err != nil {
		w.status.Warnings = append(w.status.Warnings, "status write failed: "+err.Error())
		slog.Warn("job status write failed",
			slog.String("jobId", w.status.ID),
			slog.String("error", err.Error()))
	}
}

// Run executes a queued job to a terminal state. Only this function
// transitions job states; it always persists a final status file.
func Run(ctx context.Context, codebaseRoot, jobID string, opts RunnerOptions, work WorkFunc) (Status, error) {
	opts = opts.normalized()

	request, err := ReadRequest(codebaseRoot, jobID)
	if err != nil {
		return Status{}, err
	}
	current, err := ReadStatus(codebaseRoot, jobID)
	if err != nil {
		return Status{}, err
	}
	if current.State != StateQueued {
		return current, errors.Expected(errors.CodeJobInvalidState, "job is not queued").
			WithMeta("state", string(current.State))
	}

	writer := &statusWriter{
		path:   filepath.Join(Dir(codebaseRoot, jobID), statusFileName),
		status: current,
	}
	writer.mutate(func(s *Status) { s.State = StateRunning })

	req := reqctx.WithCorrelationID(ctx, request.ID)
	stopWatch := req.WatchSentinel(CancelSentinelPath(codebaseRoot, jobID), opts.CancelPollInterval)
	defer stopWatch()

	var lastWrite time.Time
	progress := func(update pipeline.ProgressUpdate) {
		now := time.Now()
		if update.Percentage < 100 && now.Sub(lastWrite) < opts.ProgressInterval {
			return
		}
		lastWrite = now
		writer.mutate(func(s *Status) {
			s.Progress = &Progress{
				Stage:      update.Phase,
				Phase:      update.Phase,
				Current:    update.Current,
				Total:      update.Total,
				Percentage: update.Percentage,
			}
		})
	}

	result, workErr := work(req, progress)

	switch {
	case workErr == nil:
		writer.mutate(func(s *Status) {
			s.State = StateCompleted
			s.Result = result
		})
	case errors.IsCancelled(workErr) || req.Cancelled():
		writer.mutate(func(s *Status) {
			s.State = StateCancelled
			s.CancelRequested = true
			s.Result = nil
			s.Error = nil
		})
	default:
		env := errors.AsEnvelope(workErr)
		writer.mutate(func(s *Status) {
			s.State = StateFailed
			s.Error = &JobError{
				Code:    env.Code,
				Message: env.Message,
				Class:   string(env.Class),
			}
		})
	}

	writer.mu.Lock()
	final := writer.status
	writer.mu.Unlock()
	return final, nil
}
