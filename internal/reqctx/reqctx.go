// Package reqctx provides the per-request context handle: a correlation id
// plus a clone-cheap cancellation token shared by every pipeline stage.
package reqctx

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Luiz-Frias/semcode/internal/errors"
)

// Request carries the correlation id and cancellation token for one
// top-level operation (index, reindex, clear, search).
type Request struct {
	correlationID string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	watchers []chan struct{}
}

// New creates a request handle derived from the parent context with a
// fresh correlation id.
func New(parent context.Context) *Request {
	return WithCorrelationID(parent, uuid.NewString())
}

// WithCorrelationID creates a request handle with an explicit correlation
// id (used by the job runner so logs line up with the job id).
func WithCorrelationID(parent context.Context, correlationID string) *Request {
	ctx, cancel := context.WithCancel(parent)
	return &Request{
		correlationID: correlationID,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// CorrelationID returns the request correlation id.
func (r *Request) CorrelationID() string {
	return r.correlationID
}

// Context returns the cancellable context for this request. Every
// suspension point must race against it.
func (r *Request) Context() context.Context {
	return r.ctx
}

// Cancel trips the cancellation token. Idempotent.
func (r *Request) Cancel() {
	r.cancel()
	r.mu.Lock()
	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
	r.mu.Unlock()
}

// Cancelled reports whether the token has been tripped.
func (r *Request) Cancelled() bool {
	select {
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// EnsureNotCancelled returns core:cancelled tagged with the operation when
// the token has been tripped. Call at every stage boundary.
func (r *Request) EnsureNotCancelled(operation string) error {
	if r.Cancelled() {
		return errors.Cancelled(operation)
	}
	return nil
}

// WatchSentinel polls for the presence of a sentinel file and trips the
// cancellation token when it appears. Returns a stop function; stopping is
// idempotent and does not cancel the request.
func (r *Request) WatchSentinel(path string, interval time.Duration) func() {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	stopCh := make(chan struct{})
	r.mu.Lock()
	r.watchers = append(r.watchers, stopCh)
	r.mu.Unlock()

	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if _, err := os.Stat(path); err == nil {
					r.cancel()
					return
				}
			}
		}
	}()

	return func() {
		once.Do(func() {
			r.mu.Lock()
			for i, ch := range r.watchers {
				if ch == stopCh {
					r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
					close(ch)
					break
				}
			}
			r.mu.Unlock()
		})
	}
}
