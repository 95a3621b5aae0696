package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/ports"
)

// Options configure the caching decorator.
type Options struct {
	// Timeout bounds each inner embedding call. <= 0 disables.
	Timeout time.Duration

	// Retry is applied to Retriable inner failures.
	Retry errors.RetryPolicy

	// MaxInFlight bounds concurrent inner calls. <= 0 means unbounded.
	MaxInFlight int64

	// Memory is the L1 cache (optional).
	Memory *Memory

	// Disk is the L2 cache (optional).
	Disk *Disk

	// Telemetry receives cache and retry counters (optional).
	Telemetry ports.Telemetry
}

// Cached composes timeout, retry, in-flight limiting and two cache levels
// around any ports.Embedder. The wrapper is the single place these
// concerns live; adapters stay plain transports.
type Cached struct {
	inner   ports.Embedder
	options Options
	sem     *semaphore.Weighted

	mu        sync.Mutex
	dimension int
}

var _ ports.Embedder = (*Cached)(nil)

// NewCached wraps inner with the configured decorators.
func NewCached(inner ports.Embedder, opts Options) *Cached {
	c := &Cached{inner: inner, options: opts}
	if opts.MaxInFlight > 0 {
		c.sem = semaphore.NewWeighted(opts.MaxInFlight)
	}
	return c
}

// ProviderID identifies the wrapped adapter.
func (c *Cached) ProviderID() domain.EmbeddingProviderID { return c.inner.ProviderID() }

// Model returns the wrapped model identifier.
func (c *Cached) Model() string { return c.inner.Model() }

// DetectDimension probes the inner provider once and memoizes the result.
func (c *Cached) DetectDimension(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.dimension > 0 {
		dim := c.dimension
		c.mu.Unlock()
		return dim, nil
	}
	c.mu.Unlock()

	dim, err := c.inner.DetectDimension(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.dimension = dim
	c.mu.Unlock()
	return dim, nil
}

// namespace scopes cache keys so providers and models never collide.
func (c *Cached) namespace() string {
	c.mu.Lock()
	dim := c.dimension
	c.mu.Unlock()
	return fmt.Sprintf("%s:%s:%d", c.inner.ProviderID(), c.inner.Model(), dim)
}

// cacheKey is sha256(namespace ":" text) in hex.
func (c *Cached) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.namespace() + ":" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding or computes and caches one.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch resolves each text through L1, then L2, then the inner
// provider; fresh vectors are written back to both levels.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string

	for i, text := range texts {
		key := c.cacheKey(text)
		if c.options.Memory != nil {
			if vector, ok := c.options.Memory.Get(key); ok {
				results[i] = vector
				c.count("cache.hit", map[string]string{"source": "memory"})
				continue
			}
		}
		if c.options.Disk != nil {
			vector, ok, err := c.options.Disk.Get(ctx, key)
			if err != nil {
				slog.Warn("disk cache read failed", slog.String("error", err.Error()))
			} else if ok {
				results[i] = vector
				if c.options.Memory != nil {
					c.options.Memory.Put(key, vector)
				}
				c.count("cache.hit", map[string]string{"source": "disk"})
				continue
			}
		}
		c.count("cache.miss", nil)
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.embedInner(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIndices {
		results[idx] = fresh[j]
		key := c.cacheKey(texts[idx])
		if c.options.Memory != nil {
			c.options.Memory.Put(key, fresh[j])
		}
		if c.options.Disk != nil {
			if err := c.options.Disk.Put(ctx, key, fresh[j]); err != nil {
				slog.Warn("disk cache write failed", slog.String("error", err.Error()))
			}
		}
	}
	return results, nil
}

// embedInner runs the real provider call under the semaphore, the
// per-operation timeout and the retry policy.
func (c *Cached) embedInner(ctx context.Context, texts []string) ([][]float32, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Cancelled("embed.acquire").WithCause(err)
		}
		defer c.sem.Release(1)
	}

	policy := c.options.Retry
	policy.OnRetry = func(attempt int, err error) {
		c.count("retry.attempt", map[string]string{"operation": "embed_batch"})
	}
	policy.OnExhausted = func(attempts int, err error) {
		c.count("retry.exhausted", map[string]string{"operation": "embed_batch"})
	}

	return errors.RetryWithResult(ctx, policy, func() ([][]float32, error) {
		callCtx := ctx
		var cancel context.CancelFunc
		if c.options.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.options.Timeout)
			defer cancel()
		}
		vectors, err := c.inner.EmbedBatch(callCtx, texts)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				c.count("timeout.triggered", nil)
				return nil, errors.Timeout("embed_batch").WithCause(err)
			}
			return nil, err
		}
		return vectors, nil
	})
}

// Close closes the inner provider and the disk cache.
func (c *Cached) Close() error {
	if c.options.Disk != nil {
		if err := c.options.Disk.Close(); err != nil {
			slog.Warn("disk cache close failed", slog.String("error", err.Error()))
		}
	}
	return c.inner.Close()
}

func (c *Cached) count(name string, tags map[string]string) {
	if c.options.Telemetry != nil {
		c.options.Telemetry.Counter(name, 1, tags)
	}
}
