// Package cache provides the two-level embedding cache and the caching
// decorator that composes timeout, retry, in-flight limiting and caching
// around any ports.Embedder.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// vectorBytes approximates the memory footprint of a cached vector.
func vectorBytes(vector []float32) int64 {
	return int64(4 * len(vector))
}

// Memory is the L1 cache: an LRU bounded by entry count and total bytes.
type Memory struct {
	mu    sync.Mutex
	inner *lru.Cache[string, []float32]

	maxBytes   int64
	totalBytes int64
}

// NewMemory creates an L1 cache with the given caps. maxEntries must be
// positive; maxBytes <= 0 disables the byte cap.
func NewMemory(maxEntries int, maxBytes int64) (*Memory, error) {
	m := &Memory{maxBytes: maxBytes}
	inner, err := lru.NewWithEvict[string, []float32](maxEntries, func(key string, vector []float32) {
		m.totalBytes -= vectorBytes(vector)
	})
	if err != nil {
		return nil, err
	}
	m.inner = inner
	return m, nil
}

// Get returns the cached vector and whether it was present.
func (m *Memory) Get(key string) ([]float32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Get(key)
}

// Put stores a vector, evicting oldest entries until both caps hold.
func (m *Memory) Put(key string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.inner.Peek(key); ok {
		m.totalBytes -= vectorBytes(previous)
	}
	m.inner.Add(key, vector)
	m.totalBytes += vectorBytes(vector)

	if m.maxBytes > 0 {
		for m.totalBytes > m.maxBytes && m.inner.Len() > 0 {
			m.inner.RemoveOldest()
		}
	}
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inner.Len()
}

// Bytes returns the approximate cached byte total.
func (m *Memory) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// Purge drops every entry.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inner.Purge()
	m.totalBytes = 0
}
