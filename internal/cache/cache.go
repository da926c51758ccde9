// Package cache provides analysis result caches.
//
// Both backends store opaque serialized results keyed by
// analysis.CacheKey. A missing or expired key is a miss, not an error.
//
// Example usage:
//
//	c := cache.NewMemory(1024, time.Hour)
//	_ = c.Set(ctx, "analysis:42:ab12", payload, time.Hour)
//	payload, ok, err := c.Get(ctx, "analysis:42:ab12")
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxEntries bounds the in-memory cache when no size is configured.
const DefaultMaxEntries = 1024

// Memory is a bounded in-process LRU cache with per-entry TTL.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time

	mu     sync.Mutex
	hits   int64
	misses int64
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock sets the time source used for entry expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates a cache holding at most maxEntries values. maxTTL caps
// how long any entry lives regardless of the TTL passed to Set.
func NewMemory(maxEntries int, maxTTL time.Duration, opts ...MemoryOption) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	m := &Memory{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, maxTTL),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the value stored under key.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	e, ok := m.lru.Get(key)
	if ok && !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.lru.Remove(key)
		ok = false
	}
	m.mu.Lock()
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl. A non-positive ttl keeps the entry
// until the cache-wide limit evicts it.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of stored entries, including ones not yet purged.
func (m *Memory) Len() int {
	return m.lru.Len()
}

// Stats returns hit and miss counts since creation.
func (m *Memory) Stats() (hits, misses int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
