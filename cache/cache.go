// Package cache provides the process-wide TTL cache used by the generation
// client and the in-memory HTTP response store.
//
// A cache is constructed explicitly and passed to the components that use
// it. Capacity is expected to be small (tens to a few hundred entries):
// eviction scans every entry to find the oldest insertion.
package cache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/semtrip/metrics"
)

// Default settings used when the configuration leaves them unset.
const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 512
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTL is a mutex-guarded key/value store whose entries expire a fixed
// duration after insertion.
type TTL[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int

	name    string
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a TTL cache.
type Option func(*settings)

type settings struct {
	name    string
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithName sets the label used in logs and metrics.
func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics records hits, misses and evictions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// New creates a cache. Non-positive ttl or maxEntries fall back to the
// defaults.
func New[V any](ttl time.Duration, maxEntries int, opts ...Option) *TTL[V] {
	s := settings{
		name:   "default",
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &TTL[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		name:       s.name,
		now:        s.now,
		logger:     s.logger,
		metrics:    s.metrics,
	}
}

// Get returns the value stored under key if it has not expired. Expired
// entries are removed on access.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		c.metrics.CacheMiss(c.name)
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		c.metrics.CacheMiss(c.name)
		return zero, false
	}
	c.metrics.CacheHit(c.name)
	return e.value, true
}

// Set stores value under key. When the cache is full and key is new, the
// single entry with the oldest insertion time is evicted first.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// Delete removes key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, including expired entries that
// have not been accessed since they expired.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Values returns the unexpired values in no particular order.
func (c *TTL[V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]V, 0, len(c.entries))
	for _, e := range c.entries {
		if now.Sub(e.storedAt) < c.ttl {
			out = append(out, e.value)
		}
	}
	return out
}

// Clear drops every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// evictOldest must be called with mu held.
func (c *TTL[V]) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if !found {
		return
	}
	delete(c.entries, oldestKey)
	c.metrics.CacheEviction(c.name)
	c.logger.Debug("Cache entry evicted", "cache", c.name, "stored_at", oldestAt)
}

// MakeKey joins parts with "|" after formatting each with fmt.Sprint.
// Identical parts always produce identical keys.
func MakeKey(parts ...any) string {
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = fmt.Sprint(p)
	}
	return strings.Join(ss, "|")
}
