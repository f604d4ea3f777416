// Package cache provides a short-lived result cache for expensive store
// queries. Entries are immutable snapshots; the whole entry map is replaced
// atomically on every write so readers never observe a partial update.
package cache

import (
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"
)

type entry struct {
	value   any
	expires time.Time
}

// Cache is a TTL cache keyed by operation and arguments
type Cache struct {
	entries atomic.Pointer[map[string]entry]
	ttl     time.Duration
	now     func() time.Time
	observe func(op string, hit bool)
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the wall clock used for expiry
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithObserver registers a callback invoked on every lookup
func WithObserver(fn func(op string, hit bool)) Option {
	return func(c *Cache) { c.observe = fn }
}

// New creates a cache whose entries live for ttl. A non-positive ttl
// disables caching.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	empty := make(map[string]entry)
	c.entries.Store(&empty)
	return c
}

// Key builds a cache key from an operation name and its arguments
func Key(op string, args ...any) string {
	if len(args) == 0 {
		return op
	}
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, op)
	for _, a := range args {
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	return strings.Join(parts, "|")
}

// Get returns the live value stored under key
func (c *Cache) Get(key string) (any, bool) {
	e, ok := (*c.entries.Load())[key]
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.value, true
}

// Put stores value under key, replacing any previous entry
func (c *Cache) Put(key string, value any) {
	if c.ttl <= 0 {
		return
	}
	expires := c.now().Add(c.ttl)
	for {
		old := c.entries.Load()
		next := make(map[string]entry, len(*old)+1)
		now := c.now()
		for k, e := range *old {
			if now.Before(e.expires) {
				next[k] = e
			}
		}
		next[key] = entry{value: value, expires: expires}
		if c.entries.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Invalidate drops every entry
func (c *Cache) Invalidate() {
	empty := make(map[string]entry)
	c.entries.Store(&empty)
}

// InvalidatePrefix drops the entries of one operation
func (c *Cache) InvalidatePrefix(op string) {
	for {
		old := c.entries.Load()
		next := maps.Clone(*old)
		for k := range next {
			if k == op || strings.HasPrefix(k, op+"|") {
				delete(next, k)
			}
		}
		if c.entries.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Len returns the number of stored entries, expired ones included
func (c *Cache) Len() int {
	return len(*c.entries.Load())
}

// Fetch returns the cached value for key or computes and stores it.
// An entry of an unexpected type is recomputed.
func Fetch[T any](c *Cache, op string, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			c.notify(op, true)
			return typed, nil
		}
	}
	c.notify(op, false)

	value, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Put(key, value)
	return value, nil
}

func (c *Cache) notify(op string, hit bool) {
	if c.observe != nil {
		c.observe(op, hit)
	}
}
