// Package cache holds read-through views derived from the local store.
// Entries live for the process lifetime at most; the store stays the system
// of record.
package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is used when New is given a non-positive TTL.
const DefaultTTL = 2 * time.Minute

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.storedAt.Add(e.ttl))
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is a concurrency-safe TTL map.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a cache whose entries expire after defaultTTL unless set otherwise.
func New(defaultTTL time.Duration, opts ...Option) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value under key. Expired entries are misses and are dropped.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expired(now) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key for ttl. A non-positive ttl uses the default.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Invalidate removes key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePattern removes every key containing substr and returns how many went.
func (c *Cache) InvalidatePattern(substr string) int {
	return c.invalidateMatching(func(k string) bool { return strings.Contains(k, substr) })
}

// InvalidateRegexp removes every key matched by re.
func (c *Cache) InvalidateRegexp(re *regexp.Regexp) int {
	return c.invalidateMatching(re.MatchString)
}

func (c *Cache) invalidateMatching(match func(string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included until read.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Remember returns the cached value under key, or calls load and caches its
// result. Load errors are returned and nothing is stored.
func Remember[T any](c *Cache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}
