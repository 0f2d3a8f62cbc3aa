// Package cache implements the time-bounded read cache shared by every
// collection fetch. Entries expire by elapsed time only; any write anywhere
// invalidates every entry at once by bumping a process-wide generation
// counter, so cross-record derived views are never served stale after a
// mutation.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	gen       uint64
	fetchedAt time.Time
	value     any
}

type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	gen uint64
	now func() time.Time

	entries map[string]entry
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// NewWithClock is for tests that need to control elapsed time.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	c := New(ttl)
	c.now = now
	return c
}

// Get returns the cached snapshot for key if it was stored under the current
// generation and within the freshness window.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.gen != c.gen {
		delete(c.entries, key)
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{gen: c.gen, fetchedAt: c.now(), value: value}
}

// Invalidate expires every entry by advancing the generation counter. Called
// after any successful write.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
}
