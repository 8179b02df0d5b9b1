// Package cache implements the workspace-scoped result cache: TTL-bounded,
// size-bounded, evicting in insertion order once capacity is exceeded.
package cache

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thebtf/switchboard/pkg/models"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeQuery lowercases, collapses whitespace, and trims a query so
// trivially different spellings share a cache entry.
func NormalizeQuery(query string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(strings.ToLower(query), " "))
}

// Key derives the cache key from the normalized query and the workspace id.
// The workspace id is part of the hashed input: identical query text in two
// workspaces must never share an entry.
func Key(query, workspaceID string) string {
	h := fnv.New64a()
	h.Write([]byte(NormalizeQuery(query)))
	h.Write([]byte{'|'})
	h.Write([]byte(workspaceID))
	return strconv.FormatUint(h.Sum64(), 36)
}

type entry struct {
	resp        *models.QueryResponse
	workspaceID string
	insertedAt  time.Time
	expiresAt   time.Time
}

type orderItem struct {
	key        string
	insertedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries     int   `json:"entries"`
	MaxEntries  int   `json:"maxEntries"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// ResultCache memoizes route responses per (normalized query, workspace).
// Entries are independent; only the map itself is guarded, no cross-key
// locking.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []orderItem
	max     int
	ttl     atomic.Int64 // nanoseconds; mutable for live settings reload

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// New creates a ResultCache holding at most maxEntries entries, each living
// for ttl after insertion.
func New(maxEntries int, ttl time.Duration) *ResultCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &ResultCache{
		entries: make(map[string]*entry),
		max:     maxEntries,
	}
	c.ttl.Store(int64(ttl))
	return c
}

// TTL returns the current entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// SetTTL changes the lifetime applied to future insertions.
func (c *ResultCache) SetTTL(ttl time.Duration) {
	c.ttl.Store(int64(ttl))
}

// Get returns a copy of the cached response for key, or false on a miss.
// Expired entries are removed on access. The copy lets the caller restamp
// timing metadata without mutating the stored entry.
func (c *ResultCache) Get(key string) (*models.QueryResponse, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have
		// replaced the entry with a fresh one.
		if cur, still := c.entries[key]; still && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.expirations.Add(1)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.resp.Clone(), true
}

// Put stores a response under key. When the key already exists its value is
// replaced in place, keeping the original insertion position. Capacity
// overflow evicts the oldest insertions first.
func (c *ResultCache) Put(key, workspaceID string, resp *models.QueryResponse) {
	now := time.Now()
	e := &entry{
		resp:        resp,
		workspaceID: workspaceID,
		insertedAt:  now,
		expiresAt:   now.Add(c.TTL()),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, exists := c.entries[key]; exists {
		// Keep the original queue position; only refresh value and expiry.
		e.insertedAt = old.insertedAt
		c.entries[key] = e
		return
	}

	c.entries[key] = e
	c.order = append(c.order, orderItem{key: key, insertedAt: now})

	if len(c.entries) > c.max {
		c.evictLocked()
	}
	if len(c.order) > 2*c.max+16 {
		c.compactLocked()
	}
}

// evictLocked drops oldest insertions until the cache fits. Queue items
// whose entry was already removed or replaced by a newer insertion are
// skipped.
func (c *ResultCache) evictLocked() {
	for len(c.entries) > c.max && len(c.order) > 0 {
		item := c.order[0]
		c.order = c.order[1:]

		e, ok := c.entries[item.key]
		if !ok || !e.insertedAt.Equal(item.insertedAt) {
			continue // stale queue item
		}
		delete(c.entries, item.key)
		c.evictions.Add(1)
	}
}

// compactLocked rebuilds the order queue without stale items.
func (c *ResultCache) compactLocked() {
	live := c.order[:0]
	for _, item := range c.order {
		if e, ok := c.entries[item.key]; ok && e.insertedAt.Equal(item.insertedAt) {
			live = append(live, item)
		}
	}
	c.order = live
}

// InvalidateWorkspace removes every entry belonging to workspaceID and
// returns the number removed.
func (c *ResultCache) InvalidateWorkspace(workspaceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.workspaceID == workspaceID {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries:     entries,
		MaxEntries:  c.max,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}
