package state

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "projectd",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of project cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "projectd",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of project cache misses",
	})

	cacheEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "projectd",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Current number of cached project records",
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "projectd",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of project cache LRU evictions",
	})
)

// cacheEntry is one cached project record.
type cacheEntry struct {
	state        *project.State
	expiresAt    time.Time
	lastAccessed time.Time
}

// recordCache is a TTL plus LRU cache of project records keyed by id.
// Records are cloned on the way in and on the way out so cached state
// is never aliased by callers.
type recordCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	ttl        time.Duration
	maxEntries int
}

// newRecordCache creates a cache holding at most maxEntries records,
// each valid for ttl after it was stored.
func newRecordCache(ttl time.Duration, maxEntries int) *recordCache {
	return &recordCache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get returns a copy of the cached record. Expired entries are removed
// and count as misses.
func (c *recordCache) Get(id string) (*project.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.entries, id)
		cacheEntriesGauge.Set(float64(len(c.entries)))
		cacheMisses.Inc()
		return nil, false
	}

	entry.lastAccessed = time.Now()
	cacheHits.Inc()
	return entry.state.Clone(), true
}

// Set stores a copy of the record, evicting the least recently used
// entry when the cache is at capacity and id is not already present.
func (c *recordCache) Set(id string, p *project.State) {
	if p == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[id] = &cacheEntry{
		state:        p.Clone(),
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
	cacheEntriesGauge.Set(float64(len(c.entries)))
}

// Delete removes an entry. No-op when the id is not cached.
func (c *recordCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
	cacheEntriesGauge.Set(float64(len(c.entries)))
}

// Clear removes all entries.
func (c *recordCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	cacheEntriesGauge.Set(0)
}

// Len reports the number of cached records.
func (c *recordCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLRU removes the entry with the oldest access time. Caller must
// hold the lock.
func (c *recordCache) evictLRU() {
	var oldestID string
	var oldestTime time.Time

	first := true
	for id, entry := range c.entries {
		if first || entry.lastAccessed.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.lastAccessed
			first = false
		}
	}

	if oldestID != "" {
		delete(c.entries, oldestID)
		cacheEvictions.Inc()
	}
}
