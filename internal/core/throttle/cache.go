package throttle

import (
	"sort"
	"sync"
	"sync/atomic"
)

// LimitCache maps identities to their window counters. Entries are installed
// once and kept for the life of the process.
type LimitCache struct {
	entries sync.Map // identity -> *WindowCounter
	size    atomic.Int64
}

// CacheEntry is a point-in-time view of one cached counter.
type CacheEntry struct {
	Identity  string `json:"identity"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// NewLimitCache returns an empty cache.
func NewLimitCache() *LimitCache {
	return &LimitCache{}
}

// Get returns the counter for identity, if one has been installed.
func (c *LimitCache) Get(identity string) (*WindowCounter, bool) {
	value, ok := c.entries.Load(identity)
	if !ok {
		return nil, false
	}
	return value.(*WindowCounter), true
}

// PutIfAbsent installs counter for identity unless another counter got there
// first. It returns the counter every caller must use from now on.
func (c *LimitCache) PutIfAbsent(identity string, counter *WindowCounter) (*WindowCounter, bool) {
	actual, loaded := c.entries.LoadOrStore(identity, counter)
	if !loaded {
		c.size.Add(1)
	}
	return actual.(*WindowCounter), !loaded
}

// Len returns the number of cached identities.
func (c *LimitCache) Len() int {
	return int(c.size.Load())
}

// Snapshot lists cached identities sorted by name.
func (c *LimitCache) Snapshot() []CacheEntry {
	entries := make([]CacheEntry, 0, c.Len())
	c.entries.Range(func(key, value any) bool {
		counter := value.(*WindowCounter)
		entries = append(entries, CacheEntry{
			Identity:  key.(string),
			Limit:     counter.Limit(),
			Remaining: counter.Remaining(),
		})
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identity < entries[j].Identity
	})
	return entries
}
