package app

import (
	"sync"
	"sync/atomic"
	"time"

	"oficio/api/internal/store"
)

// snapshotCache absorbs polling reads between mutations. Entries carry the
// issue number taken before the load started; a slow fetch that finishes
// after a newer one can never overwrite it.
type snapshotCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	issue   atomic.Int64
	entries map[string]cachedSnapshot
}

type cachedSnapshot struct {
	issue    int64
	snap     store.Snapshot
	storedAt time.Time
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{
		ttl:     ttl,
		entries: make(map[string]cachedSnapshot),
	}
}

// NextIssue must be called before the load it stamps begins.
func (c *snapshotCache) NextIssue() int64 {
	return c.issue.Add(1)
}

func (c *snapshotCache) Get(requestID string) (store.Snapshot, bool) {
	if c.ttl <= 0 {
		return store.Snapshot{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[requestID]
	if !ok || time.Since(entry.storedAt) > c.ttl {
		return store.Snapshot{}, false
	}
	return entry.snap, true
}

func (c *snapshotCache) Put(requestID string, issue int64, snap store.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[requestID]; ok && entry.issue > issue {
		return
	}
	c.entries[requestID] = cachedSnapshot{issue: issue, snap: snap, storedAt: time.Now()}
}

func (c *snapshotCache) Invalidate(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, requestID)
}
