package transcript

import (
	"os"
	"sync"
	"time"

	"github.com/bdmorin/the-no-shop/internal/domain"
)

type cacheEntry struct {
	stats     domain.TranscriptStats
	size      int64
	scannedAt time.Time
}

// Cache is a per-session staleness-aware stats cache. An entry younger than
// the TTL is served as-is unless the source's byte length has changed since
// the last scan, in which case a re-scan is forced regardless of TTL. This
// keeps stats fresh while a conversation is actively appending to its log
// without re-parsing on every request.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	scan    func(string) (domain.TranscriptStats, error)
	entries map[string]*cacheEntry
}

// NewCache creates a stats cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		scan:    Scan,
		entries: make(map[string]*cacheEntry),
	}
}

// Stats returns transcript statistics for the session, scanning the source
// only when the cached entry is stale or the source has grown.
func (c *Cache) Stats(sessionID, path string) domain.TranscriptStats {
	size := sourceSize(path)

	c.mu.Lock()
	if e, ok := c.entries[sessionID]; ok {
		if e.size == size && time.Since(e.scannedAt) < c.ttl {
			stats := e.stats
			c.mu.Unlock()
			return stats
		}
	}
	c.mu.Unlock()

	stats, _ := c.scan(path)

	c.mu.Lock()
	c.entries[sessionID] = &cacheEntry{stats: stats, size: size, scannedAt: time.Now()}
	c.mu.Unlock()

	return stats
}

// Refresh bypasses the cache entirely, re-scanning the source and updating
// the cached entry. Used when counters must be reconciled synchronously
// (session resume, session end).
func (c *Cache) Refresh(sessionID, path string) domain.TranscriptStats {
	size := sourceSize(path)
	stats, _ := c.scan(path)

	c.mu.Lock()
	c.entries[sessionID] = &cacheEntry{stats: stats, size: size, scannedAt: time.Now()}
	c.mu.Unlock()

	return stats
}

// sourceSize returns the byte length of the source, -1 when it does not
// exist. The distinct sentinel means a log appearing later is seen as a
// length change and triggers a scan.
func sourceSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}
