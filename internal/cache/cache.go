package cache

import (
	"sync"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
)

// GuardViewCache is the read-through cache of the narrow user view used by
// request-time guards. It is an optimization, never a source of truth:
// callers fall back to the store on a miss, and every write that changes
// the cached fields must call Delete synchronously.
type GuardViewCache interface {
	Get(userID string) (*models.GuardView, bool)
	Set(userID string, view *models.GuardView)
	Delete(userID string)
}

type entry struct {
	view      models.GuardView
	expiresAt time.Time
}

// MemoryCache is an in-process TTL-bound GuardViewCache.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

func (c *MemoryCache) Get(userID string) (*models.GuardView, bool) {
	c.mu.RLock()
	e, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.Delete(userID)
		return nil, false
	}

	view := e.view
	return &view, true
}

func (c *MemoryCache) Set(userID string, view *models.GuardView) {
	if view == nil {
		return
	}
	c.mu.Lock()
	c.entries[userID] = entry{view: *view, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Delete(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}
