package proxy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Cache is the proxy's advisory view of the ban table. It exists for display
// surfaces only; the connect gate never consults it, every routing decision
// reads the store. Hints from the link and the periodic refresh both land
// here.
type Cache struct {
	mu   sync.RWMutex
	bans map[uuid.UUID]time.Time
}

// NewCache builds an empty advisory cache.
func NewCache() *Cache {
	return &Cache{bans: make(map[uuid.UUID]time.Time)}
}

// Banned reports the cached view of subject. Advisory only.
func (c *Cache) Banned(subject uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	expiry, ok := c.bans[subject]
	return ok && expiry.After(time.Now())
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bans)
}

// Replace swaps the whole cached view, used by the periodic store refresh.
func (c *Cache) Replace(bans map[uuid.UUID]time.Time) {
	c.mu.Lock()
	c.bans = bans
	c.mu.Unlock()
	slog.Debug("proxy: advisory cache refreshed", "entries", len(bans))
}

// HintBan records a ban hint from the link.
func (c *Cache) HintBan(subject uuid.UUID, expiresAt time.Time) {
	c.mu.Lock()
	c.bans[subject] = expiresAt
	c.mu.Unlock()
}

// HintUnban drops a subject from the cached view.
func (c *Cache) HintUnban(subject uuid.UUID) {
	c.mu.Lock()
	delete(c.bans, subject)
	c.mu.Unlock()
}

// HintClearAll empties the cached view.
func (c *Cache) HintClearAll() {
	c.mu.Lock()
	c.bans = make(map[uuid.UUID]time.Time)
	c.mu.Unlock()
}

// HintStatus applies a CHECK_BAN answer to the cached view.
func (c *Cache) HintStatus(subject uuid.UUID, banned bool, left time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if banned {
		c.bans[subject] = time.Now().Add(left)
		return
	}
	delete(c.bans, subject)
}
