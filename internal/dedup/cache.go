package dedup

import (
	"sync"
	"time"
)

// DefaultTTL matches the upstream push retry burst window.
const DefaultTTL = time.Second

// Cache is a time-windowed admission set for change-event keys. Its only
// job is to absorb burst-retries of the same upstream push; entries become
// eligible again after the TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCache creates a cache with the given TTL. A ttl <= 0 falls back to
// DefaultTTL. A background sweeper runs at the TTL interval; Close stops it.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.sweeper()
	return c
}

// Admit reports whether key is new within the TTL window. The check and
// insert happen under one lock so concurrent producers cannot both admit
// the same key.
func (c *Cache) Admit(key string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.entries[key]; ok && now.Before(exp) {
		return false
	}
	c.entries[key] = now.Add(c.ttl)
	return true
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) sweeper() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, exp := range c.entries {
				if now.After(exp) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
