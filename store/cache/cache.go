// Package cache provides a small in-process TTL cache used by the store for
// hot per-user records. It is an optimization only: every value it holds can
// be re-read from the database, so eviction is always safe.
package cache

import (
	"sync"
	"time"
)

// Config controls cache behavior.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	// MaxItems bounds the cache; when full, the entry closest to expiry is
	// evicted to make room. Zero means unbounded.
	MaxItems   int
	OnEviction func(key string, value any)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is a mutex-guarded map with per-entry TTL and a background cleanup
// goroutine. Close stops the goroutine; using a closed cache is a no-op for
// writes and a miss for reads.
type Cache struct {
	mu     sync.RWMutex
	config Config
	items  map[string]entry
	done   chan struct{}
	once   sync.Once
}

func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	c := &Cache{
		config: config,
		items:  make(map[string]entry),
		done:   make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the cached value for key, or false when absent or expired.
// Expired entries are dropped on access rather than waiting for cleanup.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.Delete(key)
		return nil, false
	}
	return item.value, true
}

// Set stores a value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed() {
		return
	}
	if c.config.MaxItems > 0 && len(c.items) >= c.config.MaxItems {
		if _, exists := c.items[key]; !exists {
			c.evictSoonestLocked()
		}
	}
	c.items[key] = entry{
		value:     value,
		expiresAt: time.Now().Add(c.config.DefaultTTL),
	}
}

// Delete removes a key. Missing keys are fine.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	item, ok := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()

	if ok && c.config.OnEviction != nil {
		c.config.OnEviction(key, item.value)
	}
}

// Close stops the cleanup goroutine and drops all entries. Safe to call
// more than once.
func (c *Cache) Close() {
	c.once.Do(func() {
		close(c.done)
	})
	c.mu.Lock()
	c.items = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Cache) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// evictSoonestLocked removes the entry closest to expiry. Caller holds the
// write lock.
func (c *Cache) evictSoonestLocked() {
	var victim string
	var soonest time.Time
	for key, item := range c.items {
		if victim == "" || item.expiresAt.Before(soonest) {
			victim = key
			soonest = item.expiresAt
		}
	}
	if victim != "" {
		item := c.items[victim]
		delete(c.items, victim)
		if c.config.OnEviction != nil {
			c.config.OnEviction(victim, item.value)
		}
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	var expired []string
	var values []any
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			expired = append(expired, key)
			values = append(values, item.value)
			delete(c.items, key)
		}
	}
	c.mu.Unlock()

	if c.config.OnEviction != nil {
		for i, key := range expired {
			c.config.OnEviction(key, values[i])
		}
	}
}
