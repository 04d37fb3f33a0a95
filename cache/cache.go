package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

// entry holds cached page text with its creation timestamp.
type entry struct {
	content   string
	createdAt time.Time
}

// Cache is a small in-memory cache of fetched page text keyed by provider
// and URL. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// New creates a Cache holding at most maxEntries pages for ttl each.
// A background goroutine evicts expired entries every five minutes until
// Close is called.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	go c.cleanupLoop(cleanupInterval)
	return c
}

// Key generates a cache key from the provider name, payload key and URL.
func Key(provider, payloadKey, url string) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte("|"))
	h.Write([]byte(payloadKey))
	h.Write([]byte("|"))
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns cached content younger than the cache TTL.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return "", false
	}
	return e.content, true
}

// Set stores content. If the cache is at capacity, the oldest entry is
// evicted to make room.
func (c *Cache) Set(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{content: content, createdAt: c.now()}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine. Stored entries stay readable.
// It is safe to call more than once.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.stopped
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	defer close(c.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
