package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache for tests and single-node deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache with the default TTL.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheTTL(DefaultTTL)
}

// NewMemoryCacheTTL creates an in-memory cache whose entries live for ttl
// unless the entry carries its own expiry.
func NewMemoryCacheTTL(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the entry for key, dropping it when expired. Each hit bumps
// HitCount and LastHitAt.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}

	entry.HitCount++
	entry.LastHitAt = c.now()

	out := *entry
	return &out, true, nil
}

// Put stores the entry, replacing any previous value under the same key.
func (c *MemoryCache) Put(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *entry
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = c.now()
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = stored.CreatedAt.Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[stored.Key] = &stored
	c.mu.Unlock()
	return nil
}

// InvalidateUser removes every entry belonging to userID.
func (c *MemoryCache) InvalidateUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if entry.UserID == userID {
			delete(c.entries, key)
		}
	}
	return nil
}

// Close releases nothing; present to satisfy Cache.
func (c *MemoryCache) Close() error { return nil }

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
