package content

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe in-memory content store. It backs the server
// in standalone mode and all package tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]map[string]Item // userID -> item key -> item
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]Item),
	}
}

// Put inserts or replaces an item.
func (m *MemoryStore) Put(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey, ok := m.items[item.UserID]
	if !ok {
		byKey = make(map[string]Item)
		m.items[item.UserID] = byKey
	}
	byKey[item.Key()] = item
}

// Delete removes an item if present.
func (m *MemoryStore) Delete(userID, id string, entityType EntityType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if byKey, ok := m.items[userID]; ok {
		delete(byKey, id+"/"+string(entityType))
	}
}

// ItemsForUser implements Store. Results are copies; callers may not mutate
// stored state through them.
func (m *MemoryStore) ItemsForUser(ctx context.Context, userID string, filters *Filters) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byKey, ok := m.items[userID]
	if !ok {
		return nil, nil
	}

	results := make([]Item, 0, len(byKey))
	for _, item := range byKey {
		if filters.Matches(&item) {
			results = append(results, item)
		}
	}
	return results, nil
}

// Count returns the number of items stored for a user.
func (m *MemoryStore) Count(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items[userID])
}
