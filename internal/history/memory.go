package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/notesearch/note-search/internal/content"
)

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]*Entry // userID -> normalized query -> entry
	now   func() time.Time
}

// NewMemoryStore creates an empty history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]*Entry),
		now:   time.Now,
	}
}

func (s *MemoryStore) Record(ctx context.Context, userID, query, queryType string, filters *content.Filters, resultCount int) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := Normalize(query)
	if normalized == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.users[userID]
	if entries == nil {
		entries = make(map[string]*Entry)
		s.users[userID] = entries
	}

	entry := upsert(entries[normalized], userID, query, queryType, filters, resultCount, s.now())
	entries[normalized] = entry
	s.trimLocked(entries)

	out := *entry
	return &out, nil
}

// trimLocked drops the least recently used entries past the cap.
func (s *MemoryStore) trimLocked(entries map[string]*Entry) {
	for len(entries) > MaxEntriesPerUser {
		var oldestKey string
		var oldest time.Time
		for key, e := range entries {
			if oldestKey == "" || e.LastUsedAt.Before(oldest) {
				oldestKey, oldest = key, e.LastUsedAt
			}
		}
		delete(entries, oldestKey)
	}
}

func (s *MemoryStore) List(ctx context.Context, userID string, q ListQuery) ([]Entry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	entries := make([]Entry, 0, len(s.users[userID]))
	for _, e := range s.users[userID] {
		entries = append(entries, *e)
	}
	s.mu.RUnlock()

	paged, total := page(entries, q)
	return paged, total, nil
}

func (s *MemoryStore) Suggest(ctx context.Context, userID, prefix string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized := Normalize(prefix)

	s.mu.RLock()
	var entries []Entry
	for _, e := range s.users[userID] {
		if normalized == "" || strings.HasPrefix(e.NormalizedQuery, normalized) {
			entries = append(entries, *e)
		}
	}
	s.mu.RUnlock()

	sortByUse(entries)
	return clip(entries, limit), nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, entryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.users[userID] {
		if e.ID == entryID {
			delete(s.users[userID], key)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.users[userID] {
		if e.LastUsedAt.Before(cutoff) {
			delete(s.users[userID], key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Clear(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.users, userID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
