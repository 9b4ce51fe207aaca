package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps analytics records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record // userID -> records, append order
}

// NewMemoryStore creates an empty analytics store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (s *MemoryStore) Record(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.records[stored.UserID] = append(s.records[stored.UserID], stored)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Summarize(ctx context.Context, userID string, from, to time.Time, mode string, topN int) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []Record
	for _, r := range s.records[userID] {
		if inRange(r.Timestamp, from, to) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	return summarize(matched, mode, topN), nil
}

func (s *MemoryStore) Purge(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[userID][:0]
	removed := 0
	for _, r := range s.records[userID] {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records[userID] = kept
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
