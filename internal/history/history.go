// Package history tracks each user's past queries and serves typeahead
// suggestions from them.
package history

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notesearch/note-search/internal/content"
)

// MaxEntriesPerUser bounds a user's history; the least recently used
// entries are trimmed past this.
const MaxEntriesPerUser = 200

// Entry is one remembered query. Repeating a query that normalizes the
// same updates the existing entry instead of adding a new one.
type Entry struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Query           string           `json:"query"`
	NormalizedQuery string           `json:"normalized_query"`
	QueryType       string           `json:"query_type"`
	Filters         *content.Filters `json:"filters,omitempty"`
	ResultCount     int              `json:"result_count"`
	UseCount        int64            `json:"use_count"`
	FirstUsedAt     time.Time        `json:"first_used_at"`
	LastUsedAt      time.Time        `json:"last_used_at"`
}

// ListQuery narrows and pages a history listing. Zero values impose no
// constraint; the time window is half-open, From inclusive, To exclusive.
type ListQuery struct {
	Limit     int
	Offset    int
	QueryType string
	From      time.Time
	To        time.Time
}

func (q ListQuery) matches(e *Entry) bool {
	if q.QueryType != "" && e.QueryType != q.QueryType {
		return false
	}
	if !q.From.IsZero() && e.LastUsedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.LastUsedAt.Before(q.To) {
		return false
	}
	return true
}

// Store persists per-user query history. All operations are scoped to one
// user; no call can observe another user's entries.
type Store interface {
	// Record upserts a query. An existing entry under the same normalized
	// query gains a use and fresh metadata; otherwise a new entry is born.
	Record(ctx context.Context, userID, query, queryType string, filters *content.Filters, resultCount int) (*Entry, error)

	// List returns entries matching q most recently used first, along
	// with the total match count before paging.
	List(ctx context.Context, userID string, q ListQuery) ([]Entry, int, error)

	// Suggest returns queries whose normalized form starts with the
	// normalized prefix, most used first, recency breaking ties.
	Suggest(ctx context.Context, userID, prefix string, limit int) ([]Entry, error)

	// Delete removes a single entry by ID. Unknown IDs are a no-op.
	Delete(ctx context.Context, userID, entryID string) error

	// DeleteOlderThan removes entries last used before the cutoff and
	// reports how many went.
	DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// Clear removes the user's entire history.
	Clear(ctx context.Context, userID string) error

	Close() error
}

// Normalize folds a query for dedup and prefix matching: trimmed,
// lowercased, inner whitespace collapsed.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// upsert applies the Record semantics to an existing entry, or builds a
// fresh one. Shared by the store implementations.
func upsert(existing *Entry, userID, query, queryType string, filters *content.Filters, resultCount int, now time.Time) *Entry {
	if existing != nil {
		existing.Query = query
		existing.QueryType = queryType
		existing.Filters = filters
		existing.ResultCount = resultCount
		existing.UseCount++
		existing.LastUsedAt = now
		return existing
	}
	return &Entry{
		ID:              uuid.NewString(),
		UserID:          userID,
		Query:           query,
		NormalizedQuery: Normalize(query),
		QueryType:       queryType,
		Filters:         filters,
		ResultCount:     resultCount,
		UseCount:        1,
		FirstUsedAt:     now,
		LastUsedAt:      now,
	}
}

// page applies ListQuery matching, recency ordering and paging, and
// reports the total match count.
func page(entries []Entry, q ListQuery) ([]Entry, int) {
	matched := entries[:0]
	for _, e := range entries {
		if q.matches(&e) {
			matched = append(matched, e)
		}
	}
	sortByRecency(matched)

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= total {
			return []Entry{}, total
		}
		matched = matched[q.Offset:]
	}
	return clip(matched, q.Limit), total
}

func sortByRecency(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].LastUsedAt.Equal(entries[j].LastUsedAt) {
			return entries[i].LastUsedAt.After(entries[j].LastUsedAt)
		}
		return entries[i].NormalizedQuery < entries[j].NormalizedQuery
	})
}

func sortByUse(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UseCount != entries[j].UseCount {
			return entries[i].UseCount > entries[j].UseCount
		}
		if !entries[i].LastUsedAt.Equal(entries[j].LastUsedAt) {
			return entries[i].LastUsedAt.After(entries[j].LastUsedAt)
		}
		return entries[i].NormalizedQuery < entries[j].NormalizedQuery
	})
}

func clip(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
