// Package cache stores completed search responses keyed by a deterministic
// fingerprint of the request.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/pkg/hash"
)

// DefaultTTL is how long a cached response stays valid.
const DefaultTTL = 60 * time.Minute

// Entry is one cached search response with its bookkeeping.
type Entry struct {
	Key       string          `json:"key"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	HitCount  int64           `json:"hit_count"`
	LastHitAt time.Time       `json:"last_hit_at,omitzero"`
}

// Expired reports whether the entry is past its deadline at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache is the search response cache. Get returns ok=false for both a
// missing and an expired entry; implementations count hits as a side
// effect of Get and never let bookkeeping failures surface.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
	InvalidateUser(ctx context.Context, userID string) error
	Close() error
}

// Key fingerprints a search request. Two requests that normalize to the
// same query against the same filters, mode and page produce the same key;
// any differing component produces a different one. Keys never collide
// across users.
func Key(userID, normalizedQuery string, filters *content.Filters, mode string, limit, offset int) string {
	canonical := ""
	if filters != nil {
		canonical = filters.Canonical()
	}
	return hash.Fingerprint(
		userID,
		normalizedQuery,
		canonical,
		mode,
		strconv.Itoa(limit),
		strconv.Itoa(offset),
	)
}
