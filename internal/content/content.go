// Package content defines the content store boundary the search subsystem
// retrieves from. Items are owned by external note/document services; the
// search side only reads them.
package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntityType identifies the kind of content item.
type EntityType string

const (
	EntityNote     EntityType = "note"
	EntityDocument EntityType = "document"
	EntityAny      EntityType = "any"
)

// Importance levels for content items.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Sentiment labels for content items.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Item is a searchable content item. Embedding is optional; items without
// one are still reachable through keyword search.
type Item struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	Tags       []string   `json:"tags,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Importance Importance `json:"importance,omitempty"`
	Sentiment  Sentiment  `json:"sentiment,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Embedding  []float32  `json:"-"`
}

// Key returns the content identity used for merging ranker outputs.
func (i *Item) Key() string {
	return i.ID + "/" + string(i.EntityType)
}

// DateRange bounds CreatedAt. Zero From or To leaves that side open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Filters constrains a search. Every field is optional; the zero value
// matches everything. Absent means "no constraint", never "match empty".
type Filters struct {
	Tags       []string   `json:"tags,omitempty"`
	DateRange  *DateRange `json:"date_range,omitempty"`
	Importance Importance `json:"importance,omitempty"`
	Sentiment  Sentiment  `json:"sentiment,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
}

// IsZero reports whether no constraint is set.
func (f *Filters) IsZero() bool {
	if f == nil {
		return true
	}
	return len(f.Tags) == 0 && f.DateRange == nil && f.Importance == "" &&
		f.Sentiment == "" && len(f.Categories) == 0 &&
		(f.EntityType == "" || f.EntityType == EntityAny)
}

// Matches reports whether an item satisfies every set constraint.
// Tag filters require all listed tags; category filters require overlap.
func (f *Filters) Matches(item *Item) bool {
	if f.IsZero() {
		return true
	}

	if f.EntityType != "" && f.EntityType != EntityAny && item.EntityType != f.EntityType {
		return false
	}

	if f.Importance != "" && item.Importance != f.Importance {
		return false
	}

	if f.Sentiment != "" && item.Sentiment != f.Sentiment {
		return false
	}

	if f.DateRange != nil {
		if !f.DateRange.From.IsZero() && item.CreatedAt.Before(f.DateRange.From) {
			return false
		}
		if !f.DateRange.To.IsZero() && item.CreatedAt.After(f.DateRange.To) {
			return false
		}
	}

	if len(f.Tags) > 0 {
		itemTags := make(map[string]bool, len(item.Tags))
		for _, tag := range item.Tags {
			itemTags[strings.ToLower(tag)] = true
		}
		for _, want := range f.Tags {
			if !itemTags[strings.ToLower(want)] {
				return false
			}
		}
	}

	if len(f.Categories) > 0 {
		found := false
		for _, cat := range item.Categories {
			for _, want := range f.Categories {
				if strings.EqualFold(cat, want) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Canonical returns a deterministic serialization of the filters for use in
// cache fingerprints. Equal constraints always serialize identically; set
// fields are sorted so input order does not matter.
func (f *Filters) Canonical() string {
	if f.IsZero() {
		return ""
	}

	var b strings.Builder

	if len(f.Tags) > 0 {
		tags := normalizeSet(f.Tags)
		b.WriteString("tags=")
		b.WriteString(strings.Join(tags, ","))
		b.WriteByte(';')
	}
	if f.DateRange != nil {
		b.WriteString("range=")
		if !f.DateRange.From.IsZero() {
			b.WriteString(f.DateRange.From.UTC().Format(time.RFC3339))
		}
		b.WriteByte('~')
		if !f.DateRange.To.IsZero() {
			b.WriteString(f.DateRange.To.UTC().Format(time.RFC3339))
		}
		b.WriteByte(';')
	}
	if f.Importance != "" {
		fmt.Fprintf(&b, "importance=%s;", f.Importance)
	}
	if f.Sentiment != "" {
		fmt.Fprintf(&b, "sentiment=%s;", f.Sentiment)
	}
	if len(f.Categories) > 0 {
		cats := normalizeSet(f.Categories)
		b.WriteString("categories=")
		b.WriteString(strings.Join(cats, ","))
		b.WriteByte(';')
	}
	if f.EntityType != "" && f.EntityType != EntityAny {
		fmt.Fprintf(&b, "entity=%s;", f.EntityType)
	}

	return b.String()
}

// Validate rejects filter values outside the closed enums.
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	switch f.Importance {
	case "", ImportanceLow, ImportanceMedium, ImportanceHigh:
	default:
		return fmt.Errorf("invalid importance: %s", f.Importance)
	}
	switch f.Sentiment {
	case "", SentimentPositive, SentimentNeutral, SentimentNegative:
	default:
		return fmt.Errorf("invalid sentiment: %s", f.Sentiment)
	}
	switch f.EntityType {
	case "", EntityAny, EntityNote, EntityDocument:
	default:
		return fmt.Errorf("invalid entity type: %s", f.EntityType)
	}
	if f.DateRange != nil && !f.DateRange.From.IsZero() && !f.DateRange.To.IsZero() &&
		f.DateRange.To.Before(f.DateRange.From) {
		return fmt.Errorf("date range end before start")
	}
	return nil
}

func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	sort.Strings(out)
	return out
}

// Store is the read boundary to the external content service.
type Store interface {
	// ItemsForUser returns the items owned by userID that satisfy filters.
	ItemsForUser(ctx context.Context, userID string, filters *Filters) ([]Item, error)
}
