// Package index keeps the content store and the vector index in step.
// Content CRUD itself lives outside the search subsystem; the host
// application pushes items through the Indexer so both retrieval paths
// see the same data and stale cached results are invalidated.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/notesearch/note-search/internal/bus"
	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/pkg/logger"
)

// VectorIndex is the slice of the vector backend the indexer needs.
// *qdrant.Client implements it.
type VectorIndex interface {
	UpsertItems(ctx context.Context, collection string, items []content.Item) error
	DeleteItem(ctx context.Context, collection string, item *content.Item) error
}

// ContentWriter is the mutable side of the content store.
type ContentWriter interface {
	Put(item content.Item)
	Delete(userID, id string, entityType content.EntityType)
}

// Indexer applies content changes to the store and the vector index and
// announces them on the bus so cached search results for the owner are
// dropped.
type Indexer struct {
	store      ContentWriter
	vector     VectorIndex
	collection string
	bus        bus.Bus
	log        *logger.Logger
}

// NewIndexer creates an indexer. vector may be nil when no vector
// backend is configured; items are then only visible to keyword search.
func NewIndexer(store ContentWriter, vector VectorIndex, collection string, b bus.Bus, log *logger.Logger) *Indexer {
	return &Indexer{
		store:      store,
		vector:     vector,
		collection: collection,
		bus:        b,
		log:        log,
	}
}

// Upsert stores an item and pushes its embedding to the vector index.
func (ix *Indexer) Upsert(ctx context.Context, item content.Item) error {
	if item.ID == "" || item.UserID == "" {
		return fmt.Errorf("item id and user id are required")
	}
	if item.EntityType == "" {
		item.EntityType = content.EntityNote
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = item.UpdatedAt
	}

	ix.store.Put(item)

	if ix.vector != nil && len(item.Embedding) > 0 {
		if err := ix.vector.UpsertItems(ctx, ix.collection, []content.Item{item}); err != nil {
			return fmt.Errorf("vector upsert %s: %w", item.Key(), err)
		}
	}

	ix.announce(ctx, item.UserID)
	return nil
}

// Delete removes an item from the store and the vector index.
func (ix *Indexer) Delete(ctx context.Context, userID, id string, entityType content.EntityType) error {
	if id == "" || userID == "" {
		return fmt.Errorf("item id and user id are required")
	}

	ix.store.Delete(userID, id, entityType)

	if ix.vector != nil {
		item := content.Item{ID: id, UserID: userID, EntityType: entityType}
		if err := ix.vector.DeleteItem(ctx, ix.collection, &item); err != nil {
			return fmt.Errorf("vector delete %s: %w", item.Key(), err)
		}
	}

	ix.announce(ctx, userID)
	return nil
}

// announce publishes search.content.changed. Losing the event only means
// cached results linger until their TTL, so failures are logged and
// swallowed.
func (ix *Indexer) announce(ctx context.Context, userID string) {
	if ix.bus == nil {
		return
	}
	err := ix.bus.Publish(ctx, bus.TopicContentChanged, bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.TopicContentChanged,
		Source:    "indexer",
		Timestamp: time.Now().UnixMilli(),
		Payload:   map[string]any{"user_id": userID},
	})
	if err != nil {
		ix.log.WithUser(userID).WithError(err).Warn("content change event dropped")
	}
}
