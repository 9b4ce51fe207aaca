package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/rank"
)

// ScoredID is one vector search hit before hydration.
type ScoredID struct {
	ItemID     string
	EntityType content.EntityType
	Score      float64
}

// DenseSearch runs a cosine search scoped to one user. The entity type
// filter is pushed down; the remaining filters are applied after
// hydration by the caller.
func (c *Client) DenseSearch(ctx context.Context, collection, userID string, vector []float32, filters *content.Filters, threshold float64, limit int) ([]ScoredID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("dense vector is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: collectionName(collection),
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         buildFilter(userID, filters),
	}
	if threshold > 0 {
		queryPoints.ScoreThreshold = qdrant.PtrOf(float32(threshold))
	}

	results, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	scored := make([]ScoredID, 0, len(results))
	for _, point := range results {
		payload := point.GetPayload()
		scored = append(scored, ScoredID{
			ItemID:     payload["item_id"].GetStringValue(),
			EntityType: content.EntityType(payload["entity_type"].GetStringValue()),
			Score:      float64(point.GetScore()),
		})
	}
	return scored, nil
}

// buildFilter always pins user_id; entity type is added when the filter
// names one.
func buildFilter(userID string, filters *content.Filters) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch("user_id", userID),
	}
	if filters != nil && filters.EntityType != "" && filters.EntityType != content.EntityAny {
		must = append(must, qdrant.NewMatch("entity_type", string(filters.EntityType)))
	}
	return &qdrant.Filter{Must: must}
}

// Searcher adapts the Qdrant client to the vector searcher interface by
// hydrating hits from the content store. Hits whose item has since been
// deleted are dropped; filters not pushed down to Qdrant are enforced
// during hydration.
type Searcher struct {
	client     *Client
	store      content.Store
	collection string
}

// NewSearcher creates a Qdrant backed vector searcher.
func NewSearcher(client *Client, store content.Store, collection string) *Searcher {
	return &Searcher{client: client, store: store, collection: collection}
}

// Search implements the vector search contract over Qdrant.
func (s *Searcher) Search(ctx context.Context, userID string, queryVector []float32, filters *content.Filters, threshold float64, limit int) ([]rank.VectorMatch, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}

	scored, err := s.client.DenseSearch(ctx, s.collection, userID, queryVector, filters, threshold, limit)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, nil
	}

	items, err := s.store.ItemsForUser(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: hydrate: %w", err)
	}
	byKey := make(map[string]*content.Item, len(items))
	for i := range items {
		byKey[items[i].Key()] = &items[i]
	}

	matches := make([]rank.VectorMatch, 0, len(scored))
	for _, hit := range scored {
		item, ok := byKey[hit.ItemID+"/"+string(hit.EntityType)]
		if !ok {
			continue
		}
		matches = append(matches, rank.VectorMatch{Item: *item, Similarity: hit.Score})
	}
	return matches, nil
}
