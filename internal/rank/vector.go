package rank

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/notesearch/note-search/internal/content"
)

// DefaultSimilarityThreshold drops weak semantic matches. Overridable via
// configuration.
const DefaultSimilarityThreshold = 0.3

// VectorMatch is a semantic search hit.
type VectorMatch struct {
	Item       content.Item
	Similarity float64 // [0,1]
}

// VectorSearcher finds items semantically close to a query vector.
type VectorSearcher interface {
	Search(ctx context.Context, userID string, queryVector []float32, filters *content.Filters, threshold float64, limit int) ([]VectorMatch, error)
}

// StoreVectorSearcher scans a content store and ranks by cosine similarity.
// Suitable for moderate corpora; larger deployments swap in the Qdrant
// backed searcher.
type StoreVectorSearcher struct {
	store content.Store
}

// NewStoreVectorSearcher creates an in-process vector searcher.
func NewStoreVectorSearcher(store content.Store) *StoreVectorSearcher {
	return &StoreVectorSearcher{store: store}
}

// Search returns items whose embedding similarity to queryVector meets the
// threshold, ordered by similarity descending. Items without an embedding
// are skipped. limit <= 0 means unbounded.
func (s *StoreVectorSearcher) Search(ctx context.Context, userID string, queryVector []float32, filters *content.Filters, threshold float64, limit int) ([]VectorMatch, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}

	items, err := s.store.ItemsForUser(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	matches := make([]VectorMatch, 0, len(items))
	for i := range items {
		if len(items[i].Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(queryVector, items[i].Embedding)
		if sim < threshold {
			continue
		}
		matches = append(matches, VectorMatch{Item: items[i], Similarity: sim})
	}

	sortVectorMatches(matches)

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// clamped to [0,1]. Mismatched dimensions or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func sortVectorMatches(matches []VectorMatch) {
	sortSlice(matches, func(a, b VectorMatch) bool {
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.Item.UpdatedAt.Equal(b.Item.UpdatedAt) {
			return a.Item.UpdatedAt.After(b.Item.UpdatedAt)
		}
		return a.Item.Key() < b.Item.Key()
	})
}

func sortSlice[T any](s []T, less func(a, b T) bool) {
	sort.Slice(s, func(i, j int) bool { return less(s[i], s[j]) })
}
