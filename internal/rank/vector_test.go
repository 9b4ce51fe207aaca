package rank

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/notesearch/note-search/internal/content"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite clamped", []float32{1, 0}, []float32{-1, 0}, 0.0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"dimension mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %f, want %f", got, tt.want)
			}
		})
	}
}

func embeddedItem(id, userID string, embedding []float32, updatedAt time.Time) content.Item {
	return content.Item{
		ID:         id,
		EntityType: content.EntityNote,
		UserID:     userID,
		Title:      "t",
		Content:    "c",
		Embedding:  embedding,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
}

func TestVectorSearchOrdering(t *testing.T) {
	now := time.Now().UTC()
	store := content.NewMemoryStore()
	store.Put(embeddedItem("far", "u1", []float32{0, 1, 0.2}, now))
	store.Put(embeddedItem("close", "u1", []float32{0.9, 0.1, 0}, now))
	store.Put(embeddedItem("exact", "u1", []float32{1, 0, 0}, now))
	store.Put(embeddedItem("no-embedding", "u1", nil, now))
	store.Put(embeddedItem("other-user", "u2", []float32{1, 0, 0}, now))

	searcher := NewStoreVectorSearcher(store)
	matches, err := searcher.Search(context.Background(), "u1", []float32{1, 0, 0}, nil, 0.3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (threshold and embedding gating)", len(matches))
	}
	if matches[0].Item.ID != "exact" || matches[1].Item.ID != "close" {
		t.Errorf("order = [%s %s], want [exact close]", matches[0].Item.ID, matches[1].Item.ID)
	}
	for _, m := range matches {
		if m.Similarity < 0.3 || m.Similarity > 1 {
			t.Errorf("similarity %f for %s out of range", m.Similarity, m.Item.ID)
		}
	}
}

func TestVectorSearchTieBreak(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	store := content.NewMemoryStore()
	store.Put(embeddedItem("old", "u1", []float32{1, 0}, older))
	store.Put(embeddedItem("new", "u1", []float32{1, 0}, newer))

	searcher := NewStoreVectorSearcher(store)
	matches, err := searcher.Search(context.Background(), "u1", []float32{1, 0}, nil, 0.5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].Item.ID != "new" {
		t.Fatalf("tie not broken by recency: %+v", matches)
	}
}

func TestVectorSearchEmptyQueryVector(t *testing.T) {
	store := content.NewMemoryStore()
	store.Put(embeddedItem("1", "u1", []float32{1, 0}, time.Now()))

	searcher := NewStoreVectorSearcher(store)
	matches, err := searcher.Search(context.Background(), "u1", nil, nil, 0.3, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("empty query vector matched %d items, want 0", len(matches))
	}
}

func TestVectorSearchLimit(t *testing.T) {
	now := time.Now().UTC()
	store := content.NewMemoryStore()
	for i := 0; i < 5; i++ {
		store.Put(embeddedItem(string(rune('a'+i)), "u1", []float32{1, 0}, now.Add(time.Duration(i)*time.Minute)))
	}

	searcher := NewStoreVectorSearcher(store)
	matches, err := searcher.Search(context.Background(), "u1", []float32{1, 0}, nil, 0.5, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("got %d matches, want 2", len(matches))
	}
}
