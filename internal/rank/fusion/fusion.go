// Package fusion merges keyword and vector retrieval results into a single
// ranked list.
package fusion

import (
	"sort"

	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/rank"
)

// Mode selects which retrieval signals participate in ranking.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeKeyword, ModeSemantic, ModeHybrid:
		return true
	}
	return false
}

// Weights controls the blend of the two signals in hybrid mode. The vector
// signal is weighted above the text signal on purpose: semantic closeness
// is the stronger relevance indicator for short note-style content.
type Weights struct {
	Text   float64
	Vector float64
}

// DefaultWeights is the production blend.
var DefaultWeights = Weights{Text: 0.4, Vector: 0.6}

// Scored is one merged result. VectorRank is a pointer so callers can tell
// "no semantic signal" apart from "similarity zero".
type Scored struct {
	Item        content.Item
	TextRank    float64
	VectorRank  *float64
	Combined    float64
	Snippet     string
	Highlighted string
}

// Merge joins keyword and vector hits by item identity and ranks them.
//
//   - hybrid: combined = text*w.Text + vector*w.Vector, a missing signal
//     contributing zero, so an item found by both sources always outranks
//     an otherwise equal item found by one.
//   - keyword / semantic: the other signal is ignored entirely.
//
// The output order is deterministic: combined score descending, then most
// recently updated, then item key.
func Merge(text []rank.TextMatch, vector []rank.VectorMatch, mode Mode, w Weights) []Scored {
	merged := make(map[string]*Scored, len(text)+len(vector))

	if mode != ModeSemantic {
		for _, m := range text {
			merged[m.Item.Key()] = &Scored{
				Item:        m.Item,
				TextRank:    m.Score,
				Snippet:     m.Snippet,
				Highlighted: m.Highlighted,
			}
		}
	}

	if mode != ModeKeyword {
		for _, m := range vector {
			sim := m.Similarity
			if s, ok := merged[m.Item.Key()]; ok {
				s.VectorRank = &sim
				continue
			}
			merged[m.Item.Key()] = &Scored{
				Item:       m.Item,
				VectorRank: &sim,
			}
		}
	}

	results := make([]Scored, 0, len(merged))
	for _, s := range merged {
		s.Combined = combined(s, mode, w)
		results = append(results, *s)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Combined != b.Combined {
			return a.Combined > b.Combined
		}
		if !a.Item.UpdatedAt.Equal(b.Item.UpdatedAt) {
			return a.Item.UpdatedAt.After(b.Item.UpdatedAt)
		}
		return a.Item.Key() < b.Item.Key()
	})
	return results
}

func combined(s *Scored, mode Mode, w Weights) float64 {
	switch mode {
	case ModeKeyword:
		return s.TextRank
	case ModeSemantic:
		if s.VectorRank == nil {
			return 0
		}
		return *s.VectorRank
	default:
		score := s.TextRank * w.Text
		if s.VectorRank != nil {
			score += *s.VectorRank * w.Vector
		}
		return score
	}
}

// Page applies offset and limit to an already ranked list. An offset past
// the end yields an empty slice; limit <= 0 means no cap.
func Page(results []Scored, offset, limit int) []Scored {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
