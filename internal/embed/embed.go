// Package embed turns query text into embedding vectors for semantic
// retrieval.
package embed

import "context"

// Embedder produces an embedding vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector size this embedder produces.
	Dimensions() int
}
