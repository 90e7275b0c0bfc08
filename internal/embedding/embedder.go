// Package embedding turns report text into embedding vectors through an
// external provider, with an in-memory LRU cache in front of it.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
