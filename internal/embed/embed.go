// Package embed maps text to fixed-dimension embedding vectors.
//
// Queries and corpus chunks go through the identical encoding path so their
// vectors live in the same metric space.
package embed

import "context"

// Embedder produces one fixed-length vector per input string.
// Implementations must be safe for concurrent use; the underlying model is
// shared process-wide and never mutated after load.
type Embedder interface {
	// Embed encodes a single string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch encodes texts in order; result[i] corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length every embedding has.
	Dimensions() int
}
