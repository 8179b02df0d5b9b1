// Package embedding provides query and passage embedding with swappable
// providers. The engine treats embedding as a blocking external call; a
// failed embed degrades retrieval to keyword-only search rather than
// failing the request.
package embedding

import "context"

// Client produces embeddings for text.
type Client interface {
	// Embed returns the embedding vector for text. An empty text embeds to
	// the zero vector, not an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector dimensionality this client produces.
	Dimensions() int
}
