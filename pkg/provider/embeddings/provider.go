// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to a dense float32 vector. The voice loop
// embeds every logged turn so that the question-answering handler can recall
// semantically similar past exchanges from the memory store.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider share the same dimensionality. Vectors
// from different models must not be compared.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text
	// is passed through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every vector, or 0 when the
	// provider cannot know it before the first Embed call.
	Dimensions() int

	// ModelID returns the model identifier (e.g., "text-embedding-3-small").
	ModelID() string
}
