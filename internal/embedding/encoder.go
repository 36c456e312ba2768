// Package embedding maps listing text to dense vectors. Backends are an ONNX
// sentence-embedding model (cgo) and a deterministic feature-hashing encoder.
// Wrappers add caching, bounded parallel batches, and a timeout plus circuit
// breaker that turns failures into apperr.ErrEncoding.
package embedding

import "context"

// Encoder produces vector embeddings for text. Identical text yields an
// identical vector for the same Model(). EncodeBatch returns one vector per
// input, in input order.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Model identifies the encoder and its weights. Bundles trained with a
	// different model are not reused.
	Model() string
	Close() error
}
