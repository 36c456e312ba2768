package embedding

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/hyperjump/fransearch/pkg/utils"
)

// HashEncoder is a deterministic bag-of-words encoder. Each lowercased word
// and adjacent word pair is hashed to a signed bucket, and the vector is L2
// normalized. Texts sharing words land close together, which is enough for
// tests and for running without a model file.
type HashEncoder struct {
	dimensions int
}

// NewHashEncoder returns a hash encoder with the given dimensions.
func NewHashEncoder(dimensions int) *HashEncoder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEncoder{dimensions: dimensions}
}

// Encode returns the hashed embedding of text.
func (e *HashEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	words := SplitWords(text)
	for i, w := range words {
		e.add(emb, w, 1)
		if i > 0 {
			e.add(emb, words[i-1]+" "+w, 0.5)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *HashEncoder) add(emb []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	emb[idx] += weight
}

// EncodeBatch calls Encode for each text.
func (e *HashEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEncoder) Dimensions() int { return e.dimensions }

// Model returns "hash-<dims>".
func (e *HashEncoder) Model() string { return fmt.Sprintf("hash-%d", e.dimensions) }

// Close is a no-op.
func (e *HashEncoder) Close() error { return nil }
