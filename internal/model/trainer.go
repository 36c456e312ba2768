package model

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/bundle"
	"github.com/hyperjump/fransearch/internal/dataset"
	"github.com/hyperjump/fransearch/internal/embedding"
	"github.com/hyperjump/fransearch/internal/keyword"
	"github.com/hyperjump/fransearch/internal/vector"
	"github.com/hyperjump/fransearch/pkg/utils"
)

// Trainer builds bundles from dataset snapshots.
type Trainer struct {
	Encoder     embedding.Encoder
	IndexType   string
	MaxFeatures int
	NGramMax    int
	Logger      *zap.Logger
}

// Train fits the keyword vectorizer, embeds every listing and builds the
// similarity index, all in snapshot order. An index type that cannot be
// created in this build falls back to the flat index.
func (t *Trainer) Train(ctx context.Context, snap *dataset.Snapshot) (*bundle.Bundle, error) {
	const op = "train"
	if snap == nil || snap.Len() == 0 {
		return nil, apperr.Training(op, "dataset is empty", nil)
	}
	logger := utils.OrNop(t.Logger)

	ids := make([]int, snap.Len())
	texts := make([]string, snap.Len())
	for i := range snap.Listings {
		ids[i] = snap.Listings[i].ID
		texts[i] = snap.Listings[i].Text()
	}

	vec := keyword.NewVectorizer(keyword.WithMaxFeatures(t.MaxFeatures), keyword.WithNGramMax(t.NGramMax))
	matrix, err := vec.Fit(texts)
	if err != nil {
		return nil, apperr.Training(op, "fit keyword vectorizer", err)
	}

	embeddings, err := t.Encoder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Training(op, "embed listings", err)
	}
	if len(embeddings) != len(texts) {
		return nil, apperr.Training(op, "encoder returned wrong number of vectors", nil)
	}
	for _, e := range embeddings {
		utils.NormalizeL2(e)
	}

	dims := t.Encoder.Dimensions()
	idx, err := vector.NewIndex(t.IndexType, dims)
	if err != nil {
		logger.Warn("index type unavailable, using flat index",
			zap.String("index_type", t.IndexType), zap.Error(err))
		flat, ferr := vector.NewFlatIndex(dims)
		if ferr != nil {
			return nil, apperr.Training(op, "create index", ferr)
		}
		idx = flat
	}
	if err := idx.Build(embeddings); err != nil {
		_ = idx.Close()
		return nil, apperr.Training(op, "build index", err)
	}

	b := &bundle.Bundle{
		ID:                 uuid.NewString(),
		Vectorizer:         vec,
		TFIDF:              matrix,
		Embeddings:         embeddings,
		Index:              idx,
		ListingIDs:         ids,
		DatasetVersion:     snap.Version,
		DatasetFingerprint: snap.Fingerprint,
		EncoderModel:       t.Encoder.Model(),
		TrainedAt:          time.Now().UTC(),
		Source:             bundle.SourceTrain,
	}
	if err := b.Validate(); err != nil {
		_ = idx.Close()
		return nil, apperr.Training(op, "bundle is inconsistent", err)
	}
	return b, nil
}
