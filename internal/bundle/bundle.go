// Package bundle holds the trained, row-aligned search artifacts and their
// on-disk layout. Row i of the TF-IDF matrix, the embedding matrix and the
// similarity index all describe ListingIDs[i].
package bundle

import (
	"fmt"
	"time"

	"github.com/hyperjump/fransearch/internal/keyword"
	"github.com/hyperjump/fransearch/internal/vector"
)

// Sources a bundle can come from.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
	SourceTrain  = "train"
)

// Bundle is immutable once published. A retrain builds a new Bundle.
type Bundle struct {
	ID                 string
	Vectorizer         *keyword.Vectorizer
	TFIDF              *keyword.Matrix
	Embeddings         [][]float32
	Index              vector.Index
	ListingIDs         []int
	DatasetVersion     int64
	DatasetFingerprint string // dataset file content ID at training time
	EncoderModel       string
	TrainedAt          time.Time
	Source             string

	rowOf map[int]int
}

// Validate checks that every artifact has one row per listing id and that
// ids are unique. It also builds the id → row lookup used by Row.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}
	if b.Vectorizer == nil || !b.Vectorizer.Fitted() {
		return fmt.Errorf("bundle %s: vectorizer is not fitted", b.ID)
	}
	if b.Index == nil {
		return fmt.Errorf("bundle %s: similarity index missing", b.ID)
	}
	n := len(b.ListingIDs)
	if b.TFIDF.Len() != n {
		return fmt.Errorf("bundle %s: tfidf has %d rows, want %d", b.ID, b.TFIDF.Len(), n)
	}
	if len(b.Embeddings) != n {
		return fmt.Errorf("bundle %s: embeddings have %d rows, want %d", b.ID, len(b.Embeddings), n)
	}
	if b.Index.Size() != n {
		return fmt.Errorf("bundle %s: index has %d rows, want %d", b.ID, b.Index.Size(), n)
	}
	dims := b.Index.Dimensions()
	for i, row := range b.Embeddings {
		if len(row) != dims {
			return fmt.Errorf("bundle %s: embedding row %d has dimension %d, want %d", b.ID, i, len(row), dims)
		}
	}
	rowOf := make(map[int]int, n)
	for i, id := range b.ListingIDs {
		if _, dup := rowOf[id]; dup {
			return fmt.Errorf("bundle %s: listing id %d appears twice", b.ID, id)
		}
		rowOf[id] = i
	}
	b.rowOf = rowOf
	return nil
}

// Len returns the number of rows.
func (b *Bundle) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ListingIDs)
}

// Row returns the row of a listing id.
func (b *Bundle) Row(id int) (int, bool) {
	if b == nil {
		return 0, false
	}
	if b.rowOf == nil {
		for i, lid := range b.ListingIDs {
			if lid == id {
				return i, true
			}
		}
		return 0, false
	}
	row, ok := b.rowOf[id]
	return row, ok
}

// Stale reports whether the bundle was trained from a different dataset
// than the one at version and fingerprint. Versions of bare-array files
// restart at 0, so equal versions still differ when both fingerprints are
// known and do not match.
func (b *Bundle) Stale(version int64, fingerprint string) bool {
	if b == nil {
		return false
	}
	if b.DatasetVersion != version {
		return true
	}
	return b.DatasetFingerprint != "" && fingerprint != "" && b.DatasetFingerprint != fingerprint
}

// Close releases the similarity index.
func (b *Bundle) Close() error {
	if b == nil || b.Index == nil {
		return nil
	}
	return b.Index.Close()
}
