package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/hyperjump/fransearch/internal/keyword"
	"github.com/hyperjump/fransearch/internal/vector"
)

// Artifact file names inside a bundle directory.
const (
	MetadataFile   = "metadata.json"
	TFIDFFile      = "tfidf.msgpack"
	EmbeddingsFile = "embeddings.bin"
)

const formatVersion = 1

// ErrNotFound is returned by Load when dir holds no bundle.
var ErrNotFound = errors.New("no bundle on disk")

// Metadata is the bundle manifest written as metadata.json.
type Metadata struct {
	FormatVersion  int       `json:"format_version"`
	ID             string    `json:"id"`
	DatasetVersion int64     `json:"dataset_version"`
	DatasetFP      string    `json:"dataset_fingerprint,omitempty"`
	EncoderModel   string    `json:"encoder_model"`
	IndexType      string    `json:"index_type"`
	IndexFile      string    `json:"index_file"`
	Dimensions     int       `json:"dimensions"`
	Rows           int       `json:"rows"`
	ListingIDs     []int     `json:"listing_id_order"`
	TrainedAt      time.Time `json:"trained_at"`
}

type tfidfArtifact struct {
	Vectorizer *keyword.Vectorizer `msgpack:"vectorizer"`
	Matrix     *keyword.Matrix     `msgpack:"matrix"`
}

// Files lists the artifact names for an index type in upload order. metadata.json comes
// last so a reader never finds a manifest pointing at missing files.
func Files(indexType string) []string {
	return []string{TFIDFFile, EmbeddingsFile, vector.FileName(indexType), MetadataFile}
}

// Exists reports whether dir holds a bundle manifest.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, MetadataFile))
	return err == nil
}

// ReadMetadata reads the manifest in dir.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read bundle metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse bundle metadata: %w", err)
	}
	if meta.FormatVersion != formatVersion {
		return nil, fmt.Errorf("unsupported bundle format version %d", meta.FormatVersion)
	}
	if !IsFileName(meta.IndexFile) {
		return nil, fmt.Errorf("bundle metadata: invalid index file %q", meta.IndexFile)
	}
	return &meta, nil
}

// IsFileName reports whether name is a plain file name with no directory
// part. Names read from metadata or a backup pointer must pass it before
// they are joined onto a directory.
func IsFileName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return name == filepath.Base(name) && !strings.ContainsAny(name, `/\`)
}

// Save writes b to dir. Artifacts go to a sibling staging directory that
// replaces dir only once every file is written.
func Save(dir string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := WriteDir(staging, b); err != nil {
		return err
	}
	return swapDir(staging, dir)
}

// WriteDir writes every artifact of b into an existing directory.
func WriteDir(dir string, b *Bundle) error {
	art, err := msgpack.Marshal(&tfidfArtifact{Vectorizer: b.Vectorizer, Matrix: b.TFIDF})
	if err != nil {
		return fmt.Errorf("encode tfidf: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, TFIDFFile), art, 0644); err != nil {
		return fmt.Errorf("write tfidf: %w", err)
	}
	dims := b.Index.Dimensions()
	if err := vector.SaveMatrixFile(filepath.Join(dir, EmbeddingsFile), dims, b.Embeddings); err != nil {
		return fmt.Errorf("write embeddings: %w", err)
	}
	indexFile := vector.FileName(b.Index.Type())
	if err := b.Index.Save(filepath.Join(dir, indexFile)); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	meta := Metadata{
		FormatVersion:  formatVersion,
		ID:             b.ID,
		DatasetVersion: b.DatasetVersion,
		DatasetFP:      b.DatasetFingerprint,
		EncoderModel:   b.EncoderModel,
		IndexType:      b.Index.Type(),
		IndexFile:      indexFile,
		Dimensions:     dims,
		Rows:           b.Len(),
		ListingIDs:     b.ListingIDs,
		TrainedAt:      b.TrainedAt.UTC(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func swapDir(staging, dir string) error {
	old := dir + ".old"
	_ = os.RemoveAll(old)
	if _, err := os.Stat(dir); err == nil {
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous bundle: %w", err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		_ = os.Rename(old, dir)
		return fmt.Errorf("publish bundle: %w", err)
	}
	_ = os.RemoveAll(old)
	return nil
}

// Load reads the bundle in dir. The similarity index is loaded from its
// saved file; when that type cannot be opened in this build (FAISS not
// compiled in) it is rebuilt as a flat index from the embeddings.
func Load(dir string) (*Bundle, error) {
	meta, err := ReadMetadata(dir)
	if err != nil {
		return nil, err
	}

	art := tfidfArtifact{}
	data, err := os.ReadFile(filepath.Join(dir, TFIDFFile))
	if err != nil {
		return nil, fmt.Errorf("read tfidf: %w", err)
	}
	if err := msgpack.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("decode tfidf: %w", err)
	}

	dims, embeddings, err := vector.LoadMatrixFile(filepath.Join(dir, EmbeddingsFile))
	if err != nil {
		return nil, fmt.Errorf("read embeddings: %w", err)
	}
	if len(embeddings) > 0 && dims != meta.Dimensions {
		return nil, fmt.Errorf("embeddings have dimension %d, metadata says %d", dims, meta.Dimensions)
	}

	idx, err := loadIndex(dir, meta, embeddings)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		ID:                 meta.ID,
		Vectorizer:         art.Vectorizer,
		TFIDF:              art.Matrix,
		Embeddings:         embeddings,
		Index:              idx,
		ListingIDs:         meta.ListingIDs,
		DatasetVersion:     meta.DatasetVersion,
		DatasetFingerprint: meta.DatasetFP,
		EncoderModel:       meta.EncoderModel,
		TrainedAt:          meta.TrainedAt,
		Source:             SourceLocal,
	}
	if err := b.Validate(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return b, nil
}

func loadIndex(dir string, meta *Metadata, embeddings [][]float32) (vector.Index, error) {
	idx, err := vector.NewIndex(meta.IndexType, meta.Dimensions)
	if err == nil {
		if err = idx.Load(filepath.Join(dir, meta.IndexFile)); err == nil {
			return idx, nil
		}
		_ = idx.Close()
	}
	flat, ferr := vector.NewFlatIndex(meta.Dimensions)
	if ferr != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if ferr := flat.Build(embeddings); ferr != nil {
		return nil, fmt.Errorf("rebuild index: %w", ferr)
	}
	return flat, nil
}
