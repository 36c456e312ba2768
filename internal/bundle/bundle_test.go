package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/fransearch/internal/embedding"
	"github.com/hyperjump/fransearch/internal/keyword"
	"github.com/hyperjump/fransearch/internal/vector"
)

func testBundle(t *testing.T) *Bundle {
	t.Helper()
	docs := []string{"Pizza King Food pizza delivery", "Burger Hub Food grill", "Clean Co Services cleaning"}
	vec := keyword.NewVectorizer()
	m, err := vec.Fit(docs)
	if err != nil {
		t.Fatal(err)
	}
	enc := embedding.NewHashEncoder(16)
	embs, err := enc.EncodeBatch(context.Background(), docs)
	if err != nil {
		t.Fatal(err)
	}
	idx, _ := vector.NewFlatIndex(16)
	if err := idx.Build(embs); err != nil {
		t.Fatal(err)
	}
	return &Bundle{
		ID:                 "b1",
		Vectorizer:         vec,
		TFIDF:              m,
		Embeddings:         embs,
		Index:              idx,
		ListingIDs:         []int{3, 1, 7},
		DatasetVersion:     4,
		DatasetFingerprint: "sha256:aaaa",
		EncoderModel:       enc.Model(),
		TrainedAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:             SourceTrain,
	}
}

func TestValidate(t *testing.T) {
	b := testBundle(t)
	if err := b.Validate(); err != nil {
		t.Fatal(err)
	}
	if row, ok := b.Row(7); !ok || row != 2 {
		t.Errorf("Row(7) = %d, %v", row, ok)
	}
	if _, ok := b.Row(2); ok {
		t.Error("Row(2) should be missing")
	}

	b.ListingIDs = []int{3, 1}
	if err := b.Validate(); err == nil {
		t.Error("expected misaligned bundle to fail")
	}
	b.ListingIDs = []int{3, 3, 1}
	if err := b.Validate(); err == nil {
		t.Error("expected duplicate ids to fail")
	}
}

func TestStale(t *testing.T) {
	b := testBundle(t)
	tests := []struct {
		name        string
		version     int64
		fingerprint string
		want        bool
	}{
		{"same version and content", 4, "sha256:aaaa", false},
		{"newer version", 5, "sha256:aaaa", true},
		{"same version, different content", 4, "sha256:bbbb", true},
		{"no file yet", 4, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Stale(tt.version, tt.fingerprint); got != tt.want {
				t.Errorf("Stale(%d, %q) = %v, want %v", tt.version, tt.fingerprint, got, tt.want)
			}
		})
	}

	b.DatasetFingerprint = ""
	if b.Stale(4, "sha256:bbbb") {
		t.Error("bundle without a fingerprint should compare versions only")
	}
	var nilBundle *Bundle
	if nilBundle.Stale(1, "") || nilBundle.Len() != 0 {
		t.Error("nil bundle has no rows and is never stale")
	}
}

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models", "current")
	if Exists(dir) {
		t.Fatal("empty dir should hold no bundle")
	}
	if _, err := Load(dir); err != ErrNotFound {
		t.Fatalf("Load(empty) = %v, want ErrNotFound", err)
	}

	b := testBundle(t)
	if err := Save(dir, b); err != nil {
		t.Fatal(err)
	}
	for _, name := range Files(b.Index.Type()) {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "b1" || got.DatasetVersion != 4 || got.DatasetFingerprint != "sha256:aaaa" || got.Source != SourceLocal {
		t.Errorf("metadata = %+v", got)
	}
	if !got.TrainedAt.Equal(b.TrainedAt) || got.EncoderModel != "hash-16" {
		t.Errorf("trained_at=%v model=%s", got.TrainedAt, got.EncoderModel)
	}
	if got.Len() != 3 || got.ListingIDs[2] != 7 {
		t.Errorf("listing ids = %v", got.ListingIDs)
	}

	want, _ := b.Vectorizer.Score("pizza", b.TFIDF)
	have, err := got.Vectorizer.Score("pizza", got.TFIDF)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != have[i] {
			t.Errorf("row %d keyword score %v, want %v", i, have[i], want[i])
		}
	}

	ns, err := got.Index.Search(context.Background(), b.Embeddings[1], 1)
	if err != nil || len(ns) != 1 || ns[0].Row != 1 {
		t.Errorf("search = %v, %v", ns, err)
	}
}

func TestSaveReplacesPrevious(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "current")
	b := testBundle(t)
	if err := Save(dir, b); err != nil {
		t.Fatal(err)
	}
	b.ID = "b2"
	b.DatasetVersion = 9
	if err := Save(dir, b); err != nil {
		t.Fatal(err)
	}
	meta, err := ReadMetadata(dir)
	if err != nil {
		t.Fatal(err)
	}
	if meta.ID != "b2" || meta.DatasetVersion != 9 {
		t.Errorf("metadata = %+v", meta)
	}
	entries, _ := os.ReadDir(filepath.Dir(dir))
	if len(entries) != 1 {
		t.Errorf("leftover staging dirs: %v", entries)
	}
}

func TestLoad_FallsBackToFlat(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "current")
	b := testBundle(t)
	if err := Save(dir, b); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, vector.FileName(b.Index.Type()))); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Index.Type() != string(vector.IndexTypeFlat) || got.Index.Size() != 3 {
		t.Errorf("rebuilt index type=%s size=%d", got.Index.Type(), got.Index.Size())
	}
}

func TestReadMetadata_RejectsIndexPath(t *testing.T) {
	for _, name := range []string{"../index.bin", "sub/index.bin", "..", ""} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			meta := `{"format_version":1,"id":"b1","index_type":"flat","index_file":"` + name + `"}`
			if err := os.WriteFile(filepath.Join(dir, MetadataFile), []byte(meta), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadMetadata(dir); err == nil {
				t.Errorf("index_file %q should be rejected", name)
			}
			if _, err := Load(dir); err == nil {
				t.Errorf("Load should refuse index_file %q", name)
			}
		})
	}
}

func TestIsFileName(t *testing.T) {
	for name, want := range map[string]bool{
		"index.bin":   true,
		"index.faiss": true,
		"../x":        false,
		"a/b":         false,
		`a\b`:         false,
		".":           false,
	} {
		if got := IsFileName(name); got != want {
			t.Errorf("IsFileName(%q) = %v, want %v", name, got, want)
		}
	}
}
