package vector

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func buildFlat(t *testing.T, vecs [][]float32) *FlatIndex {
	t.Helper()
	idx, err := NewFlatIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Build(vecs); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestFlatIndex_SearchOrder(t *testing.T) {
	idx := buildFlat(t, [][]float32{{0, 1}, {1, 0}, {0.9, 0.1}, {1, 0}})
	got, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d neighbors", len(got))
	}
	// Rows 1 and 3 tie at distance 0; lower row first.
	if got[0].Row != 1 || got[1].Row != 3 || got[2].Row != 2 {
		t.Errorf("order = %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("distances not non-decreasing: %+v", got)
		}
	}
}

func TestFlatIndex_KLargerThanRows(t *testing.T) {
	idx := buildFlat(t, [][]float32{{0, 1}, {1, 0}})
	got, err := idx.Search(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Row != 1 {
		t.Errorf("got %+v", got)
	}
	if none, _ := idx.Search(context.Background(), []float32{1, 0}, 0); len(none) != 0 {
		t.Errorf("k=0 returned %v", none)
	}
}

func TestFlatIndex_Errors(t *testing.T) {
	if _, err := NewFlatIndex(0); err == nil {
		t.Error("expected error for zero dimensions")
	}
	idx := buildFlat(t, nil)
	if err := idx.Build([][]float32{{1, 2, 3}}); err == nil {
		t.Error("expected dimension mismatch on build")
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 1); err == nil {
		t.Error("expected dimension mismatch on search")
	}
	empty, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty index search = %v, %v", empty, err)
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "index.bin")
	idx := buildFlat(t, [][]float32{{0, 1}, {1, 0}, {0.5, 0.5}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, _ := NewFlatIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 3 {
		t.Fatalf("Size = %d", loaded.Size())
	}
	got, _ := loaded.Search(context.Background(), []float32{0.5, 0.5}, 1)
	if got[0].Row != 2 {
		t.Errorf("top row = %d", got[0].Row)
	}

	wrongDims, _ := NewFlatIndex(3)
	if err := wrongDims.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
}

func TestNewIndex(t *testing.T) {
	for _, typ := range []string{"", "flat", "memory"} {
		idx, err := NewIndex(typ, 4)
		if err != nil {
			t.Fatalf("NewIndex(%q): %v", typ, err)
		}
		if idx.Type() != string(IndexTypeFlat) {
			t.Errorf("NewIndex(%q).Type() = %s", typ, idx.Type())
		}
	}
	if _, err := NewIndex("annoy", 4); err == nil {
		t.Error("expected error for unknown type")
	}
	_, err := NewIndex("faiss", 4)
	if IsFAISSAvailable() != (err == nil) {
		t.Errorf("IsFAISSAvailable disagrees with NewIndex error %v", err)
	}
	if FileName("faiss") != "index.faiss" || FileName("flat") != "index.bin" {
		t.Error("unexpected artifact names")
	}
}

func TestTransforms(t *testing.T) {
	inv, _ := ParseTransform("")
	if inv != TransformInverse {
		t.Errorf("default transform = %s", inv)
	}
	if got := inv.Similarity(0); got != 1 {
		t.Errorf("inverse(0) = %v", got)
	}
	if got := inv.Similarity(1); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("inverse(1) = %v", got)
	}
	cos, _ := ParseTransform("cosine")
	if got := cos.Similarity(1); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("cosine(1) = %v", got)
	}
	if got := cos.Similarity(4); got != 0 {
		t.Errorf("cosine(4) = %v", got)
	}
	for _, tr := range []Transform{TransformInverse, TransformCosine} {
		prev := tr.Similarity(0)
		for d := float32(0.1); d < 5; d += 0.1 {
			s := tr.Similarity(d)
			if s > prev || s < 0 || s > 1 {
				t.Fatalf("%s not monotonic in [0,1] at %v: %v after %v", tr, d, s, prev)
			}
			prev = s
		}
	}
	if _, err := ParseTransform("sigmoid"); err == nil {
		t.Error("expected error for unknown transform")
	}
}
