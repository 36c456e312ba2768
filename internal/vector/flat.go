package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/fransearch/pkg/utils"
)

// FlatIndex is an exact brute-force index. Suitable for catalogues up to
// tens of thousands of rows and whenever FAISS is not compiled in.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string { return string(IndexTypeFlat) }

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int { return f.dimensions }

// Build copies vectors into the index, replacing previous contents.
func (f *FlatIndex) Build(vectors [][]float32) error {
	rows := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(v), f.dimensions)
		}
		rows[i] = append([]float32(nil), v...)
	}
	f.mu.Lock()
	f.vectors = rows
	f.mu.Unlock()
	return nil
}

// Search scans every row.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	all := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		all[i] = Neighbor{Row: i, Distance: utils.SquaredL2(query, v)}
	}
	SortNeighbors(all)
	if k > len(all) {
		k = len(all)
	}
	return all[:k], nil
}

// Size returns the number of rows.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Save writes the rows in matrix format.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return SaveMatrixFile(path, f.dimensions, f.vectors)
}

// Load replaces the rows with those in path. Dimensions must match.
func (f *FlatIndex) Load(path string) error {
	dims, rows, err := LoadMatrixFile(path)
	if err != nil {
		return fmt.Errorf("load flat index: %w", err)
	}
	if len(rows) > 0 && dims != f.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dims, f.dimensions)
	}
	f.mu.Lock()
	f.vectors = rows
	f.mu.Unlock()
	return nil
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error { return nil }

// SortNeighbors orders by ascending distance, then ascending row.
func SortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].Row < ns[j].Row
	})
}
