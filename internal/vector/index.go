// Package vector provides nearest-neighbour indexes over embedding rows.
// Row numbers are the index-to-listing mapping: row i is the i-th vector
// passed to Build.
package vector

import "context"

// Neighbor is one search hit. Distance is squared euclidean; smaller is closer.
type Neighbor struct {
	Row      int
	Distance float32
}

// Index is a rebuild-only nearest-neighbour structure.
type Index interface {
	// Build replaces the index contents with vectors, keeping their order.
	Build(vectors [][]float32) error
	// Search returns up to k rows nearest to query ordered by ascending
	// distance, ties broken by lower row. It never returns more rows than
	// the index holds.
	Search(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Size() int
	Dimensions() int
	Type() string
	Save(path string) error
	Load(path string) error
	Close() error
}
