//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexFlatL2. FAISS labels are the sequential row
// numbers assigned by Build, so no id map is kept.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty FAISS L2 index with the given dimension.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	index, err := newFlatL2(dimensions)
	if err != nil {
		return nil, err
	}
	f := &FAISSIndex{index: index, dimensions: dimensions}
	// Replaced bundles are dropped, not closed, while queries may still hold them.
	runtime.SetFinalizer(f, func(f *FAISSIndex) { _ = f.Close() })
	return f, nil
}

func newFlatL2(dimensions int) (*C.FaissIndex, error) {
	var flat *C.FaissIndexFlatL2
	if ret := C.faiss_IndexFlatL2_new_with(&flat, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return (*C.FaissIndex)(unsafe.Pointer(flat)), nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string { return string(IndexTypeFAISS) }

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int { return f.dimensions }

// Build replaces the index with a fresh IndexFlatL2 holding vectors.
func (f *FAISSIndex) Build(vectors [][]float32) error {
	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), f.dimensions)
		}
		copy(flat[i*f.dimensions:], vec)
	}
	index, err := newFlatL2(f.dimensions)
	if err != nil {
		return err
	}
	if len(vectors) > 0 {
		if ret := C.faiss_Index_add(index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
			C.faiss_Index_free(index)
			return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = index
	return nil
}

// Search runs a FAISS L2 search and re-sorts hits so equal distances keep
// row order.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if k <= 0 || ntotal == 0 {
		return nil, nil
	}
	if k > ntotal {
		k = ntotal
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	out := make([]Neighbor, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 || int(labels[i]) >= ntotal {
			continue
		}
		out = append(out, Neighbor{Row: int(labels[i]), Distance: distances[i]})
	}
	SortNeighbors(out)
	return out, nil
}

// Size returns the number of rows.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Save writes the native FAISS index file.
func (f *FAISSIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Load replaces the index with the file at path.
func (f *FAISSIndex) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("load FAISS index: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	if d := int(C.faiss_Index_d(loaded)); d != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", d, f.dimensions)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	return nil
}

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
