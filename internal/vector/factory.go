package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeFlat uses exact in-memory brute-force search.
	IndexTypeFlat IndexType = "flat"
	// IndexTypeFAISS uses a FAISS IndexFlatL2. Requires the FAISS C library and
	// -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
)

// NewIndex creates an index of the given type. "memory" is accepted as an
// alias of flat.
func NewIndex(indexType string, dimensions int) (Index, error) {
	switch IndexType(indexType) {
	case IndexTypeFlat, "memory", "":
		return NewFlatIndex(dimensions)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, faiss)", indexType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}

// FileName returns the artifact file name used for an index of this type.
func FileName(indexType string) string {
	if IndexType(indexType) == IndexTypeFAISS {
		return "index.faiss"
	}
	return "index.bin"
}
