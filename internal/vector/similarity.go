package vector

import "fmt"

// Transform converts a squared L2 distance into a similarity in [0, 1]. Both
// transforms are monotonic: a closer row never scores lower.
type Transform string

const (
	// TransformInverse is 1 / (1 + d).
	TransformInverse Transform = "inverse"
	// TransformCosine is 1 - d/2, the cosine similarity of unit vectors,
	// clamped at 0.
	TransformCosine Transform = "cosine"
)

// ParseTransform validates a transform name. Empty means inverse.
func ParseTransform(s string) (Transform, error) {
	switch Transform(s) {
	case TransformInverse, "":
		return TransformInverse, nil
	case TransformCosine:
		return TransformCosine, nil
	default:
		return "", fmt.Errorf("unknown similarity transform %q (supported: inverse, cosine)", s)
	}
}

// Similarity applies the transform to a squared L2 distance.
func (t Transform) Similarity(d float32) float64 {
	dist := float64(d)
	if dist < 0 {
		dist = 0
	}
	switch t {
	case TransformCosine:
		s := 1 - dist/2
		if s < 0 {
			return 0
		}
		if s > 1 {
			return 1
		}
		return s
	default:
		return 1 / (1 + dist)
	}
}
