package embedding

import (
	"fmt"
	"math"

	ragerrors "ragkit/pkg/errors"
)

// SimilarityMode selects how two embeddings are compared.
type SimilarityMode string

const (
	SimilarityCosine     SimilarityMode = "cosine"
	SimilarityDotProduct SimilarityMode = "dot_product"
	SimilarityEuclidean  SimilarityMode = "euclidean"
)

// Similarity scores a against b; higher is more similar. Euclidean similarity
// is the negated L2 distance.
func Similarity(a, b []float32, mode SimilarityMode) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ragerrors.ErrInvalidDimension, len(a), len(b))
	}
	switch mode {
	case SimilarityDotProduct:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot, nil
	case SimilarityEuclidean:
		var sum float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return -math.Sqrt(sum), nil
	case SimilarityCosine, "":
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0, nil
		}
		return dot / math.Sqrt(na*nb), nil
	default:
		return 0, ragerrors.Validation("mode", fmt.Sprintf("unknown similarity mode %q", mode))
	}
}
