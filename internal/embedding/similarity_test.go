package embedding

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	ragerrors "ragkit/pkg/errors"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		mode     SimilarityMode
		expected float64
	}{
		{"cosine identical", []float32{1, 2, 3}, []float32{1, 2, 3}, SimilarityCosine, 1},
		{"cosine orthogonal", []float32{1, 0}, []float32{0, 1}, SimilarityCosine, 0},
		{"cosine opposite", []float32{1, 0}, []float32{-1, 0}, SimilarityCosine, -1},
		{"cosine zero vector", []float32{0, 0}, []float32{1, 1}, SimilarityCosine, 0},
		{"default is cosine", []float32{3, 4}, []float32{3, 4}, "", 1},
		{"dot product", []float32{1, 2, 3}, []float32{4, 5, 6}, SimilarityDotProduct, 32},
		{"euclidean identical", []float32{1, 2, 3}, []float32{1, 2, 3}, SimilarityEuclidean, 0},
		{"euclidean 3-4-5", []float32{0, 0}, []float32{3, 4}, SimilarityEuclidean, -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Similarity(tt.a, tt.b, tt.mode)
			assert.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-6)
		})
	}
}

func TestSimilarityErrors(t *testing.T) {
	_, err := Similarity([]float32{1, 2}, []float32{1}, SimilarityCosine)
	assert.True(t, errors.Is(err, ragerrors.ErrInvalidDimension))

	_, err = Similarity([]float32{1}, []float32{1}, "manhattan")
	assert.True(t, errors.Is(err, ragerrors.ErrValidation))
}

func TestSimilarityIsSymmetric(t *testing.T) {
	a := []float32{0.3, -0.7, 0.1}
	b := []float32{0.9, 0.2, -0.4}
	for _, mode := range []SimilarityMode{SimilarityCosine, SimilarityDotProduct, SimilarityEuclidean} {
		ab, _ := Similarity(a, b, mode)
		ba, _ := Similarity(b, a, mode)
		assert.False(t, math.IsNaN(ab))
		assert.InDelta(t, ab, ba, 1e-9, string(mode))
	}
}
