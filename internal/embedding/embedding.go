package embedding

import (
	"context"
	"fmt"

	ragerrors "ragkit/pkg/errors"
)

// EmbeddingProvider is a remote embedding model. EmbedBatch sends texts in a
// single request and returns one vector per text in input order.
type EmbeddingProvider interface {
	Name() string
	Model() string
	EmbedBatch(ctx context.Context, texts []string) (*Response, error)
}

// Response is the typed result of one provider call.
type Response struct {
	Embeddings [][]float32
	Usage      Usage
}

// Usage reports provider side accounting when available.
type Usage struct {
	InputTokens int
}

// ValidateTexts rejects an empty batch.
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return ragerrors.Validation("texts", "must contain at least one text")
	}
	return nil
}

// CheckResponse verifies the count and dimensionality invariants of a
// provider response against the request size.
func CheckResponse(provider string, want int, embeddings [][]float32) error {
	if len(embeddings) != want {
		return &ragerrors.ProviderError{
			Provider: provider,
			Message:  fmt.Sprintf("expected %d embeddings, got %d", want, len(embeddings)),
		}
	}
	return CheckDimensions(provider, embeddings)
}

// CheckDimensions verifies every vector is non-empty and of the same length.
func CheckDimensions(provider string, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	for i, vec := range embeddings {
		if len(vec) == 0 {
			return &ragerrors.ProviderError{
				Provider: provider,
				Message:  fmt.Sprintf("embedding %d is empty", i),
				Err:      ragerrors.ErrInvalidDimension,
			}
		}
		if len(vec) != dim {
			return &ragerrors.ProviderError{
				Provider: provider,
				Message:  fmt.Sprintf("embedding %d has dimension %d, expected %d", i, len(vec), dim),
				Err:      ragerrors.ErrInvalidDimension,
			}
		}
	}
	return nil
}

// ToFloat32 narrows a float64 vector.
func ToFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
