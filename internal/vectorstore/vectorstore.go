// Package vectorstore defines the storage contract of embedded nodes and the
// metadata filter model shared by its backends.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"ragkit/internal/schema"
	ragerrors "ragkit/pkg/errors"
)

// QueryMode selects how a Query is matched.
type QueryMode string

const (
	ModeDefault        QueryMode = "default"
	ModeSparse         QueryMode = "sparse"
	ModeHybrid         QueryMode = "hybrid"
	ModeSemanticHybrid QueryMode = "semantic_hybrid"
)

// ParseQueryMode maps a user supplied mode name. Empty means ModeDefault.
func ParseQueryMode(s string) (QueryMode, error) {
	switch mode := QueryMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return ModeDefault, nil
	case ModeDefault, ModeSparse, ModeHybrid, ModeSemanticHybrid:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ragerrors.ErrUnsupportedQueryMode, s)
	}
}

// NeedsEmbedding reports whether the mode uses the query vector.
func (m QueryMode) NeedsEmbedding() bool {
	return m != ModeSparse
}

// NeedsText reports whether the mode uses the query text.
func (m QueryMode) NeedsText() bool {
	return m != ModeDefault
}

// Query is a vector store lookup.
type Query struct {
	QueryStr       string
	QueryEmbedding []float32
	SimilarityTopK int
	Mode           QueryMode
	Filters        *MetadataFilters
}

// QueryResult holds hits ordered by descending score.
type QueryResult struct {
	Nodes []schema.NodeWithScore
}

// VectorStore persists embedded nodes.
type VectorStore interface {
	// Add stores nodes and returns their IDs in input order.
	Add(ctx context.Context, nodes []schema.Node) ([]string, error)
	// Delete removes every node of a document.
	Delete(ctx context.Context, docID string) error
	Query(ctx context.Context, q Query) (*QueryResult, error)
}
